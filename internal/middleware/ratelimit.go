package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locator-validation/internal/config"
	"github.com/iliyamo/locator-validation/internal/service"
)

// takeToken refills a bucket hash by whole intervals, then spends one
// token if there is one.  It returns {allowed, tokens left, wait in ms}.
var takeToken = redis.NewScript(`
local now      = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill   = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local ttl      = tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local stamp  = tonumber(redis.call('HGET', KEYS[1], 'ts'))
if tokens == nil or stamp == nil then
	tokens = capacity
	stamp = now
end

local steps = math.floor(math.max(0, now - stamp) / interval)
if steps > 0 then
	tokens = math.min(capacity, tokens + steps * refill)
	stamp = stamp + steps * interval
end

local allowed = 0
local wait = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait = math.max(0, interval - (now - stamp))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', stamp)
redis.call('EXPIRE', KEYS[1], ttl)
return { allowed, tokens, wait }
`)

// bucket is one family of Redis token buckets sharing a shape.
type bucket struct {
	rdb      *redis.Client
	capacity int
	refill   int
	interval time.Duration
	ttl      time.Duration
}

type verdict struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

func (b bucket) take(ctx context.Context, key string, now time.Time) (verdict, error) {
	vals, err := takeToken.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(), b.capacity, b.refill, b.interval.Milliseconds(), int64(b.ttl/time.Second),
	).Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(vals) != 3 {
		return verdict{}, fmt.Errorf("unexpected limiter reply %#v", vals)
	}
	return verdict{
		allowed:    asInt64(vals[0]) == 1,
		remaining:  asInt64(vals[1]),
		retryAfter: time.Duration(asInt64(vals[2])) * time.Millisecond,
	}, nil
}

// NewTokenBucket returns the limiter placed in front of validation.  Each
// request spends a token from its actor bucket (keyed by
// cfg.KeyStrategy) and, when the body names a locator, from that
// locator's scan bucket.  When limiting is disabled, Redis is missing or
// Redis fails, requests pass through unthrottled.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *logrus.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	actors := bucket{rdb: rdb, capacity: cfg.Capacity, refill: cfg.RefillTokens, interval: cfg.RefillInterval, ttl: cfg.TTL}
	scans := bucket{rdb: rdb, capacity: cfg.ScanCapacity, refill: 1, interval: cfg.ScanRefillInterval, ttl: cfg.TTL}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			now := time.Now()

			key := buildRateKey(cfg, c)
			v, err := actors.take(ctx, key, now)
			if err != nil {
				limiterFailed(logger, key, err)
				return next(c)
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			if !v.allowed {
				return tooManyRequests(c, v, "rate limit exceeded, retry later")
			}

			if cfg.ScanCapacity > 0 {
				if locator := scannedLocator(c); locator != "" {
					scanKey := cfg.Prefix + ":scan:" + locator
					sv, err := scans.take(ctx, scanKey, now)
					switch {
					case err != nil:
						limiterFailed(logger, scanKey, err)
					case !sv.allowed:
						return tooManyRequests(c, sv, "locator scanned too often, retry later")
					}
				}
			}
			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, v verdict, msg string) error {
	secs := int(math.Ceil(v.retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	return c.JSON(http.StatusTooManyRequests, echo.Map{"error": msg})
}

func limiterFailed(logger *logrus.Logger, key string, err error) {
	logger.WithFields(logrus.Fields{
		"module":   "middleware",
		"funcName": "NewTokenBucket",
		"key":      key,
	}).WithError(err).Warn("rate limiter unavailable, letting request through")
}

// scannedLocator peeks at a JSON validation body and returns its
// normalized locator, or "" when there is none.  The body is restored
// for the handler.
func scannedLocator(c echo.Context) string {
	req := c.Request()
	if req.Body == nil || req.Method != http.MethodPost {
		return ""
	}
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var in service.LocatorInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ""
	}
	q, err := service.NormalizeInput(in)
	if err != nil {
		return ""
	}
	return q.Locator
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := currentUserID(c)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

func currentUserID(c echo.Context) string {
	if a := ActorFrom(c); a.UserID != "" {
		return a.UserID
	}
	return "anon"
}
