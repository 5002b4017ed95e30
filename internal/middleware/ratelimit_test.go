package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/locator-validation/internal/config"
	"github.com/iliyamo/locator-validation/internal/model"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:            true,
		Capacity:           2,
		RefillTokens:       1,
		RefillInterval:     time.Minute,
		TTL:                10 * time.Minute,
		KeyStrategy:        "user_route",
		Prefix:             "rl",
		ScanRefillInterval: time.Minute,
	}
}

// scanServer routes POST /scan through the limiter and echoes the body
// back so tests can see it survived the peek.
func scanServer(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	setActor := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Request().Header.Get("X-Test-Actor"); id != "" {
				c.Set(actorKey, model.Actor{UserID: id})
			}
			return next(c)
		}
	}
	e.POST("/scan", func(c echo.Context) error {
		body, _ := io.ReadAll(c.Request().Body)
		return c.String(http.StatusOK, string(body))
	}, setActor, mw)
	return e
}

func scan(e *echo.Echo, actor, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Test-Actor", actor)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBucketTakeRefills(t *testing.T) {
	_, rdb := newRedis(t)
	b := bucket{rdb: rdb, capacity: 2, refill: 1, interval: time.Second, ttl: time.Minute}
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, want := range []int64{1, 0} {
		v, err := b.take(ctx, "rl:test", t0)
		require.NoError(t, err)
		assert.True(t, v.allowed, "take %d", i)
		assert.Equal(t, want, v.remaining)
	}

	v, err := b.take(ctx, "rl:test", t0.Add(400*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, v.allowed)
	assert.Equal(t, 600*time.Millisecond, v.retryAfter)

	v, err = b.take(ctx, "rl:test", t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, v.allowed)
	assert.Equal(t, int64(0), v.remaining)

	// a long idle period never overfills the bucket
	v, err = b.take(ctx, "rl:test", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.remaining)
}

func TestTokenBucketPerActor(t *testing.T) {
	mr, rdb := newRedis(t)
	e := scanServer(NewTokenBucket(limiterConfig(), rdb, logrus.New()))

	assert.Equal(t, http.StatusOK, scan(e, "a1", `{}`).Code)
	assert.Equal(t, http.StatusOK, scan(e, "a1", `{}`).Code)

	blocked := scan(e, "a1", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded, retry later"}`, blocked.Body.String())
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, scan(e, "a2", `{}`).Code, "other actors keep their own bucket")
	assert.True(t, mr.Exists("rl:user:a1:route:POST /scan"))
}

func TestTokenBucketThrottlesRepeatedLocator(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := limiterConfig()
	cfg.Capacity = 100
	cfg.ScanCapacity = 1
	e := scanServer(NewTokenBucket(cfg, rdb, logrus.New()))

	body := `{"locator":"abc123","dni":"12345678Z"}`
	first := scan(e, "a1", body)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, body, first.Body.String(), "body must reach the handler intact")

	// same locator as a combined code, from another device
	again := scan(e, "a2", `{"code":"ABC123|12345678Z"}`)
	assert.Equal(t, http.StatusTooManyRequests, again.Code)
	assert.JSONEq(t, `{"error":"locator scanned too often, retry later"}`, again.Body.String())

	assert.Equal(t, http.StatusOK, scan(e, "a1", `{"locator":"XYZ789","dni":"12345678Z"}`).Code)
	assert.Equal(t, http.StatusOK, scan(e, "a1", `not json`).Code, "unparseable bodies are left to the handler")
}

func TestTokenBucketFailsOpenWhenRedisDies(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := limiterConfig()
	cfg.Capacity = 1
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := scanServer(NewTokenBucket(cfg, rdb, logger))

	assert.Equal(t, http.StatusOK, scan(e, "a1", `{}`).Code)
	mr.Close()
	assert.Equal(t, http.StatusOK, scan(e, "a1", `{}`).Code)
}
