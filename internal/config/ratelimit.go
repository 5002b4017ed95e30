package config

import "time"

// RateLimitConfig controls the Redis token bucket placed in front of the
// validation endpoint.  Scanning devices retry aggressively on flaky
// networks, so the bucket is keyed per authenticated actor by default.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool

	// Per-locator bucket shared by every actor.  It absorbs retry storms
	// from scanners re-reading the same ticket.  Zero capacity disables it.
	ScanCapacity       int
	ScanRefillInterval time.Duration
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 30),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),

		ScanCapacity:       envInt("RATE_LIMIT_SCAN_CAPACITY", 5),
		ScanRefillInterval: envDur("RATE_LIMIT_SCAN_REFILL_INTERVAL", 2*time.Second),
	}
	if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if def.ScanCapacity < 0 {
		def.ScanCapacity = 0
	}
	if def.ScanRefillInterval <= 0 {
		def.ScanRefillInterval = 2 * time.Second
	}
	if minTTL := 5 * max(def.RefillInterval, def.ScanRefillInterval); def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}
