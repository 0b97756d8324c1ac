package config

import "time"

// CacheConfig controls the Redis response cache on GET /v1/stats.  The
// dashboard polls the aggregate, which is computed with a full scan of
// today's ping events, so a few seconds of staleness is acceptable.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled:      envBool("STATS_CACHE_ENABLED", true),
		TTL:          envDur("STATS_CACHE_TTL", 15*time.Second),
		Prefix:       envStr("STATS_CACHE_PREFIX", "slotwatcher:cache"),
		MaxBodyBytes: envInt("STATS_CACHE_MAX_BODY_BYTES", 64<<10),
	}
	if c.TTL <= 0 {
		c.TTL = 15 * time.Second
	}
	return c
}
