package config

import (
	"os"
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache used on the static
// venue route.  Seat snapshots are never cached: they must reflect the
// store.  When Enabled is false or no Redis client is configured, caching
// is disabled.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  The
// venue layout never changes while the process runs, so the default TTL is
// long.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      getenv("CACHE_ENABLED", "true") == "true",
		Methods:      parseMethods(getenv("CACHE_METHODS", "GET,HEAD")),
		TTL:          envDur("CACHE_TTL", 10*time.Minute),
		KeyStrategy:  getenv("CACHE_KEY_STRATEGY", "method_route"),
		Prefix:       getenv("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
