package metrics

import (
	"sync"
	"time"
)

// Cache is the memoization seam for repeated metric computations. The
// interface is deliberately narrow so a shared backend (e.g. Redis) can be
// dropped in later; the local variant is the fallback selected at startup.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// NopCache disables memoization. Every computation hits the log.
type NopCache struct{}

func (NopCache) Get(string) ([]byte, bool)         { return nil, false }
func (NopCache) Set(string, []byte, time.Duration) {}

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalCache is an in-process TTL cache safe for concurrent use.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
}

// NewLocalCache creates an empty LocalCache.
func NewLocalCache() *LocalCache {
	return &LocalCache{entries: make(map[string]localEntry)}
}

// Get returns the cached value if present and unexpired.
func (c *LocalCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with the given TTL, overwriting any existing entry.
func (c *LocalCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}

	// Opportunistically drop expired entries so the map does not grow
	// without bound under rotating keys.
	if len(c.entries) > 1024 {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
}
