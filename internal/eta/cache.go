package eta

import (
	"sync"
	"time"
)

type cacheKey struct {
	VehicleID string
	StopID    string
	TS        int64
}

type cacheEntry struct {
	expires time.Time
	result  *Result
}

// resultCache is a short-TTL cache of ensemble results. The latest
// position timestamp is part of the key, so new telemetry always
// misses. Concurrent writers race benignly: results for the same key
// are pure functions of the same telemetry snapshot.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

func (c *resultCache) get(key cacheKey) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.result, true
}

func (c *resultCache) set(key cacheKey, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// opportunistic sweep; entry counts stay tiny (vehicles x stops)
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{expires: now.Add(c.ttl), result: r}
}
