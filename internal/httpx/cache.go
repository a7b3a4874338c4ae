package httpx

import (
	"sync"
	"time"
)

// cacheEntry stores one successful response body with its store time.
type cacheEntry struct {
	body     []byte
	storedAt time.Time
}

// responseCache keeps successful GET bodies keyed by request signature.
// Entries expire after the TTL; when capacity is exceeded the oldest
// stored entry is evicted first.
type responseCache struct {
	ttl time.Duration
	max int

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration, max int) *responseCache {
	return &responseCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) lookup(sig string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sig]
	if !ok {
		return nil, false
	}
	if time.Since(e.storedAt) >= c.ttl {
		delete(c.entries, sig)
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) store(sig string, body []byte) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[sig]; !exists && c.max > 0 {
		for len(c.entries) >= c.max {
			c.evictOldestLocked()
		}
	}
	c.entries[sig] = cacheEntry{body: body, storedAt: time.Now()}
}

// evictOldestLocked removes the entry with the earliest storedAt. Linear
// scan; the cache holds at most a few thousand small bodies.
func (c *responseCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
