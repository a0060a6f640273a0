package prompts

import (
	"sync"
	"time"
)

// Cache is a process-scoped string cache with a fixed TTL, injected into the
// components that need one (prompt text, expertise documents) so expiry is
// explicit rather than ambient.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value    string
	fetched  time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the cached value for key if it is still fresh.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Since(e.fetched) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores a value under key.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, fetched: time.Now()}
}

// GetOrFetch returns the cached value or fetches, caches and returns a fresh
// one. Fetch errors are not cached.
func (c *Cache) GetOrFetch(key string, fetch func() (string, error)) (string, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		return "", err
	}
	c.Set(key, v)
	return v, nil
}
