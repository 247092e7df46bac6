package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memorySweepInterval is how often expired completions are evicted
const memorySweepInterval = 10 * time.Minute

// MemoryCache holds LLM completions for the duration of a run. It is
// the hot tier: repeated chunks within one day's intake (the same
// boilerplate section across several reports) resolve here without
// touching disk.
type MemoryCache struct {
	entries *gocache.Cache
}

// NewMemoryCache creates a memory cache with the given default TTL
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{entries: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns the cached completion for key
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	v, found := c.entries.Get(key)
	if !found {
		return nil, false
	}
	return v.([]byte), true
}

// Set stores a completion under key. ttl 0 uses the cache default.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.entries.Set(key, value, ttl)
	return nil
}

// Delete drops one entry
func (c *MemoryCache) Delete(key string) error {
	c.entries.Delete(key)
	return nil
}

// Clear drops every entry
func (c *MemoryCache) Clear() error {
	c.entries.Flush()
	return nil
}
