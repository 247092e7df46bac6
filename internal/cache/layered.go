package cache

import "time"

// LayeredCache fronts the disk cache with the in-memory tier. The run
// reads through memory first; disk hits are promoted so repeated chunks
// in the same run stay hot.
type LayeredCache struct {
	memory Cache
	disk   Cache
}

// NewLayeredCache wires a memory tier over a disk tier
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, memorySweepInterval),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

// Get reads memory first, then disk. A disk hit is promoted to memory
// at the memory tier's default TTL.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	if val, found := c.disk.Get(key); found {
		_ = c.memory.Set(key, val, 0)
		return val, true
	}

	return nil, false
}

// Set writes through to both tiers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

// Delete drops the entry from both tiers
func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	return c.disk.Delete(key)
}

// Clear drops both tiers
func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	return c.disk.Clear()
}
