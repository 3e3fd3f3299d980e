package cache

import (
	"sync"
	"time"
)

// Item is a cached value with its expiry.
type Item struct {
	Data      []byte
	ExpiresAt time.Time
}

// IsExpired checks if the cache item has expired
func (i *Item) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Cache provides thread-safe in-process caching with TTL. Expired items are
// hidden from Get and removed by Sweep.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*Item
	ttl   time.Duration
	now   func() time.Time
}

// NewCache creates a new cache with the specified TTL
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[string]*Item),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || item.IsExpired(c.now()) {
		return nil, false
	}
	return item.Data, true
}

// Set stores an item in the cache
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &Item{
		Data:      data,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// DeleteMatching removes every key accepted by match and returns the count.
func (c *Cache) DeleteMatching(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.items {
		if match(key) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Sweep drops expired items and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.IsExpired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*Item)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]any {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	expired := 0
	for _, item := range c.items {
		if item.IsExpired(now) {
			expired++
		}
	}

	return map[string]any{
		"total_items":   len(c.items),
		"expired_items": expired,
		"active_items":  len(c.items) - expired,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}
