package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory store whose entries expire after a TTL
type Cache[V any] struct {
	items map[string]item[V]
	mutex sync.Mutex
	now   func() time.Time
}

// New creates a new cache instance
func New[V any]() *Cache[V] {
	return &Cache[V]{
		items: make(map[string]item[V]),
		now:   time.Now,
	}
}

// Get retrieves a live entry, dropping it if it has expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(it.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores an entry for ttl
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Update replaces a live entry with fn(current, true) and keeps its expiry.
// A missing or expired entry becomes fn(zero, false) and lives for ttl.
func (c *Cache[V]) Update(key string, ttl time.Duration, fn func(current V, found bool) V) V {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	it, ok := c.items[key]
	if ok && now.Before(it.expiresAt) {
		it.value = fn(it.value, true)
	} else {
		var zero V
		it = item[V]{value: fn(zero, false), expiresAt: now.Add(ttl)}
	}
	c.items[key] = it
	return it.value
}

// Delete removes an entry
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Purge drops every expired entry and returns how many were removed
func (c *Cache[V]) Purge() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
func (c *Cache[V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Counter counts hits per key in fixed windows that start at the first hit
type Counter struct {
	hits   *Cache[int]
	window time.Duration
}

// NewCounter creates a counter with the given window
func NewCounter(window time.Duration) *Counter {
	return &Counter{hits: New[int](), window: window}
}

// Hit records one hit for key and returns the count in the current window
func (c *Counter) Hit(key string) int {
	return c.hits.Update(key, c.window, func(n int, _ bool) int { return n + 1 })
}

// Purge drops finished windows
func (c *Counter) Purge() int {
	return c.hits.Purge()
}
