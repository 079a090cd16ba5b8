package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value      V
	expiration int64
}

// MemoryCache is a TTL map with lazy expiration on Get.
type MemoryCache[V any] struct {
	items map[string]item[V]
	mu    sync.RWMutex
	now   func() time.Time
}

func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{
		items: make(map[string]item[V]),
		now:   time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *MemoryCache[V]) WithClock(now func() time.Time) *MemoryCache[V] {
	c.now = now
	return c
}

func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{
		value:      value,
		expiration: c.now().Add(ttl).UnixNano(),
	}
}

func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	it, found := c.items[key]
	if !found {
		return zero, false
	}

	if c.now().UnixNano() > it.expiration {
		return zero, false
	}

	return it.value, true
}

func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Purge removes expired entries and returns how many were dropped.
func (c *MemoryCache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	n := 0
	for k, it := range c.items {
		if now > it.expiration {
			delete(c.items, k)
			n++
		}
	}
	return n
}
