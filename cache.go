package main

import (
	"sync"
	"time"
)

// TTLCache holds a single value that goes stale after ttl.
type TTLCache[T any] struct {
	mu          sync.RWMutex
	value       T
	present     bool
	lastUpdated time.Time
	ttl         time.Duration
	now         func() time.Time
}

// NewTTLCache creates a cache with the specified TTL. A non-positive TTL
// disables caching.
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached value and whether it is present and fresh.
func (c *TTLCache[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		var zero T
		return zero, false
	}
	return c.value, true
}

// Set stores a value and resets its age.
func (c *TTLCache[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.present = true
	c.lastUpdated = c.now()
}

// Clear drops the cached value.
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	c.value = zero
	c.present = false
	c.lastUpdated = time.Time{}
}

// GetLastUpdated returns when the cache was last updated
func (c *TTLCache[T]) GetLastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastUpdated
}

// IsExpired reports whether Get would miss.
func (c *TTLCache[T]) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return !c.fresh()
}

func (c *TTLCache[T]) fresh() bool {
	if !c.present || c.ttl <= 0 {
		return false
	}
	return c.now().Sub(c.lastUpdated) <= c.ttl
}
