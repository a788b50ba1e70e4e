// Package settings provides a small TTL cache for operational settings
// that are read on every request but change rarely, such as the admin IP
// whitelist. The cache is an explicit object constructed at startup and
// passed to its consumers; the clock and loader are injected so tests can
// substitute both.
package settings

import (
	"context"
	"sync"
	"time"
)

// Loader fetches the current value from the authoritative source.
type Loader[T any] func(ctx context.Context) (T, error)

// Cache memoizes a single value for a configurable TTL.
type Cache[T any] struct {
	ttl    time.Duration
	now    func() time.Time
	loader Loader[T]

	mu       sync.Mutex
	value    T
	loadedAt time.Time
	loaded   bool
}

// New constructs a cache around the loader. A zero or negative ttl
// disables caching and every Get hits the loader.
func New[T any](ttl time.Duration, loader Loader[T]) *Cache[T] {
	return &Cache[T]{ttl: ttl, now: time.Now, loader: loader}
}

// WithClock overrides the time source. Test helper.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// Get returns the cached value, reloading it when the TTL has elapsed.
// A failed reload keeps serving the previous value if one exists, so a
// transient store outage does not take the consumer down.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.loaded && c.ttl > 0 && now.Sub(c.loadedAt) < c.ttl {
		return c.value, nil
	}
	value, err := c.loader(ctx)
	if err != nil {
		if c.loaded {
			return c.value, nil
		}
		var zero T
		return zero, err
	}
	c.value = value
	c.loadedAt = now
	c.loaded = true
	return c.value, nil
}

// Invalidate drops the cached value so the next Get reloads.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
}
