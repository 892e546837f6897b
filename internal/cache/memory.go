package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var _ Cache[string] = (*Memory[string])(nil)

// Memory is an in-process TTL cache. Safe for concurrent use.
type Memory[T any] struct {
	mu       sync.Mutex
	entries  map[string]entry[T]
	clock    clockwork.Clock
	observer Observer
}

func NewMemory[T any](clock clockwork.Clock, opts ...Option) *Memory[T] {
	o := buildOptions(opts)
	return &Memory[T]{
		entries:  make(map[string]entry[T]),
		clock:    clock,
		observer: o.observer,
	}
}

// Get returns the cached value, evicting it when expired.
func (c *Memory[T]) Get(_ context.Context, key string) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		c.observer.Miss(LayerMemory)
		return zero, false, nil
	}

	if !e.valid(c.clock.Now()) {
		delete(c.entries, key)
		c.observer.Miss(LayerMemory)
		return zero, false, nil
	}

	c.observer.Hit(LayerMemory)
	return e.data, true, nil
}

func (c *Memory[T]) Set(_ context.Context, key string, value T, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[T]{data: value, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

func (c *Memory[T]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Size returns the number of entries, including expired ones not yet evicted.
func (c *Memory[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// EvictExpired removes all expired entries and returns how many were dropped.
func (c *Memory[T]) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, e := range c.entries {
		if !e.valid(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer sweeps expired entries every interval until the returned stop
// function is called.
func (c *Memory[T]) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired cache entries", "count", evicted, "remaining", c.Size())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
