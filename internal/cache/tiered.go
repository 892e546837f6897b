package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultHydrateTTL is the fast-tier TTL used when a value is copied up from the slow tier,
// whose stored entry does not expose its original TTL.
const DefaultHydrateTTL = 5 * time.Minute

var _ Cache[string] = (*Tiered[string])(nil)

// Tiered reads fast then slow and writes both. The fast tier is process-local and is not
// invalidated by writes to the slow tier from elsewhere; use Delete when staleness matters.
type Tiered[T any] struct {
	fast       Cache[T]
	slow       Cache[T]
	hydrateTTL time.Duration
}

func NewTiered[T any](fast, slow Cache[T], hydrateTTL time.Duration) *Tiered[T] {
	if hydrateTTL <= 0 {
		hydrateTTL = DefaultHydrateTTL
	}
	return &Tiered[T]{fast: fast, slow: slow, hydrateTTL: hydrateTTL}
}

func (c *Tiered[T]) Get(ctx context.Context, key string) (T, bool, error) {
	value, ok, err := c.fast.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Fast cache tier read failed", "key", key, "error", err)
	} else if ok {
		return value, true, nil
	}

	value, ok, err = c.slow.Get(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}

	if err := c.fast.Set(ctx, key, value, c.hydrateTTL); err != nil {
		slog.WarnContext(ctx, "Failed to hydrate fast cache tier", "key", key, "error", err)
	}
	return value, true, nil
}

// Set writes both tiers in parallel and returns once both have finished.
func (c *Tiered[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	var g errgroup.Group
	g.Go(func() error { return c.fast.Set(ctx, key, value, ttl) })
	g.Go(func() error { return c.slow.Set(ctx, key, value, ttl) })
	return g.Wait()
}

// Delete removes key from both tiers in parallel and returns once both have finished.
func (c *Tiered[T]) Delete(ctx context.Context, key string) error {
	var g errgroup.Group
	g.Go(func() error { return c.fast.Delete(ctx, key) })
	g.Go(func() error { return c.slow.Delete(ctx, key) })
	return g.Wait()
}
