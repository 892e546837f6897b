package cache

import (
	"context"
	"time"
)

// Cache is a TTL key/value cache. Get reports ok=false on a miss or an expired entry.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Observer receives hit/miss notifications per cache layer.
type Observer interface {
	Hit(layer string)
	Miss(layer string)
}

const (
	LayerMemory     = "memory"
	LayerPersistent = "persistent"
)

type noopObserver struct{}

func (noopObserver) Hit(string)  {}
func (noopObserver) Miss(string) {}

type options struct {
	observer Observer
}

type Option func(*options)

// WithObserver reports hits and misses to o.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{observer: noopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// entry is valid iff expiresAt is strictly after now.
type entry[T any] struct {
	data      T
	expiresAt time.Time
}

func (e entry[T]) valid(now time.Time) bool {
	return e.expiresAt.After(now)
}
