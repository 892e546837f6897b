package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

// DefaultStorageKey is the KVStore key holding the persistent cache namespace.
const DefaultStorageKey = "twitch_cache"

var _ Cache[string] = (*Persistent[string])(nil)

// persistedEntry is the stored shape of one cache entry; ExpiresAt is epoch milliseconds.
type persistedEntry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt int64           `json:"expiresAt"`
}

// Persistent keeps every entry of the namespace in one JSON document under a single KVStore
// key. A Get that finds an expired entry rewrites the document without it.
//
// The mutex serializes read-modify-write within this process only; writers in other
// processes sharing the store are last-writer-wins.
type Persistent[T any] struct {
	mu       sync.Mutex
	store    domain.KVStore
	key      string
	clock    clockwork.Clock
	observer Observer
}

func NewPersistent[T any](store domain.KVStore, key string, clock clockwork.Clock, opts ...Option) *Persistent[T] {
	o := buildOptions(opts)
	if key == "" {
		key = DefaultStorageKey
	}
	return &Persistent[T]{
		store:    store,
		key:      key,
		clock:    clock,
		observer: o.observer,
	}
}

func (c *Persistent[T]) Get(ctx context.Context, key string) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	doc, err := c.load(ctx)
	if err != nil {
		return zero, false, err
	}

	e, ok := doc[key]
	if !ok {
		c.observer.Miss(LayerPersistent)
		return zero, false, nil
	}

	if e.ExpiresAt <= c.clock.Now().UnixMilli() {
		delete(doc, key)
		if err := c.save(ctx, doc); err != nil {
			return zero, false, err
		}
		c.observer.Miss(LayerPersistent)
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(e.Data, &value); err != nil {
		return zero, false, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}

	c.observer.Hit(LayerPersistent)
	return value, true, nil
}

func (c *Persistent[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load(ctx)
	if err != nil {
		return err
	}

	doc[key] = persistedEntry{Data: data, ExpiresAt: c.clock.Now().Add(ttl).UnixMilli()}
	return c.save(ctx, doc)
}

func (c *Persistent[T]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}

	delete(doc, key)
	return c.save(ctx, doc)
}

func (c *Persistent[T]) load(ctx context.Context) (map[string]persistedEntry, error) {
	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache namespace: %w", err)
	}

	doc := make(map[string]persistedEntry)
	if !ok || len(raw) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cache namespace: %w", err)
	}
	return doc, nil
}

func (c *Persistent[T]) save(ctx context.Context, doc map[string]persistedEntry) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode cache namespace: %w", err)
	}
	if err := c.store.Set(ctx, c.key, raw); err != nil {
		return fmt.Errorf("failed to write cache namespace: %w", err)
	}
	return nil
}
