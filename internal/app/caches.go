package app

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/whatasoda/twitch-clips-todo/internal/cache"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

// Persistent cache namespaces. Each lives under its own KVStore key so the per-instance
// document locks never contend over the same value.
const (
	StreamersCacheKey = cache.DefaultStorageKey + ".streamers"
	StreamsCacheKey   = cache.DefaultStorageKey + ".streams"
	VodsCacheKey      = cache.DefaultStorageKey + ".vods"
	VodListsCacheKey  = cache.DefaultStorageKey + ".vod_lists"
)

// CacheStorageKeys lists every persistent cache namespace.
var CacheStorageKeys = []string{StreamersCacheKey, StreamsCacheKey, VodsCacheKey, VodListsCacheKey}

// CacheEvictionInterval is how often the in-memory tiers drop expired entries.
const CacheEvictionInterval = time.Minute

// ObserverFunc returns the hit/miss observer for a named cache; nil disables observation.
type ObserverFunc func(name string) cache.Observer

// NewTwitchCaches builds a memory-over-persistent tiered cache per lookup. The returned
// function stops the memory tiers' eviction timers.
func NewTwitchCaches(store domain.KVStore, clock clockwork.Clock, observerFor ObserverFunc) (TwitchCaches, func()) {
	var stops []func()
	caches := TwitchCaches{
		Streamers: newTiered[domain.StreamerInfo](store, clock, observerFor, "streamers", StreamersCacheKey, streamerTTL, &stops),
		Streams:   newTiered[*domain.StreamInfo](store, clock, observerFor, "streams", StreamsCacheKey, streamTTL, &stops),
		Vods:      newTiered[domain.VodSummary](store, clock, observerFor, "vods", VodsCacheKey, vodTTL, &stops),
		VodLists:  newTiered[[]domain.VodSummary](store, clock, observerFor, "vod_lists", VodListsCacheKey, recentVodsTTL, &stops),
	}

	return caches, func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// newTiered caps the hydrate TTL at the lookup's own TTL so short-lived values, like live
// status, are not kept longer in memory than they would be upstream.
func newTiered[T any](store domain.KVStore, clock clockwork.Clock, observerFor ObserverFunc, name, key string, ttl time.Duration, stops *[]func()) *cache.Tiered[T] {
	var opts []cache.Option
	if observerFor != nil {
		opts = append(opts, cache.WithObserver(observerFor(name)))
	}

	fast := cache.NewMemory[T](clock, opts...)
	*stops = append(*stops, fast.StartEvictionTimer(CacheEvictionInterval))
	slow := cache.NewPersistent[T](store, key, clock, opts...)

	return cache.NewTiered[T](fast, slow, min(ttl, cache.DefaultHydrateTTL))
}
