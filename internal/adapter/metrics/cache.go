package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/whatasoda/twitch-clips-todo/internal/cache"
)

// CacheMetrics counts hits and misses for every named cache, by layer.
type CacheMetrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits, by cache and layer.",
		}, []string{"cache", "layer"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses, by cache and layer.",
		}, []string{"cache", "layer"}),
	}

	reg.MustRegister(m.Hits, m.Misses)
	return m
}

// For returns an observer that labels every event with the cache name.
func (m *CacheMetrics) For(name string) cache.Observer {
	return cacheObserver{metrics: m, name: name}
}

type cacheObserver struct {
	metrics *CacheMetrics
	name    string
}

func (o cacheObserver) Hit(layer string)  { o.metrics.Hits.WithLabelValues(o.name, layer).Inc() }
func (o cacheObserver) Miss(layer string) { o.metrics.Misses.WithLabelValues(o.name, layer).Inc() }
