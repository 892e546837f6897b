package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TwitchMetrics tracks upstream Helix calls and the reported rate-limit budget.
// It satisfies twitch.RequestObserver.
type TwitchMetrics struct {
	RequestDuration    *prometheus.HistogramVec
	RequestsTotal      *prometheus.CounterVec
	RateLimitRemaining prometheus.Gauge
}

func NewTwitchMetrics(reg prometheus.Registerer) *TwitchMetrics {
	m := &TwitchMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "twitch_api",
			Name:      "request_duration_seconds",
			Help:      "Duration of Twitch API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "twitch_api",
			Name:      "requests_total",
			Help:      "Total number of Twitch API requests, by endpoint and status code.",
		}, []string{"endpoint", "status_code"}),
		RateLimitRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "twitch_api",
			Name:      "rate_limit_remaining",
			Help:      "Points left in the current rate-limit window as last reported.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.RateLimitRemaining)
	return m
}

func (m *TwitchMetrics) ObserveRequest(endpoint string, status int, duration time.Duration) {
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (m *TwitchMetrics) ObserveRateLimit(remaining int) {
	m.RateLimitRemaining.Set(float64(remaining))
}
