package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/whatasoda/twitch-clips-todo/internal/app"
)

// DiscoveryMetrics tracks VOD discovery passes. It satisfies app.DiscoveryObserver.
type DiscoveryMetrics struct {
	RunDuration   prometheus.Histogram
	RunsTotal     prometheus.Counter
	Streamers     *prometheus.CounterVec
	LinkedRecords prometheus.Counter
}

func NewDiscoveryMetrics(reg prometheus.Registerer) *DiscoveryMetrics {
	m := &DiscoveryMetrics{
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "run_duration_seconds",
			Help:      "Duration of VOD discovery passes in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Total number of VOD discovery passes.",
		}),
		Streamers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "streamers_total",
			Help:      "Streamers processed by discovery, by outcome.",
		}, []string{"outcome"}),
		LinkedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "linked_records_total",
			Help:      "Total number of records linked to a VOD by discovery.",
		}),
	}

	reg.MustRegister(m.RunDuration, m.RunsTotal, m.Streamers, m.LinkedRecords)
	return m
}

var _ app.DiscoveryObserver = (*DiscoveryMetrics)(nil)

func (m *DiscoveryMetrics) ObserveDiscovery(duration time.Duration, results []app.DiscoveryResult) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(duration.Seconds())

	for _, r := range results {
		outcome := "ok"
		if r.Error != "" {
			outcome = "error"
		}
		m.Streamers.WithLabelValues(outcome).Inc()
		m.LinkedRecords.Add(float64(r.LinkedCount))
	}
}
