package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics tracks the key/value backend. It satisfies redis.CommandObserver,
// redis.BreakerObserver and postgres.QueryObserver.
type StorageMetrics struct {
	OpDuration         *prometheus.HistogramVec
	OpsTotal           *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
}

func NewStorageMetrics(reg prometheus.Registerer, backend string) *StorageMetrics {
	labels := prometheus.Labels{"backend": backend}
	m := &StorageMetrics{
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "storage",
			Name:        "operation_duration_seconds",
			Help:        "Duration of storage backend operations in seconds.",
			Buckets:     []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			ConstLabels: labels,
		}, []string{"operation"}),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "storage",
			Name:        "operations_total",
			Help:        "Total number of storage backend operations, by outcome.",
			ConstLabels: labels,
		}, []string{"operation", "status"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "storage",
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state (0=closed, 1=half-open, 2=open).",
			ConstLabels: labels,
		}, []string{"component"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "storage",
			Name:        "circuit_breaker_transitions_total",
			Help:        "Total number of circuit breaker state changes, by new state.",
			ConstLabels: labels,
		}, []string{"component", "state"}),
	}

	reg.MustRegister(m.OpDuration, m.OpsTotal, m.BreakerState, m.BreakerTransitions)
	return m
}

func (m *StorageMetrics) ObserveCommand(name string, failed bool, duration time.Duration) {
	m.observe(name, failed, duration)
}

func (m *StorageMetrics) ObserveQuery(name string, failed bool, duration time.Duration) {
	m.observe(name, failed, duration)
}

func (m *StorageMetrics) ObserveBreakerState(component, state string) {
	m.BreakerTransitions.WithLabelValues(component, state).Inc()
	m.BreakerState.WithLabelValues(component).Set(breakerLevel(state))
}

func breakerLevel(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}

func (m *StorageMetrics) observe(operation string, failed bool, duration time.Duration) {
	status := "success"
	if failed {
		status = "error"
	}
	m.OpsTotal.WithLabelValues(operation, status).Inc()
	m.OpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
