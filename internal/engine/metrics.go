package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"charterline/internal/domain"
)

// Metrics counts engine operations by outcome. Each Engine owns a registry
// so several engines can coexist in one process (tests, embedded use).
type Metrics struct {
	Registry   *prometheus.Registry
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charterline_operations_total",
			Help: "Mutating governance operations by outcome.",
		}, []string{"operation", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "charterline_operation_duration_seconds",
			Help:    "Time spent inside a serialized mutation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	m.Registry.MustRegister(m.Operations, m.Duration)
	return m
}

func (m *Metrics) observe(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, domain.Code(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(d.Seconds())
}
