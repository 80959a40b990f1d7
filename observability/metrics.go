// Package observability exposes prometheus metrics for the settlement path.
// Exporter and registry wiring belong to the host application.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	settlementAttempts *prometheus.CounterVec
	settlementDuration *prometheus.HistogramVec
}

// NewMetrics registers the settlement metric family on the given registerer.
// A nil registerer yields a standalone registry, useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		settlementAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestwatch",
			Subsystem: "payments",
			Name:      "settlement_attempts_total",
			Help:      "Settlement attempts by backend and outcome.",
		}, []string{"backend", "outcome"}),
		settlementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nestwatch",
			Subsystem: "payments",
			Name:      "settlement_duration_seconds",
			Help:      "Wall time of settlement attempts by backend.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"backend"}),
	}

	reg.MustRegister(m.settlementAttempts, m.settlementDuration)
	return m
}

func (m *Metrics) ObserveSettlement(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settlementAttempts.WithLabelValues(backend, outcome).Inc()
	m.settlementDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func provideMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// Module wires settlement metrics against the default registerer.
var Module = fx.Module("observability",
	fx.Provide(provideMetrics),
)
