// Package metrics exposes store and lock activity as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/flywheel/internal/store"
)

const namespace = "flywheel"

// StoreMetrics records store events. It implements store.Observer.
type StoreMetrics struct {
	// Operations counts completed store operations by op and outcome code.
	Operations *prometheus.CounterVec

	// Duration measures store operation latency in seconds.
	Duration *prometheus.HistogramVec

	// Entries tracks the entry count seen by the last successful operation.
	Entries *prometheus.GaugeVec

	// CacheHits counts loads served from the in-memory cache.
	CacheHits prometheus.Counter
}

var _ store.Observer = (*StoreMetrics)(nil)

// NewStoreMetrics creates the store collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &StoreMetrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of store operations by op and outcome code",
			},
			[]string{"op", "code"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of store operations in seconds",
				// From a cached load (microseconds) to a lock wait at the default timeout.
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		Entries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_entries",
				Help:      "Number of entries seen by the last successful operation",
			},
			[]string{"path"},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_cache_hits_total",
				Help:      "Total number of loads served from the cache",
			},
		),
	}
}

// ObserveStoreEvent updates the collectors from ev.
func (m *StoreMetrics) ObserveStoreEvent(_ context.Context, ev store.Event) {
	m.Operations.WithLabelValues(ev.Op, ev.Code()).Inc()
	m.Duration.WithLabelValues(ev.Op).Observe(ev.Duration.Seconds())
	if ev.Cached {
		m.CacheHits.Inc()
	}
	if ev.Err == nil {
		m.Entries.WithLabelValues(ev.Path).Set(float64(ev.Count))
	}
}
