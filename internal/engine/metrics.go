package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics live on a private registry that the HTTP API exposes at /metrics.
type Metrics struct {
	Registry  *prometheus.Registry
	writes    *prometheus.CounterVec
	rollbacks prometheus.Counter
	filter    prometheus.Histogram
	snapshot  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kilnline_writes_total",
			Help: "Persisted writes by kind and result.",
		}, []string{"kind", "result"}),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "kilnline_write_rollbacks_total",
			Help: "Optimistic writes reverted after the collaborator rejected them.",
		}),
		filter: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kilnline_filter_duration_seconds",
			Help:    "Time spent evaluating filter criteria against the snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		snapshot: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kilnline_snapshot_records",
			Help: "Records held in the in-memory snapshot.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) write(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.rollbacks.Inc()
	}
	m.writes.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) observeFilter(start time.Time) {
	if m == nil {
		return
	}
	m.filter.Observe(time.Since(start).Seconds())
}

func (m *Metrics) snapshotSize(orders, items int) {
	if m == nil {
		return
	}
	m.snapshot.WithLabelValues("orders").Set(float64(orders))
	m.snapshot.WithLabelValues("items").Set(float64(items))
}
