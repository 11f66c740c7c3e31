package pack

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments a Driver updates over the
// course of a pack run, grounded on cuemby-warren/pkg/metrics/metrics.go's
// package-level metric vars. Unlike that package, these are instance
// fields rather than package globals: a library embedded in a long-lived
// server must let its caller choose the registry (or register none at
// all), not force a process-wide prometheus.MustRegister at import time.
// Driver does not update BytesFreed; it is registered with the others and
// stays at zero.
type Metrics struct {
	PackDuration     prometheus.Histogram
	BytesFreed       prometheus.Counter
	RecordsCopied    *prometheus.CounterVec
	ReachableObjects prometheus.Gauge
	PacksTotal       *prometheus.CounterVec
}

// NewMetrics constructs a fresh, unregistered Metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		PackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "objpack_pack_duration_seconds",
			Help:    "Wall-clock duration of a full pack run.",
			Buckets: prometheus.DefBuckets,
		}),
		BytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "objpack_bytes_freed_total",
			Help: "Total bytes reclaimed by completed pack runs.",
		}),
		RecordsCopied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "objpack_records_copied_total",
			Help: "Total data records copied, by phase.",
		}, []string{"phase"}),
		ReachableObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "objpack_reachable_objects",
			Help: "Number of objects found reachable by the last GC mark phase.",
		}),
		PacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "objpack_packs_total",
			Help: "Total pack runs, by outcome.",
		}, []string{"outcome"}),
	}
}

// MustRegister registers every instrument on reg. Panics on duplicate
// registration, matching prometheus.MustRegister's own contract — callers
// embedding objpack in a server with its own registry are expected to call
// this once at startup.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.PackDuration,
		m.BytesFreed,
		m.RecordsCopied,
		m.ReachableObjects,
		m.PacksTotal,
	)
}

// packTimer is the Metrics-facing counterpart of cuemby-warren's
// metrics.Timer: start a clock, later hand it a histogram to observe into.
type packTimer struct {
	start time.Time
}

func newPackTimer() packTimer {
	return packTimer{start: time.Now()}
}

func (t packTimer) observeDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

const (
	outcomePacked    = "packed"
	outcomeRedundant = "redundant"
	outcomeFailed    = "failed"
)
