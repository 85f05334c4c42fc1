// Package storagemetrics exposes Prometheus collectors for the storage
// core, isolated from the main storage package so embedding it never
// forces a Prometheus dependency on a caller who doesn't want one —
// every field is nil-safe to skip when GlobalWriter is built with a nil
// *Collector.
//
// Grounded on quadgatefoundation-fluxor's
// pkg/observability/prometheus/metrics.go: a single promauto.With(registerer)
// struct literal, one field per series, a matching constructor.
package storagemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus series the storage core reports.
type Collector struct {
	QueueDepth        prometheus.Gauge
	PoolFillRatio     prometheus.Gauge
	SegmentsWritten   prometheus.Counter
	BytesWritten      prometheus.Counter
	WriteErrors       prometheus.Counter
	RotationCount     prometheus.Counter
	RotateStallCount  prometheus.Counter
	ActiveGuardCount  prometheus.Gauge
	RecoveredSegments prometheus.Gauge
}

// New registers and returns a Collector against registerer. Pass
// prometheus.DefaultRegisterer for the process-global registry, or a
// fresh prometheus.NewRegistry() in tests to avoid collisions between
// repeated registrations.
func New(registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := promauto.With(registerer)

	return &Collector{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "nvr_storage_writer_queue_depth",
			Help: "Number of write requests currently buffered in the global writer's FIFO.",
		}),
		PoolFillRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "nvr_storage_pool_fill_ratio",
			Help: "Fraction of the active pool slot's capacity currently in use.",
		}),
		SegmentsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "nvr_storage_segments_written_total",
			Help: "Total number of segments successfully appended to the pool.",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "nvr_storage_bytes_written_total",
			Help: "Total number of payload bytes successfully appended to the pool.",
		}),
		WriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "nvr_storage_write_errors_total",
			Help: "Total number of failed segment appends.",
		}),
		RotationCount: f.NewCounter(prometheus.CounterOpts{
			Name: "nvr_storage_rotations_total",
			Help: "Total number of pool slot rotations performed.",
		}),
		RotateStallCount: f.NewCounter(prometheus.CounterOpts{
			Name: "nvr_storage_rotate_stalls_total",
			Help: "Total number of rotations that proceeded after the rotate-stall deadline elapsed with readers still attached.",
		}),
		ActiveGuardCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "nvr_storage_active_read_guards",
			Help: "Number of outstanding read guards across all pool slots.",
		}),
		RecoveredSegments: f.NewGauge(prometheus.GaugeOpts{
			Name: "nvr_storage_recovered_segments",
			Help: "Number of segments recovered from disk during the last writer startup scan.",
		}),
	}
}
