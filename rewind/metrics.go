package rewind

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pipeline's Prometheus collectors. They live on a
// caller-owned registry so concurrent uploads never share hidden state.
type Metrics struct {
	// BytesRead counts bytes pulled from upload sources.
	BytesRead prometheus.Counter
	// Conversations counts array elements by result: classified, empty or skipped.
	Conversations *prometheus.CounterVec
	// Runs counts finished pipeline runs by outcome and error kind.
	Runs *prometheus.CounterVec
	// RunDuration observes end-to-end run time.
	RunDuration prometheus.Histogram
	// QueueHighWater is the largest number of bytes buffered between the
	// reading and parsing halves of the latest run.
	QueueHighWater prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "rewind_bytes_read_total",
			Help: "Total number of export bytes read",
		}),
		Conversations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rewind_conversations_total",
			Help: "Total number of export conversations by classification result",
		}, []string{"result"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rewind_runs_total",
			Help: "Total number of pipeline runs",
		}, []string{"outcome", "error_type"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		QueueHighWater: f.NewGauge(prometheus.GaugeOpts{
			Name: "rewind_queue_high_water_bytes",
			Help: "Peak bytes buffered between reader and parser in the latest run",
		}),
	}
}
