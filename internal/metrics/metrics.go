// Package metrics exposes Prometheus metrics for an upload run.
//
// Collectors live on a registry owned by the run rather than the global
// default, so tests and repeated runs in one process never collide.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/elastic-upload/internal/bulk"
)

const namespace = "elastic_upload"

// Batch outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	Registry *prometheus.Registry

	recordsRead    prometheus.Counter
	batches        *prometheus.CounterVec
	recordsIndexed prometheus.Counter
	itemFailures   prometheus.Counter
	uploadDuration prometheus.Histogram
}

// New registers the run collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		recordsRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Records read from the input.",
		}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Bulk requests by outcome.",
		}, []string{"outcome"}),
		recordsIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_indexed_total",
			Help:      "Records accepted by the cluster.",
		}),
		itemFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_failures_total",
			Help:      "Records rejected by the cluster.",
		}),
		uploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_upload_duration_seconds",
			Help:      "Duration of bulk requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// TrackInput exposes bytesRead as the input_bytes_read gauge. It is
// sampled at scrape time, so fn must be safe for concurrent use.
func (m *Metrics) TrackInput(fn func() int64) {
	promauto.With(m.Registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "input_bytes_read",
		Help:      "Stored bytes consumed from the input.",
	}, func() float64 { return float64(fn()) })
}

// ObserveRecords counts records pulled for a batch.
func (m *Metrics) ObserveRecords(n int) {
	m.recordsRead.Add(float64(n))
}

// ObserveOutcome records a completed bulk request.
func (m *Metrics) ObserveOutcome(out bulk.Outcome) {
	label := OutcomeSuccess
	if out.Kind == bulk.Partial {
		label = OutcomePartial
	}
	m.batches.WithLabelValues(label).Inc()
	m.recordsIndexed.Add(float64(out.Indexed))
	m.itemFailures.Add(float64(len(out.Failures)))
	m.uploadDuration.Observe(out.Took.Seconds())
}

// ObserveError records a bulk request that ended the run.
func (m *Metrics) ObserveError() {
	m.batches.WithLabelValues(OutcomeError).Inc()
}
