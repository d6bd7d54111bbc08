// Package metrics implements the pipeline's observability surface using
// prometheus/client_golang. It exposes counters and histograms for the
// quantities spec.md singles out (parse failures, sanity drops, OUI
// exclusions, delivery retries and loss, batch size and delivery latency)
// plus a Snapshot for a tiny in-process activity view.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus counters and histograms for the ingestion and
// positioning pipelines. Counters also keep an atomic shadow value so
// Snapshot() can be read cheaply without scraping the registry, following
// the teacher's atomic-counter style.
type Metrics struct {
	ParseFailures   prometheus.Counter
	SanityDrops     prometheus.Counter
	OUIExcluded     prometheus.Counter
	DeliveryRetries prometheus.Counter
	DeliveryLoss    prometheus.Counter
	RecordsAccepted prometheus.Counter
	BatchesFlushed  prometheus.Counter

	BatchSize       prometheus.Histogram
	DeliveryLatency prometheus.Histogram

	AlgorithmSelected *prometheus.CounterVec
	AlgorithmDisabled *prometheus.CounterVec

	parseFailures   atomic.Int64
	sanityDrops     atomic.Int64
	ouiExcluded     atomic.Int64
	deliveryRetries atomic.Int64
	deliveryLoss    atomic.Int64
	recordsAccepted atomic.Int64
	batchesFlushed  atomic.Int64
}

// New creates a Metrics instance and registers its collectors with reg. A
// caller typically passes prometheus.NewRegistry() to keep registration
// isolated from the default global registry, following the pattern used by
// the sibling service's metrics setup.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_parse_failures_total",
			Help: "Upload events or object lines that failed to parse.",
		}),
		SanityDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_sanity_drops_total",
			Help: "Records dropped by stage-1 sanity filtering.",
		}),
		OUIExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_oui_excluded_total",
			Help: "AP observations matching the mobile-hotspot OUI blacklist under the EXCLUDE or LOG_ONLY action.",
		}),
		DeliveryRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_delivery_retries_total",
			Help: "Batch delivery attempts that were retried after a transient failure.",
		}),
		DeliveryLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_delivery_loss_total",
			Help: "Records lost in delivery: permanent or unknown errors, exhausted retries, or cancellation.",
		}),
		RecordsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_records_accepted_total",
			Help: "Records that passed transformation and were queued for delivery.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_batches_flushed_total",
			Help: "Batches flushed to the delivery sink.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_batch_size_records",
			Help:    "Number of records per flushed batch.",
			Buckets: prometheus.LinearBuckets(0, 50, 12),
		}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_delivery_latency_seconds",
			Help:    "Latency of a single batch delivery attempt.",
			Buckets: prometheus.DefBuckets,
		}),
		AlgorithmSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "positioning_algorithm_selected_total",
			Help: "Number of times a positioning algorithm was selected for fusion.",
		}, []string{"name"}),
		AlgorithmDisabled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "positioning_algorithm_disabled_total",
			Help: "Number of times a selected positioning algorithm was skipped, labeled by reason.",
		}, []string{"name", "factor"}),
	}

	reg.MustRegister(
		m.ParseFailures, m.SanityDrops, m.OUIExcluded, m.DeliveryRetries,
		m.DeliveryLoss, m.RecordsAccepted, m.BatchesFlushed,
		m.BatchSize, m.DeliveryLatency, m.AlgorithmSelected, m.AlgorithmDisabled,
	)

	return m
}

// ObserveDelivery records a single delivery attempt's latency.
func (m *Metrics) ObserveDelivery(d time.Duration) {
	m.DeliveryLatency.Observe(d.Seconds())
}

// ObserveBatch records a flushed batch's size.
func (m *Metrics) ObserveBatch(size int) {
	m.BatchSize.Observe(float64(size))
	m.BatchesFlushed.Inc()
	m.batchesFlushed.Add(1)
}

// IncParseFailures increments the parse-failure counter.
func (m *Metrics) IncParseFailures() {
	m.ParseFailures.Inc()
	m.parseFailures.Add(1)
}

// IncSanityDrops increments the sanity-drop counter.
func (m *Metrics) IncSanityDrops() {
	m.SanityDrops.Inc()
	m.sanityDrops.Add(1)
}

// IncOUIExcluded increments the OUI-exclusion counter.
func (m *Metrics) IncOUIExcluded() {
	m.OUIExcluded.Inc()
	m.ouiExcluded.Add(1)
}

// IncDeliveryRetries increments the delivery-retry counter.
func (m *Metrics) IncDeliveryRetries() {
	m.DeliveryRetries.Inc()
	m.deliveryRetries.Add(1)
}

// IncDeliveryLoss increments the permanent-loss counter by n records.
func (m *Metrics) IncDeliveryLoss(n int) {
	m.DeliveryLoss.Add(float64(n))
	m.deliveryLoss.Add(int64(n))
}

// IncRecordsAccepted increments the accepted-records counter.
func (m *Metrics) IncRecordsAccepted() {
	m.RecordsAccepted.Inc()
	m.recordsAccepted.Add(1)
}

// IncAlgorithmSelected records that the named positioning algorithm was
// selected for fusion.
func (m *Metrics) IncAlgorithmSelected(name string) {
	m.AlgorithmSelected.WithLabelValues(name).Inc()
}

// IncAlgorithmDisabled records that the named positioning algorithm was
// disabled or skipped, tagged with the reason.
func (m *Metrics) IncAlgorithmDisabled(name, reason string) {
	m.AlgorithmDisabled.WithLabelValues(name, reason).Inc()
}

// Snapshot is a point-in-time activity view, consumed by the coordinator's
// Snapshot() method. It supplements the Prometheus registry with a value
// that is cheap to read without scraping, matching the design note "health
// is an observable, not a gate."
type Snapshot struct {
	RecordsAccepted int64 `json:"recordsAccepted"`
	ParseFailures   int64 `json:"parseFailures"`
	SanityDrops     int64 `json:"sanityDrops"`
	OUIExcluded     int64 `json:"ouiExcluded"`
	DeliveryRetries int64 `json:"deliveryRetries"`
	DeliveryLoss    int64 `json:"deliveryLoss"`
	BatchesFlushed  int64 `json:"batchesFlushed"`
}

// Snapshot returns the current activity counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RecordsAccepted: m.recordsAccepted.Load(),
		ParseFailures:   m.parseFailures.Load(),
		SanityDrops:     m.sanityDrops.Load(),
		OUIExcluded:     m.ouiExcluded.Load(),
		DeliveryRetries: m.deliveryRetries.Load(),
		DeliveryLoss:    m.deliveryLoss.Load(),
		BatchesFlushed:  m.batchesFlushed.Load(),
	}
}
