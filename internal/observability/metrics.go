// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sampling metrics
	SamplesProcessed prometheus.Counter
	SampleErrors     *prometheus.CounterVec

	// Aggregation metrics
	CandlesClosed    prometheus.Counter
	CandlesPersisted prometheus.Counter
	TrackedTokens    prometheus.Gauge

	// Discovery metrics
	CandidatesSeen     prometheus.Counter
	CandidatesEnqueued prometheus.Counter

	// Backfill metrics
	TasksDone     prometheus.Counter
	TasksRetried  prometheus.Counter
	TasksFailed   prometheus.Counter
	DrainDuration prometheus.Histogram

	// Signal metrics
	SignalsEmitted prometheus.Counter

	// Upstream metrics
	UpstreamCallLatency *prometheus.HistogramVec
	UpstreamRateLimited prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_radar"
	}

	return &Metrics{
		SamplesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampling",
			Name:      "samples_processed_total",
			Help:      "Total number of live price samples processed",
		}),
		SampleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampling",
			Name:      "sample_errors_total",
			Help:      "Total number of sampling errors by source",
		}, []string{"source"}),

		CandlesClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "candles_closed_total",
			Help:      "Total number of candles closed",
		}),
		CandlesPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "candles_persisted_total",
			Help:      "Total number of candles written to storage",
		}),
		TrackedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "tracked_tokens",
			Help:      "Number of tokens currently tracked",
		}),

		CandidatesSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_seen_total",
			Help:      "Total number of discovery candidates observed",
		}),
		CandidatesEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_enqueued_total",
			Help:      "Total number of candidates enqueued for backfill",
		}),

		TasksDone: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "tasks_done_total",
			Help:      "Total number of backfill tasks completed",
		}),
		TasksRetried: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "tasks_retried_total",
			Help:      "Total number of backfill task attempts left pending for retry",
		}),
		TasksFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "tasks_failed_total",
			Help:      "Total number of backfill tasks failed permanently",
		}),
		DrainDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "drain_duration_seconds",
			Help:      "Duration of backfill queue drain passes",
			Buckets:   prometheus.DefBuckets,
		}),

		SignalsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "emitted_total",
			Help:      "Total number of trigger signals emitted",
		}),

		UpstreamCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_latency_seconds",
			Help:      "Upstream API call latency by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		UpstreamRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "rate_limited_total",
			Help:      "Total number of upstream 429 responses",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration by store and operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors by store and operation",
		}, []string{"store", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSample increments the samples processed counter.
func RecordSample() {
	DefaultMetrics.SamplesProcessed.Inc()
}

// RecordSampleError records a sampling error for the given source.
func RecordSampleError(source string) {
	DefaultMetrics.SampleErrors.WithLabelValues(source).Inc()
}

// RecordCandleClosed increments the candles closed counter.
func RecordCandleClosed(persisted bool) {
	DefaultMetrics.CandlesClosed.Inc()
	if persisted {
		DefaultMetrics.CandlesPersisted.Inc()
	}
}

// SetTrackedTokens updates the tracked tokens gauge.
func SetTrackedTokens(n int) {
	DefaultMetrics.TrackedTokens.Set(float64(n))
}

// RecordCandidates records one discovery batch.
func RecordCandidates(seen, enqueued int) {
	DefaultMetrics.CandidatesSeen.Add(float64(seen))
	DefaultMetrics.CandidatesEnqueued.Add(float64(enqueued))
}

// RecordDrain records the outcome of one drain pass.
func RecordDrain(done, retried, failed int, seconds float64) {
	DefaultMetrics.TasksDone.Add(float64(done))
	DefaultMetrics.TasksRetried.Add(float64(retried))
	DefaultMetrics.TasksFailed.Add(float64(failed))
	DefaultMetrics.DrainDuration.Observe(seconds)
}

// RecordSignal increments the signals emitted counter.
func RecordSignal() {
	DefaultMetrics.SignalsEmitted.Inc()
}

// RecordRateLimited increments the upstream 429 counter.
func RecordRateLimited() {
	DefaultMetrics.UpstreamRateLimited.Inc()
}

// ObserveUpstreamCall records the latency of one upstream API request.
func ObserveUpstreamCall(endpoint string, start time.Time) {
	DefaultMetrics.UpstreamCallLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// ObserveQuery records the duration and outcome of one store operation.
func ObserveQuery(store, operation string, start time.Time, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}
