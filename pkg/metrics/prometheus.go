// Package metrics provides Prometheus metrics for the scoresync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Submission pipeline metrics
	submissionsAccepted  prometheus.Counter
	submissionsDuplicate prometheus.Counter
	submissionsRejected  *prometheus.CounterVec
	verifyLatency        prometheus.Histogram

	// Store metrics
	storeApplyLatency prometheus.Histogram
	storeQueryLatency prometheus.Histogram
	totalIdentities   *prometheus.GaugeVec

	// Queue and worker metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueDequeues    prometheus.Counter
	queueEnqueueErrs prometheus.Counter
	workerCount      prometheus.Gauge
	workerErrors     prometheus.Counter
	workerLatency    prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoresync",
		subsystem:        "board",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.submissionsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_accepted_total",
		Help:      "Total number of submissions verified and merged",
	})

	m.submissionsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_duplicate_total",
		Help:      "Total number of duplicate submissions acknowledged as no-ops",
	})

	m.submissionsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "submissions_rejected_total",
			Help:      "Total number of rejected submissions by kind",
		},
		[]string{"kind"},
	)

	m.verifyLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "verify_latency_milliseconds",
		Help:      "Histogram of signature verification latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeApplyLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_apply_latency_milliseconds",
		Help:      "Score store merge operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Score store read operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.totalIdentities = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "identities_total",
			Help:      "Number of identities tracked per scheme",
		},
		[]string{"scheme"},
	)

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the bulk submission queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured capacity of the bulk submission queue",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueues_total",
		Help:      "Total number of submissions enqueued for async merge",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeues_total",
		Help:      "Total number of submissions handed to workers",
	})

	m.queueEnqueueErrs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of failed enqueue attempts (backpressure)",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Current number of merge workers",
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of worker merge failures",
	})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Worker merge latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Package-level helpers on the global manager.

// RecordSubmissionAccepted increments the accepted submissions counter.
func RecordSubmissionAccepted() {
	globalManager.submissionsAccepted.Inc()
}

// RecordSubmissionDuplicate increments the duplicate submissions counter.
func RecordSubmissionDuplicate() {
	globalManager.submissionsDuplicate.Inc()
}

// RecordSubmissionRejected increments the rejection counter for one kind
// (unauthorized, bad_signature, stale, validation, internal).
func RecordSubmissionRejected(kind string) {
	globalManager.submissionsRejected.WithLabelValues(kind).Inc()
}

// RecordVerifyLatency records one signature verification duration.
func RecordVerifyLatency(latencyMs float64) {
	globalManager.verifyLatency.Observe(latencyMs)
}

// RecordStoreApplyLatency records one store merge duration.
func RecordStoreApplyLatency(latencyMs float64) {
	globalManager.storeApplyLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records one store read duration.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// UpdateTotalIdentities sets the identity gauge for one scheme.
func UpdateTotalIdentities(scheme string, count int) {
	globalManager.totalIdentities.WithLabelValues(scheme).Set(float64(count))
}

// UpdateQueueSize sets the current queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrs.Inc()
}

// UpdateWorkerCount sets the worker count gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordWorkerProcessingLatency records one worker merge duration.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordHTTPRequest increments the request counter for one endpoint.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records one request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom registry for the /metrics handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
