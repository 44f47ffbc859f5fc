// Package metrics provides Prometheus metrics for the greenledger service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Intake Metrics - Event ingestion quality
	eventsIngested  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsRejected  *prometheus.CounterVec
	intakeLatency   prometheus.Histogram

	// Pledge Metrics
	pledgesCreated prometheus.Counter

	// Queue Metrics - Intake queue health
	queueCapacity prometheus.Gauge
	queueSize     prometheus.Gauge
	queueEnqueues prometheus.Counter
	queueDequeues prometheus.Counter
	queueRejects  *prometheus.CounterVec

	// Worker Metrics
	workerCount prometheus.Gauge

	// Report Metrics - Generation pipeline and narrative service calls
	reportsRequested  prometheus.Counter
	reportsDeduped    prometheus.Counter
	reportsReady      prometheus.Counter
	reportsFailed     prometheus.Counter
	reportCallLatency prometheus.Histogram
	reportCallErrors  prometheus.Counter
	reportCallRetries prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics - Detailed error tracking
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "greenledger",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
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

	// Intake Metrics
	m.eventsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_ingested_total",
		Help:      "Total number of progress events appended to the ledger",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of duplicate progress events detected",
	})

	m.eventsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_rejected_total",
			Help:      "Total number of progress events rejected, by reason",
		},
		[]string{"reason"},
	)

	m.intakeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "intake_latency_milliseconds",
		Help:      "Histogram of queue-to-ledger intake latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Pledge Metrics
	m.pledgesCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pledges_created_total",
		Help:      "Total number of pledges created",
	})

	// Queue Metrics
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured capacity of the intake queue",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the intake queue (backlog indicator)",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueues_total",
		Help:      "Total number of events accepted by the intake queue",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeues_total",
		Help:      "Total number of events handed to workers",
	})

	m.queueRejects = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "queue_rejects_total",
			Help:      "Total number of enqueue rejections, by reason",
		},
		[]string{"reason"},
	)

	// Worker Metrics
	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Current number of intake workers (processing capacity)",
	})

	// Report Metrics
	m.reportsRequested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reports_requested_total",
		Help:      "Total number of report generation requests",
	})

	m.reportsDeduped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reports_deduped_total",
		Help:      "Total number of report requests satisfied by an existing report",
	})

	m.reportsReady = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reports_ready_total",
		Help:      "Total number of reports that reached the ready state",
	})

	m.reportsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reports_failed_total",
		Help:      "Total number of reports that reached the failed state",
	})

	m.reportCallLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "report_call_latency_milliseconds",
		Help:      "Histogram of narrative service call latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.reportCallErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "report_call_errors_total",
		Help:      "Total number of failed narrative service calls",
	})

	m.reportCallRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "report_call_retries_total",
		Help:      "Total number of narrative service call retries",
	})

	// HTTP Performance Metrics
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
			Help:      "Histogram of HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total number of errors by type and severity",
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total number of errors by endpoint, method and type",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})
}

// Package-level helpers against the global manager.

// RecordEventIngested increments the ingested event counter.
func RecordEventIngested() {
	globalManager.eventsIngested.Inc()
}

// RecordEventDuplicate increments the duplicate event counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRejected increments the rejection counter for a reason.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordIntakeLatency records queue-to-ledger latency in milliseconds.
func RecordIntakeLatency(latencyMs float64) {
	globalManager.intakeLatency.Observe(latencyMs)
}

// RecordPledgeCreated increments the pledge creation counter.
func RecordPledgeCreated() {
	globalManager.pledgesCreated.Inc()
}

// UpdateQueueCapacity sets the configured queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueReject increments the rejection counter for a reason.
func RecordQueueReject(reason string) {
	globalManager.queueRejects.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the worker count gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordReportRequested increments the report request counter.
func RecordReportRequested() {
	globalManager.reportsRequested.Inc()
}

// RecordReportDeduped increments the deduplicated report counter.
func RecordReportDeduped() {
	globalManager.reportsDeduped.Inc()
}

// RecordReportReady increments the ready report counter.
func RecordReportReady() {
	globalManager.reportsReady.Inc()
}

// RecordReportFailed increments the failed report counter.
func RecordReportFailed() {
	globalManager.reportsFailed.Inc()
}

// RecordReportCallLatency records narrative call latency in milliseconds.
func RecordReportCallLatency(latencyMs float64) {
	globalManager.reportCallLatency.Observe(latencyMs)
}

// RecordReportCallError increments the narrative call error counter.
func RecordReportCallError() {
	globalManager.reportCallErrors.Inc()
}

// RecordReportCallRetry increments the narrative call retry counter.
func RecordReportCallRetry() {
	globalManager.reportCallRetries.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by endpoint, method and type.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom registry used for scraping.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
