// Package metrics provides Prometheus metrics for the rostersync replica service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the recording helpers.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeApplied    = "applied"
	OutcomeSuppressed = "suppressed"
	OutcomeIgnored    = "ignored"
	OutcomeUnknown    = "unknown_collection"
	OutcomeDiscarded  = "discarded"
	OutcomeDeferred   = "deferred"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Replica engine
	mutations        *prometheus.CounterVec
	rollbacks        *prometheus.CounterVec
	changeEvents     *prometheus.CounterVec
	inflightWrites   prometheus.Gauge
	replicaRecords   *prometheus.GaugeVec
	bootstrapRuns    *prometheus.CounterVec
	bootstrapLatency prometheus.Histogram

	// Remote source
	remoteLatency          *prometheus.HistogramVec
	remoteErrors           *prometheus.CounterVec
	subscriptionReconnects prometheus.Counter
	subscriptionDrops      prometheus.Counter

	// Repository
	repositoryUpdateLatency prometheus.Histogram

	// Change intake queue
	queueCapacity          prometheus.Gauge
	queueSize              prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Intake worker
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rostersync",
		subsystem:        "replica",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.mutations = m.counterVec("mutations_total",
		"Optimistic mutations by collection, operation and remote outcome", "collection", "op", "outcome")
	m.rollbacks = m.counterVec("rollbacks_total",
		"Optimistic applies undone after a failed remote write", "collection", "op")
	m.changeEvents = m.counterVec("change_events_total",
		"Change notifications by collection, kind and integration outcome", "collection", "kind", "outcome")
	m.inflightWrites = m.gauge("inflight_writes",
		"Remote writes currently in flight (echo suppression window)")
	m.replicaRecords = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "records", Help: "Records held per replicated collection",
	}, []string{"collection"})
	m.bootstrapRuns = m.counterVec("bootstrap_total", "Bootstrap loads by outcome", "outcome")
	m.bootstrapLatency = m.histogram("bootstrap_duration_milliseconds",
		"Wall time of a full bootstrap load in milliseconds", m.histogramBuckets)

	m.remoteLatency = m.histogramVec("remote_call_latency_milliseconds",
		"Latency of remote source calls in milliseconds", "op")
	m.remoteErrors = m.counterVec("remote_errors_total", "Failed remote source calls", "op")
	m.subscriptionReconnects = m.counter("subscription_reconnects_total",
		"Times the change subscription had to be re-established")
	m.subscriptionDrops = m.counter("subscription_dropped_total",
		"Change notifications dropped because a subscriber buffer was full")

	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds",
		"Replica store mutation latency in milliseconds", m.histogramBuckets)

	m.queueCapacity = m.gauge("queue_capacity", "Maximum change intake queue capacity")
	m.queueSize = m.gauge("queue_size", "Current size of the change intake queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of changes enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of changes dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Queue enqueue latency in milliseconds", m.histogramBuckets)

	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time to integrate one change notification in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of intake worker errors")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Replica engine.

// RecordMutation counts one optimistic mutation and its remote outcome.
func RecordMutation(collection, op, outcome string) {
	globalManager.mutations.WithLabelValues(collection, op, outcome).Inc()
}

// RecordRollback counts an optimistic apply that was undone.
func RecordRollback(collection, op string) {
	globalManager.rollbacks.WithLabelValues(collection, op).Inc()
}

// RecordChangeEvent counts an incoming change notification.
func RecordChangeEvent(collection, kind, outcome string) {
	globalManager.changeEvents.WithLabelValues(collection, kind, outcome).Inc()
}

// UpdateInflightWrites sets the number of remote writes in flight.
func UpdateInflightWrites(n int64) {
	globalManager.inflightWrites.Set(float64(n))
}

// UpdateReplicaRecords sets the record count of one collection.
func UpdateReplicaRecords(collection string, n int) {
	globalManager.replicaRecords.WithLabelValues(collection).Set(float64(n))
}

// RecordBootstrap records a bootstrap run.
func RecordBootstrap(outcome string, durationMs float64) {
	globalManager.bootstrapRuns.WithLabelValues(outcome).Inc()
	globalManager.bootstrapLatency.Observe(durationMs)
}

// Remote source.

// RecordRemoteCall records the latency of a remote call and counts failures.
func RecordRemoteCall(op string, latencyMs float64, err error) {
	globalManager.remoteLatency.WithLabelValues(op).Observe(latencyMs)
	if err != nil {
		globalManager.remoteErrors.WithLabelValues(op).Inc()
	}
}

// RecordSubscriptionReconnect counts a re-established subscription.
func RecordSubscriptionReconnect() {
	globalManager.subscriptionReconnects.Inc()
}

// RecordSubscriptionDrop counts a change dropped on a full subscriber buffer.
func RecordSubscriptionDrop() {
	globalManager.subscriptionDrops.Inc()
}

// Repository.

// RecordRepositoryUpdateLatency records replica store mutation latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// Queue.

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker.

// RecordWorkerProcessingLatency records the integration time of one change.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts an intake worker error.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// HTTP.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent counts an error by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint counts an error by HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records latency of an operation that failed.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets heap usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry served by /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
