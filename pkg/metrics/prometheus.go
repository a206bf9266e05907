// Package metrics provides Prometheus metrics for the ryno validator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exposed by the validator.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Rounds and scoring
	roundsProcessed    prometheus.Counter
	roundsDuplicate    prometheus.Counter
	roundScoringTime   prometheus.Histogram
	taskFailures       *prometheus.CounterVec
	workersScored      prometheus.Gauge
	leaderboardUpdates prometheus.Counter
	totalWorkers       prometheus.Gauge

	// Item queue
	itemsServed    *prometheus.CounterVec
	itemRefills    *prometheus.CounterVec
	itemExhausted  *prometheus.CounterVec
	itemListLength *prometheus.GaugeVec

	// LLM and answer cache
	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	answerCache *prometheus.CounterVec

	// State persistence
	stateSaves        *prometheus.CounterVec
	stateSaveDuration prometheus.Histogram
	stateLastSaveUnix prometheus.Gauge

	// Repository
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Round queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueue           prometheus.Counter
	queueDequeue           prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker pool
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ryno",
		subsystem:        "validator",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.roundsProcessed = m.counter("rounds_processed_total", "Rounds scored and applied to the leaderboard")
	m.roundsDuplicate = m.counter("rounds_duplicate_total", "Rounds rejected because their id was already seen")
	m.roundScoringTime = m.histogram("round_scoring_milliseconds", "Wall time of one scoring pass over a round")
	m.taskFailures = m.counterVec("task_failures_total", "Answering or scoring tasks that failed", "stage")
	m.workersScored = m.gauge("round_workers_scored", "Number of workers in the last scored round")
	m.leaderboardUpdates = m.counter("leaderboard_updates_total", "Weight updates applied to the leaderboard")
	m.totalWorkers = m.gauge("leaderboard_workers", "Workers currently tracked by the leaderboard")

	m.itemsServed = m.counterVec("items_served_total", "Items handed out by the rotating queue", "category", "kind")
	m.itemRefills = m.counterVec("item_refills_total", "Refill attempts of an item list", "category", "result")
	m.itemExhausted = m.counterVec("item_exhausted_total", "Requests that found no eligible item after refilling", "category", "kind")
	m.itemListLength = m.gaugeVec("item_list_length", "Remaining items per category list", "category", "kind")

	m.llmRequests = m.counterVec("llm_requests_total", "Completion requests by provider and outcome", "provider", "status")
	m.llmLatency = m.histogramVec("llm_request_milliseconds", "Completion request latency", "provider")
	m.answerCache = m.counterVec("answer_cache_total", "Answer cache lookups", "result")

	m.stateSaves = m.counterVec("state_saves_total", "Item queue state saves", "result")
	m.stateSaveDuration = m.histogram("state_save_milliseconds", "Duration of item queue state saves")
	m.stateLastSaveUnix = m.gauge("state_last_save_unixtime", "Unix time of the last successful state save")

	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds", "Leaderboard write latency")
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Leaderboard read latency")

	m.queueSize = m.gauge("queue_size", "Rounds waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum rounds the queue holds")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Rounds enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Rounds dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rounds rejected by the queue")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue call latency")

	m.workerCount = m.gauge("worker_count", "Configured worker goroutines")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently processing a round")
	m.workerIdleCount = m.gauge("worker_idle_count", "Workers waiting for a round")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-round processing latency")
	m.workerErrors = m.counter("worker_errors_total", "Rounds whose processing failed")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordRoundProcessed increments the processed rounds counter.
func RecordRoundProcessed() { globalManager.roundsProcessed.Inc() }

// RecordRoundDuplicate increments the duplicate rounds counter.
func RecordRoundDuplicate() { globalManager.roundsDuplicate.Inc() }

// RecordRoundScoringLatency records one scoring pass in milliseconds.
func RecordRoundScoringLatency(latencyMs float64) { globalManager.roundScoringTime.Observe(latencyMs) }

// RecordTaskFailure counts a failed answering or scoring task.
func RecordTaskFailure(stage string) { globalManager.taskFailures.WithLabelValues(stage).Inc() }

// UpdateWorkersScored sets the number of workers in the last scored round.
func UpdateWorkersScored(count int) { globalManager.workersScored.Set(float64(count)) }

// RecordLeaderboardUpdate increments the leaderboard updates counter.
func RecordLeaderboardUpdate() { globalManager.leaderboardUpdates.Inc() }

// UpdateTotalWorkers sets the number of workers tracked by the leaderboard.
func UpdateTotalWorkers(count int) { globalManager.totalWorkers.Set(float64(count)) }

// RecordItemServed counts an item handed to a consumer.
func RecordItemServed(category, kind string) { globalManager.itemsServed.WithLabelValues(category, kind).Inc() }

// RecordItemRefill counts a refill attempt; result is "ok" or "error".
func RecordItemRefill(category, result string) {
	globalManager.itemRefills.WithLabelValues(category, result).Inc()
}

// RecordItemExhausted counts a request that could not be served.
func RecordItemExhausted(category, kind string) {
	globalManager.itemExhausted.WithLabelValues(category, kind).Inc()
}

// UpdateItemListLength sets the remaining length of one category list.
func UpdateItemListLength(category, kind string, n int) {
	globalManager.itemListLength.WithLabelValues(category, kind).Set(float64(n))
}

// RecordLLMRequest counts a completion request.
func RecordLLMRequest(provider, status string) {
	globalManager.llmRequests.WithLabelValues(provider, status).Inc()
}

// RecordLLMLatency records completion latency in milliseconds.
func RecordLLMLatency(provider string, latencyMs float64) {
	globalManager.llmLatency.WithLabelValues(provider).Observe(latencyMs)
}

// RecordAnswerCache counts a cache lookup; result is "hit" or "miss".
func RecordAnswerCache(result string) { globalManager.answerCache.WithLabelValues(result).Inc() }

// RecordStateSave counts a state save and, on success, records its duration.
func RecordStateSave(ok bool, latencyMs float64, unix int64) {
	if !ok {
		globalManager.stateSaves.WithLabelValues("error").Inc()
		return
	}
	globalManager.stateSaves.WithLabelValues("ok").Inc()
	globalManager.stateSaveDuration.Observe(latencyMs)
	globalManager.stateLastSaveUnix.Set(float64(unix))
}

// RecordRepositoryUpdateLatency records leaderboard write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records leaderboard read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueue.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeue.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) { globalManager.workerIdleCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records per-round worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
