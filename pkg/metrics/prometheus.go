// Package metrics provides Prometheus metrics for the versus ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the versus service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Voting
	votesAccepted      prometheus.Counter
	votesFailed        *prometheus.CounterVec
	votesReplayed      prometheus.Counter
	cooldownRejections prometheus.Counter
	ratingDelta        prometheus.Histogram
	effectiveK         prometheus.Histogram
	voteTxLatency      prometheus.Histogram

	// Pairing
	pairSelections   *prometheus.CounterVec
	pairInsufficient prometheus.Counter

	// Submissions
	submissions *prometheus.CounterVec

	// Sessions
	sessionsActive  prometheus.Gauge
	sessionsEvicted prometheus.Counter

	// Leaderboard projection
	boardItems        *prometheus.GaugeVec
	boardUpdates      prometheus.Counter
	boardStaleUpdates prometheus.Counter
	boardReconciles   prometheus.Counter
	boardQueryLatency prometheus.Histogram

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
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
		namespace:        "versus",
		subsystem:        "ranking",
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.votesAccepted = m.counter("votes_accepted_total", "Votes committed by the vote ledger")
	m.votesFailed = m.counterVec("votes_failed_total", "Votes rejected or failed, by error kind", "kind")
	m.votesReplayed = m.counter("votes_replayed_total", "Vote requests answered from the request-id cache")
	m.cooldownRejections = m.counter("vote_cooldown_rejections_total", "Votes rejected locally inside the cooldown")
	m.ratingDelta = m.histogram("rating_delta_points", "Absolute winner rating delta per vote",
		[]float64{0.5, 1, 2, 4, 6, 8, 12, 16, 20, 25})
	m.effectiveK = m.histogram("effective_k", "Effective K-factor per vote after dampening",
		[]float64{1, 2, 4, 8, 12, 16, 20, 24})
	m.voteTxLatency = m.histogram("vote_tx_latency_milliseconds", "Vote transaction latency in milliseconds", m.histogramBuckets)

	m.pairSelections = m.counterVec("pair_selections_total", "Pairs selected, by mode (regular or fallback)", "mode")
	m.pairInsufficient = m.counter("pair_insufficient_total", "Pair requests with fewer than two eligible items")

	m.submissions = m.counterVec("submissions_total", "Item submissions, by outcome", "outcome")

	m.sessionsActive = m.gauge("sessions_active", "Live ranking sessions")
	m.sessionsEvicted = m.counter("sessions_evicted_total", "Sessions evicted for inactivity")

	m.boardItems = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "board_items", ConstLabels: m.constLabels,
		Help: "Approved items tracked by the leaderboard projection, per list",
	}, []string{"list"})
	m.boardUpdates = m.counter("board_updates_total", "Leaderboard projection upserts applied")
	m.boardStaleUpdates = m.counter("board_stale_updates_total", "Leaderboard upserts ignored as older than the stored version")
	m.boardReconciles = m.counter("board_reconciles_total", "Full leaderboard rebuilds from the store")
	m.boardQueryLatency = m.histogram("board_query_latency_milliseconds", "Leaderboard projection query latency", m.histogramBuckets)

	m.queueSize = m.gauge("queue_size", "Current size of the vote event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the vote event queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Vote event queue utilization (0-1)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Vote events enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Vote events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Vote events dropped at enqueue")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time a vote event spent queued", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Configured projection workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently applying an event")
	m.workerIdleCount = m.gauge("worker_idle_count", "Workers waiting for events")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker event processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Worker processing errors")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration in milliseconds", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordVoteAccepted records a committed vote and its rating movement.
func RecordVoteAccepted(winnerDelta, effectiveK, txLatencyMs float64) {
	globalManager.votesAccepted.Inc()
	if winnerDelta < 0 {
		winnerDelta = -winnerDelta
	}
	globalManager.ratingDelta.Observe(winnerDelta)
	globalManager.effectiveK.Observe(effectiveK)
	globalManager.voteTxLatency.Observe(txLatencyMs)
}

// RecordVoteFailed increments the failed vote counter for an error kind.
func RecordVoteFailed(kind string) {
	globalManager.votesFailed.WithLabelValues(kind).Inc()
}

// RecordVoteReplayed increments the replayed request counter.
func RecordVoteReplayed() {
	globalManager.votesReplayed.Inc()
}

// RecordCooldownRejection increments the cooldown rejection counter.
func RecordCooldownRejection() {
	globalManager.cooldownRejections.Inc()
}

// RecordPairSelection counts a selected pair; fallback marks a pair chosen outside the match gap.
func RecordPairSelection(fallback bool) {
	mode := "regular"
	if fallback {
		mode = "fallback"
	}
	globalManager.pairSelections.WithLabelValues(mode).Inc()
}

// RecordPairInsufficient counts a pair request that had too few items.
func RecordPairInsufficient() {
	globalManager.pairInsufficient.Inc()
}

// RecordSubmission counts a submission by outcome (accepted, duplicate, quota, invalid, error).
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// UpdateSessionsActive sets the live session gauge.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordSessionsEvicted adds n evicted sessions.
func RecordSessionsEvicted(n int) {
	globalManager.sessionsEvicted.Add(float64(n))
}

// UpdateBoardItems sets the item count of one list's projection.
func UpdateBoardItems(list string, count int) {
	globalManager.boardItems.WithLabelValues(list).Set(float64(count))
}

// RecordBoardUpdate counts an applied or stale projection upsert.
func RecordBoardUpdate(applied bool) {
	if applied {
		globalManager.boardUpdates.Inc()
		return
	}
	globalManager.boardStaleUpdates.Inc()
}

// RecordBoardReconcile counts a full projection rebuild.
func RecordBoardReconcile() {
	globalManager.boardReconciles.Inc()
}

// RecordBoardQueryLatency records projection read latency.
func RecordBoardQueryLatency(latencyMs float64) {
	globalManager.boardQueryLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

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

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
