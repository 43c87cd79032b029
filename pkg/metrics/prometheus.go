// Package metrics provides Prometheus metrics for the competition
// integrity service.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Confirmation pipeline
	confirmations       *prometheus.CounterVec
	anomalyCodes        *prometheus.CounterVec
	confirmationLatency prometheus.Histogram

	// Ranking projections
	rankingUpserts    prometheus.Counter
	projectionLatency prometheus.Histogram
	leaderboardSize   *prometheus.GaugeVec

	// Season pipeline and promotions
	seasonTransitions *prometheus.CounterVec
	promotions        *prometheus.CounterVec

	// Document store
	storeUpdateLatency prometheus.Histogram
	storeRetries       prometheus.Counter
	storeConflicts     prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueDequeues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActive prometheus.Gauge
	workerErrors prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors by component
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "torifuda",
		subsystem:        "competition",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	histOpts := func(name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
			Buckets: m.histogramBuckets,
		}
	}

	m.confirmations = prometheus.NewCounterVec(factory("confirmations_total", "Session confirmations by terminal outcome."), []string{"outcome"})
	m.anomalyCodes = prometheus.NewCounterVec(factory("anomaly_codes_total", "Anomaly reason codes reported by the detector."), []string{"code"})
	m.confirmationLatency = prometheus.NewHistogram(histOpts("confirmation_latency_ms", "Session confirmation latency in milliseconds."))

	m.rankingUpserts = prometheus.NewCounter(factory("ranking_upserts_total", "Leaderboard upserts applied."))
	m.projectionLatency = prometheus.NewHistogram(histOpts("projection_latency_ms", "Projection apply latency in milliseconds."))
	m.leaderboardSize = prometheus.NewGaugeVec(gaugeOpts("leaderboard_players", "Players per leaderboard."), []string{"season", "division"})

	m.seasonTransitions = prometheus.NewCounterVec(factory("season_transitions_total", "Season pipeline transitions by target state."), []string{"to"})
	m.promotions = prometheus.NewCounterVec(factory("promotions_total", "Promotions granted by ladder."), []string{"ladder"})

	m.storeUpdateLatency = prometheus.NewHistogram(histOpts("store_update_latency_ms", "Document store update latency in milliseconds."))
	m.storeRetries = prometheus.NewCounter(factory("store_retries_total", "Optimistic transaction retries."))
	m.storeConflicts = prometheus.NewCounter(factory("store_conflicts_total", "Optimistic transactions that exhausted retries."))

	m.queueSize = prometheus.NewGauge(gaugeOpts("queue_size", "Current projection queue depth."))
	m.queueCapacity = prometheus.NewGauge(gaugeOpts("queue_capacity", "Projection queue capacity."))
	m.queueUtilization = prometheus.NewGauge(gaugeOpts("queue_utilization", "Projection queue utilization ratio."))
	m.queueEnqueues = prometheus.NewCounter(factory("queue_enqueues_total", "Events enqueued."))
	m.queueDequeues = prometheus.NewCounter(factory("queue_dequeues_total", "Events dequeued."))
	m.queueEnqueueErrors = prometheus.NewCounter(factory("queue_enqueue_errors_total", "Rejected enqueues."))

	m.workerActive = prometheus.NewGauge(gaugeOpts("worker_active", "Projection workers running."))
	m.workerErrors = prometheus.NewCounter(factory("worker_errors_total", "Projection worker failures."))

	m.httpRequests = prometheus.NewCounterVec(factory("http_requests_total", "HTTP requests by endpoint, method and status."), []string{"endpoint", "method", "status"})
	m.httpRequestDuration = prometheus.NewHistogramVec(histOpts("http_request_duration_ms", "HTTP request latency in milliseconds."), []string{"endpoint", "method", "status"})

	m.errorsByComponent = prometheus.NewCounterVec(factory("errors_total", "Errors by component and kind."), []string{"component", "kind"})

	m.systemMemoryUsage = prometheus.NewGauge(gaugeOpts("system_memory_bytes", "Heap bytes in use."))
	m.systemGoroutineCount = prometheus.NewGauge(gaugeOpts("system_goroutines", "Current goroutine count."))

	m.registry.MustRegister(
		m.confirmations, m.anomalyCodes, m.confirmationLatency,
		m.rankingUpserts, m.projectionLatency, m.leaderboardSize,
		m.seasonTransitions, m.promotions,
		m.storeUpdateLatency, m.storeRetries, m.storeConflicts,
		m.queueSize, m.queueCapacity, m.queueUtilization,
		m.queueEnqueues, m.queueDequeues, m.queueEnqueueErrors,
		m.workerActive, m.workerErrors,
		m.httpRequests, m.httpRequestDuration,
		m.errorsByComponent,
		m.systemMemoryUsage, m.systemGoroutineCount,
	)
}

// GetRegistry returns the registry backing the global manager, for the
// metrics HTTP handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package-level helpers against the global manager.

// RecordConfirmation counts a terminal confirmation outcome
// (confirmed, invalid, expired, duplicate).
func RecordConfirmation(outcome string) {
	globalManager.confirmations.WithLabelValues(outcome).Inc()
}

// RecordAnomalyCode counts one reported reason code.
func RecordAnomalyCode(code string) {
	globalManager.anomalyCodes.WithLabelValues(code).Inc()
}

// RecordConfirmationLatency records end-to-end confirm latency.
func RecordConfirmationLatency(ms float64) {
	globalManager.confirmationLatency.Observe(ms)
}

// RecordRankingUpsert counts one applied leaderboard upsert.
func RecordRankingUpsert() {
	globalManager.rankingUpserts.Inc()
}

// RecordProjectionLatency records one projection apply.
func RecordProjectionLatency(ms float64) {
	globalManager.projectionLatency.Observe(ms)
}

// UpdateLeaderboardSize sets the player count for one leaderboard.
func UpdateLeaderboardSize(season, division string, n int) {
	globalManager.leaderboardSize.WithLabelValues(season, division).Set(float64(n))
}

// RecordSeasonTransition counts a pipeline transition to a state.
func RecordSeasonTransition(to string) {
	globalManager.seasonTransitions.WithLabelValues(to).Inc()
}

// RecordPromotion counts one granted promotion.
func RecordPromotion(ladder string) {
	globalManager.promotions.WithLabelValues(ladder).Inc()
}

// RecordStoreUpdateLatency records one versioned update.
func RecordStoreUpdateLatency(ms float64) {
	globalManager.storeUpdateLatency.Observe(ms)
}

// RecordStoreRetry counts one optimistic retry.
func RecordStoreRetry() {
	globalManager.storeRetries.Inc()
}

// RecordStoreConflict counts one exhausted transaction.
func RecordStoreConflict() {
	globalManager.storeConflicts.Inc()
}

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(n int) {
	globalManager.queueSize.Set(float64(n))
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(n int) {
	globalManager.queueCapacity.Set(float64(n))
}

// UpdateQueueUtilization sets the utilization ratio gauge.
func UpdateQueueUtilization(ratio float64) {
	globalManager.queueUtilization.Set(ratio)
}

// RecordQueueEnqueue counts one accepted enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue counts one dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueEnqueueError counts one rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the running worker gauge.
func UpdateWorkerActiveCount(n int) {
	globalManager.workerActive.Set(float64(n))
}

// RecordWorkerError counts one projection worker failure.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest counts one handled request.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records one request latency.
func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

// RecordErrorByComponent counts one component error.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// UpdateSystemMetrics samples process-level gauges. Intended to be
// called periodically from main.
func UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.systemMemoryUsage.Set(float64(ms.HeapInuse))
	globalManager.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
}
