// Package metrics provides Prometheus metrics for the lighthouse rating service.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons reported by RecordRoundSkipped.
const (
	ReasonStale      = "stale"
	ReasonDegenerate = "degenerate"
	ReasonMalformed  = "malformed"
	ReasonInvalid    = "invalid"
)

// Manager manages all Prometheus metrics for the rating service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Rating engine
	roundsApplied   *prometheus.CounterVec
	roundsSkipped   *prometheus.CounterVec
	applyLatency    prometheus.Histogram
	deltaMagnitude  prometheus.Histogram
	playersTracked  prometheus.Gauge
	lastAppliedUnix prometheus.Gauge
	playersCreated  prometheus.Counter

	// Store
	storeCommitLatency *prometheus.HistogramVec
	storeQueryLatency  *prometheus.HistogramVec
	storeErrors        *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueDropped       prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lighthouse",
		subsystem:        "rating",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: buckets, ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.roundsApplied = auto.NewCounterVec(m.counterOpts("rounds_applied_total",
		"Total number of rounds committed, by outcome strategy"), []string{"strategy"})
	m.roundsSkipped = auto.NewCounterVec(m.counterOpts("rounds_skipped_total",
		"Total number of rounds skipped, by reason"), []string{"reason"})
	m.applyLatency = auto.NewHistogram(m.histogramOpts("apply_latency_milliseconds",
		"Load, compute and commit latency of one round in milliseconds", m.histogramBuckets))
	m.deltaMagnitude = auto.NewHistogram(m.histogramOpts("delta_magnitude",
		"Absolute net rating change per player per round", []float64{1, 2, 4, 8, 16, 32, 64, 128}))
	m.playersTracked = auto.NewGauge(m.gaugeOpts("players_tracked",
		"Number of players in the rating store"))
	m.lastAppliedUnix = auto.NewGauge(m.gaugeOpts("last_applied_timestamp_seconds",
		"Match timestamp of the last committed round"))
	m.playersCreated = auto.NewCounter(m.counterOpts("players_created_total",
		"Players registered at the default rating on first appearance"))

	m.storeCommitLatency = auto.NewHistogramVec(m.histogramOpts("store_commit_latency_milliseconds",
		"Rating store commit latency in milliseconds", m.histogramBuckets), []string{"driver"})
	m.storeQueryLatency = auto.NewHistogramVec(m.histogramOpts("store_query_latency_milliseconds",
		"Rating store read latency in milliseconds", m.histogramBuckets), []string{"driver", "op"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total",
		"Rating store failures by driver and operation"), []string{"driver", "op"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the round queue (backlog indicator)"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum capacity of the round queue"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total rounds enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total rounds dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Rounds rejected because the queue was full or closed"))
	m.queueDropped = auto.NewCounter(m.counterOpts("queue_dropped_total",
		"Rounds taken off the queue but never handed to a worker"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Current number of running workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time from dequeue to engine result in milliseconds", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Rounds a worker failed to apply because of a store error"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// RecordRoundApplied counts a committed round and its latency.
func RecordRoundApplied(strategy string, latency time.Duration) {
	globalManager.roundsApplied.WithLabelValues(strategy).Inc()
	globalManager.applyLatency.Observe(float64(latency.Microseconds()) / 1000)
}

// RecordRoundSkipped counts a round dropped for a non-fatal reason.
func RecordRoundSkipped(reason string) {
	globalManager.roundsSkipped.WithLabelValues(reason).Inc()
}

// RecordRatingDelta observes one player's net change for a round.
func RecordRatingDelta(delta float64) {
	if delta < 0 {
		delta = -delta
	}
	globalManager.deltaMagnitude.Observe(delta)
}

// RecordPlayersCreated counts players registered at the default rating.
func RecordPlayersCreated(n int) {
	globalManager.playersCreated.Add(float64(n))
}

// UpdatePlayersTracked sets the players gauge.
func UpdatePlayersTracked(count int) {
	globalManager.playersTracked.Set(float64(count))
}

// UpdateLastApplied sets the last committed match timestamp.
func UpdateLastApplied(t time.Time) {
	globalManager.lastAppliedUnix.Set(float64(t.Unix()))
}

// RecordStoreCommit records a commit latency for a store driver.
func RecordStoreCommit(driver string, latency time.Duration) {
	globalManager.storeCommitLatency.WithLabelValues(driver).Observe(float64(latency.Microseconds()) / 1000)
}

// RecordStoreQuery records a read latency for a store driver.
func RecordStoreQuery(driver, op string, latency time.Duration) {
	globalManager.storeQueryLatency.WithLabelValues(driver, op).Observe(float64(latency.Microseconds()) / 1000)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(driver, op string) {
	globalManager.storeErrors.WithLabelValues(driver, op).Inc()
}

// UpdateQueueSize updates the queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity updates the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueDropped counts a dequeued round no consumer took.
func RecordQueueDropped() {
	globalManager.queueDropped.Inc()
}

// UpdateWorkerCount updates the worker count gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency in milliseconds.
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

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage updates the system memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Gather returns the current value of a single-series metric by full name, for tests
// and the stats endpoint.
func Gather(name string) (float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, err
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
		return sum, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCollector, name)
}
