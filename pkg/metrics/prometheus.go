// Package metrics provides Prometheus metrics for the strata splicing service.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default bucket layouts in milliseconds. Correlation sweeps over long
// cores run far longer than HTTP handlers.
var (
	defaultLatencyBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500} //nolint:gochecknoglobals
	sweepBuckets          = prometheus.ExponentialBuckets(1, 4, 10)                          //nolint:gochecknoglobals
	countBuckets          = prometheus.ExponentialBuckets(1, 4, 10)                          //nolint:gochecknoglobals
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Calibration
	calibrations      prometheus.Counter
	calibrationErrors *prometheus.CounterVec
	reversalWarnings  prometheus.Counter
	calibrationCache  *prometheus.CounterVec

	// Correlation
	correlationLatency *prometheus.HistogramVec
	lagsEvaluated      prometheus.Histogram

	// Suggestions and tie points
	suggestions           *prometheus.CounterVec
	suggestionUnavailable prometheus.Counter
	tiePointEdits         *prometheus.CounterVec

	// Splicing
	spliceSamples  prometheus.Histogram
	spliceOverlaps prometheus.Counter

	// Repository
	sections prometheus.Gauge

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	jobs                    *prometheus.CounterVec
	workerCount             prometheus.Gauge
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors and process
	errorsByComponent *prometheus.CounterVec
	memoryUsage       prometheus.Gauge
	goroutines        prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "strata",
		subsystem:        "splice",
		histogramBuckets: defaultLatencyBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.calibrations = auto.NewCounter(m.counter("calibrations_total", "Depth series calibrated onto the age axis"))
	m.calibrationErrors = auto.NewCounterVec(m.counter("calibration_errors_total", "Calibrations rejected, by error kind"), []string{"kind"})
	m.reversalWarnings = auto.NewCounter(m.counter("reversal_warnings_total", "Calibrations that produced a non-increasing age sequence"))
	m.calibrationCache = auto.NewCounterVec(m.counter("calibration_cache_total", "Calibration cache lookups, by result"), []string{"result"})

	m.correlationLatency = auto.NewHistogramVec(m.histogram("correlation_latency_milliseconds", "Duration of a lag sweep", sweepBuckets), []string{"kind"})
	m.lagsEvaluated = auto.NewHistogram(m.histogram("correlation_lags", "Defined lags per correlation curve", countBuckets))

	m.suggestions = auto.NewCounterVec(m.counter("suggestions_total", "Tie-point suggestions produced, by source"), []string{"source"})
	m.suggestionUnavailable = auto.NewCounter(m.counter("suggestion_unavailable_total", "Suggestion requests the remote collaborator could not serve"))
	m.tiePointEdits = auto.NewCounterVec(m.counter("tie_point_edits_total", "Tie-point mutations, by operation and outcome"), []string{"op", "outcome"})

	m.spliceSamples = auto.NewHistogram(m.histogram("splice_samples", "Samples per composite record", countBuckets))
	m.spliceOverlaps = auto.NewCounter(m.counter("splice_overlaps_total", "Overlapping splice windows flagged"))

	m.sections = auto.NewGauge(m.gauge("sections", "Sections held by the repository"))

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Correlation jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Configured job queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueued_total", "Jobs accepted by the queue"))
	m.queueDequeued = auto.NewCounter(m.counter("queue_dequeued_total", "Jobs taken by workers"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("queue_enqueue_errors_total", "Jobs rejected because the queue was full or closed"))
	m.jobs = auto.NewCounterVec(m.counter("jobs_total", "Finished jobs, by kind and final status"), []string{"kind", "status"})
	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Configured workers"))
	m.workerActive = auto.NewGauge(m.gauge("worker_active", "Workers currently running a job"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "Time from dequeue to job completion", sweepBuckets))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counter("errors_total", "Errors by component and kind"), []string{"component", "kind"})
	m.memoryUsage = auto.NewGauge(m.gauge("memory_bytes", "Heap bytes in use"))
	m.goroutines = auto.NewGauge(m.gauge("goroutines", "Live goroutines"))
}

// Calibration.

// RecordCalibration counts one calibration and its reversal warning, if any.
func (m *Manager) RecordCalibration(reversed bool) {
	m.calibrations.Inc()
	if reversed {
		m.reversalWarnings.Inc()
	}
}

// RecordCalibrationError counts a rejected calibration.
func (m *Manager) RecordCalibrationError(kind string) {
	m.calibrationErrors.WithLabelValues(kind).Inc()
}

// RecordCalibrationCache counts a cache lookup as "hit" or "miss".
func (m *Manager) RecordCalibrationCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.calibrationCache.WithLabelValues(result).Inc()
}

// Correlation.

// RecordCorrelation observes one lag sweep.
func (m *Manager) RecordCorrelation(kind string, latencyMs float64, lags int) {
	m.correlationLatency.WithLabelValues(kind).Observe(latencyMs)
	m.lagsEvaluated.Observe(float64(lags))
}

// Suggestions.

// RecordSuggestions counts suggestions from one source.
func (m *Manager) RecordSuggestions(source string, n int) {
	m.suggestions.WithLabelValues(source).Add(float64(n))
}

// RecordSuggestionUnavailable counts a failed remote suggestion request.
func (m *Manager) RecordSuggestionUnavailable() {
	m.suggestionUnavailable.Inc()
}

// RecordTiePointEdit counts a tie-point mutation.
func (m *Manager) RecordTiePointEdit(op, outcome string) {
	m.tiePointEdits.WithLabelValues(op, outcome).Inc()
}

// Splicing.

// RecordSplice observes one composite record.
func (m *Manager) RecordSplice(samples, overlaps int) {
	m.spliceSamples.Observe(float64(samples))
	m.spliceOverlaps.Add(float64(overlaps))
}

// UpdateSectionCount sets the number of stored sections.
func (m *Manager) UpdateSectionCount(n int) {
	m.sections.Set(float64(n))
}

// Queue and workers.

// UpdateQueueSize sets the queue backlog.
func (m *Manager) UpdateQueueSize(n int) { m.queueSize.Set(float64(n)) }

// UpdateQueueCapacity sets the queue capacity.
func (m *Manager) UpdateQueueCapacity(n int) { m.queueCapacity.Set(float64(n)) }

// RecordQueueEnqueue counts an accepted job.
func (m *Manager) RecordQueueEnqueue() { m.queueEnqueued.Inc() }

// RecordQueueDequeue counts a job handed to a worker.
func (m *Manager) RecordQueueDequeue() { m.queueDequeued.Inc() }

// RecordQueueEnqueueError counts a rejected job.
func (m *Manager) RecordQueueEnqueueError() { m.queueEnqueueErrors.Inc() }

// RecordJob counts a finished job.
func (m *Manager) RecordJob(kind, status string) { m.jobs.WithLabelValues(kind, status).Inc() }

// UpdateWorkerCount sets the configured worker count.
func (m *Manager) UpdateWorkerCount(n int) { m.workerCount.Set(float64(n)) }

// AddWorkerActive moves the active worker gauge by delta.
func (m *Manager) AddWorkerActive(delta int) { m.workerActive.Add(float64(delta)) }

// RecordWorkerProcessingLatency observes one job run.
func (m *Manager) RecordWorkerProcessingLatency(latencyMs float64) {
	m.workerProcessingLatency.Observe(latencyMs)
}

// HTTP.

// RecordHTTPRequest counts and times a request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors and process.

// RecordErrorByComponent counts an error.
func (m *Manager) RecordErrorByComponent(component, kind string) {
	m.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// UpdateSystemStats samples heap usage and goroutine count.
func (m *Manager) UpdateSystemStats() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.memoryUsage.Set(float64(ms.HeapInuse))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Package-level shortcuts on the global manager.

func RecordCalibration(reversed bool)                 { globalManager.RecordCalibration(reversed) }
func RecordCalibrationError(kind string)              { globalManager.RecordCalibrationError(kind) }
func RecordCalibrationCache(hit bool)                 { globalManager.RecordCalibrationCache(hit) }
func RecordCorrelation(kind string, ms float64, n int) { globalManager.RecordCorrelation(kind, ms, n) }
func RecordSuggestions(source string, n int)          { globalManager.RecordSuggestions(source, n) }
func RecordSuggestionUnavailable()                    { globalManager.RecordSuggestionUnavailable() }
func RecordTiePointEdit(op, outcome string)           { globalManager.RecordTiePointEdit(op, outcome) }
func RecordSplice(samples, overlaps int)              { globalManager.RecordSplice(samples, overlaps) }
func UpdateSectionCount(n int)                        { globalManager.UpdateSectionCount(n) }
func UpdateQueueSize(n int)                           { globalManager.UpdateQueueSize(n) }
func UpdateQueueCapacity(n int)                       { globalManager.UpdateQueueCapacity(n) }
func RecordQueueEnqueue()                             { globalManager.RecordQueueEnqueue() }
func RecordQueueDequeue()                             { globalManager.RecordQueueDequeue() }
func RecordQueueEnqueueError()                        { globalManager.RecordQueueEnqueueError() }
func RecordJob(kind, status string)                   { globalManager.RecordJob(kind, status) }
func UpdateWorkerCount(n int)                         { globalManager.UpdateWorkerCount(n) }
func AddWorkerActive(delta int)                       { globalManager.AddWorkerActive(delta) }
func RecordWorkerProcessingLatency(ms float64)        { globalManager.RecordWorkerProcessingLatency(ms) }
func RecordHTTPRequest(endpoint, method, code string, ms float64) {
	globalManager.RecordHTTPRequest(endpoint, method, code, ms)
}
func RecordErrorByComponent(component, kind string) { globalManager.RecordErrorByComponent(component, kind) }
func UpdateSystemStats()                            { globalManager.UpdateSystemStats() }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
