package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "content_pipeline"

// Metrics holds the Prometheus collectors shared by the pipeline components.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stageOutcomes    *prometheus.CounterVec
	cacheEvents      *prometheus.CounterVec
	storageFallbacks *prometheus.CounterVec
	llmAttempts      *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_outcomes_total",
			Help:      "Pipeline stage outcomes by stage and outcome",
		}, []string{"stage", "outcome"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Dynamic cache hits, misses and evictions",
		}, []string{"cache", "event"}),
		storageFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "fallbacks_total",
			Help:      "Remote storage operations served by the local backend",
		}, []string{"operation"}),
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Chat completion attempts by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}

	m.registry.MustRegister(
		m.stageOutcomes,
		m.cacheEvents,
		m.storageFallbacks,
		m.llmAttempts,
		m.runDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// StageOutcome records the outcome of a stage (ran, skipped, fallback, failed).
func (m *Metrics) StageOutcome(stage, outcome string) {
	if m == nil {
		return
	}
	m.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// CacheEvent records a cache hit, miss or eviction.
func (m *Metrics) CacheEvent(cache, event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(cache, event).Inc()
}

// StorageFallback records a remote operation that fell through to local.
func (m *Metrics) StorageFallback(operation string) {
	if m == nil {
		return
	}
	m.storageFallbacks.WithLabelValues(operation).Inc()
}

// LLMAttempt records one chat completion attempt.
func (m *Metrics) LLMAttempt(result string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(result).Inc()
}

// ObserveRun records the duration of a run in seconds.
func (m *Metrics) ObserveRun(seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.Observe(seconds)
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
