package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	// Inference metrics
	RequestsTotal    *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	TokensTotal      *prometheus.CounterVec

	// Evaluation metrics
	TestsTotal       *prometheus.CounterVec
	ComboScore       *prometheus.GaugeVec
	TimeoutsTotal    *prometheus.CounterVec
	ExclusionsTotal  *prometheus.CounterVec
	LateResultsTotal prometheus.Counter
	ReadinessScore   *prometheus.GaugeVec
	DistillGain      *prometheus.GaugeVec

	// Residency metrics
	ResidencyOpsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Protection metrics
	RetriesTotal        *prometheus.CounterVec
	CircuitChangesTotal *prometheus.CounterVec
}

// NewPrometheusMetrics registers the metrics with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	return &PrometheusMetrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_inference_requests_total",
				Help: "Total number of inference requests",
			},
			[]string{"provider", "model", "status"},
		),

		LatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readiness_inference_latency_seconds",
				Help:    "Inference request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),

		TokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_inference_tokens_total",
				Help: "Total number of tokens processed",
			},
			[]string{"provider", "model", "direction"},
		),

		TestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_tests_total",
				Help: "Total number of executed tests by suite, category and status",
			},
			[]string{"suite", "category", "status"},
		),

		ComboScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "readiness_combo_overall_score",
				Help: "Overall score of the last run of a (main, executor) combo",
			},
			[]string{"main", "executor"},
		),

		TimeoutsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_test_timeouts_total",
				Help: "Total number of tests that exceeded the task timeout",
			},
			[]string{"main"},
		),

		ExclusionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_main_exclusions_total",
				Help: "Total number of main models excluded from a matrix run",
			},
			[]string{"main"},
		),

		LateResultsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "readiness_late_results_total",
				Help: "Total number of inference results discarded after their test timed out",
			},
		),

		ReadinessScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "readiness_assessment_score",
				Help: "Overall score of the last readiness assessment",
			},
			[]string{"model", "mode"},
		),

		DistillGain: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "readiness_distill_improvement",
				Help: "Score improvement of the last distillation attempt",
			},
			[]string{"teacher", "student", "capability"},
		),

		ResidencyOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_residency_operations_total",
				Help: "Total number of model load and unload operations",
			},
			[]string{"operation", "status"},
		),

		CacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),

		CacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		RetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_retries_total",
				Help: "Total number of retries",
			},
			[]string{"model", "reason"},
		),

		CircuitChangesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_circuit_state_changes_total",
				Help: "Total number of circuit breaker state changes",
			},
			[]string{"breaker", "state"},
		),
	}
}

// NewDiscard returns metrics registered on a private registry
func NewDiscard() *PrometheusMetrics {
	return NewPrometheusMetrics(prometheus.NewRegistry())
}

// OrDiscard returns m, or private-registry metrics when m is nil
func OrDiscard(m *PrometheusMetrics) *PrometheusMetrics {
	if m == nil {
		return NewDiscard()
	}
	return m
}

// RecordInference records one gateway call
func (m *PrometheusMetrics) RecordInference(provider, model, status string, duration time.Duration, inputTokens, outputTokens int) {
	m.RequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.LatencyHistogram.WithLabelValues(provider, model).Observe(duration.Seconds())
	if inputTokens > 0 {
		m.TokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordTest records an executed test
func (m *PrometheusMetrics) RecordTest(suite, category, status string) {
	m.TestsTotal.WithLabelValues(suite, category, status).Inc()
}

// RecordCombo records the overall score of a finished combo
func (m *PrometheusMetrics) RecordCombo(main, executor string, overall int) {
	m.ComboScore.WithLabelValues(main, executor).Set(float64(overall))
}

// RecordTimeout records a timed-out test
func (m *PrometheusMetrics) RecordTimeout(main string) {
	m.TimeoutsTotal.WithLabelValues(main).Inc()
}

// RecordExclusion records a main model exclusion
func (m *PrometheusMetrics) RecordExclusion(main string) {
	m.ExclusionsTotal.WithLabelValues(main).Inc()
}

// RecordLateResult records a discarded late result
func (m *PrometheusMetrics) RecordLateResult() {
	m.LateResultsTotal.Inc()
}

// RecordReadiness records an assessment score
func (m *PrometheusMetrics) RecordReadiness(model, mode string, overall int) {
	m.ReadinessScore.WithLabelValues(model, mode).Set(float64(overall))
}

// RecordDistill records a distillation improvement
func (m *PrometheusMetrics) RecordDistill(teacher, student, capability string, improvement int) {
	m.DistillGain.WithLabelValues(teacher, student, capability).Set(float64(improvement))
}

// RecordResidency records a load or unload
func (m *PrometheusMetrics) RecordResidency(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ResidencyOpsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCacheHit records a cache hit
func (m *PrometheusMetrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func (m *PrometheusMetrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordRetry records a retry
func (m *PrometheusMetrics) RecordRetry(model, reason string) {
	m.RetriesTotal.WithLabelValues(model, reason).Inc()
}

// RecordCircuitChange records a circuit breaker transition
func (m *PrometheusMetrics) RecordCircuitChange(breaker, state string) {
	m.CircuitChangesTotal.WithLabelValues(breaker, state).Inc()
}
