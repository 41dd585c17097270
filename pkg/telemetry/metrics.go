package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the pipeline,
// grouped by concern (LLM calls, stage durations).
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmErrors       *prometheus.CounterVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec
	llmCostTotal    *prometheus.CounterVec

	stageCalls    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	stageItems    *prometheus.HistogramVec
}

// NewMetrics builds a fresh Metrics instance with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initLLMMetrics()
	m.initStageMetrics()
	return m
}

func (m *Metrics) initLLMMetrics() {
	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_llm_calls_total",
		Help: "Total LLM calls issued, by stage and model.",
	}, []string{"stage", "model"})

	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_llm_call_duration_seconds",
		Help:    "LLM call latency, by stage and model.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "model"})

	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_llm_errors_total",
		Help: "LLM call failures, by stage and model.",
	}, []string{"stage", "model"})

	m.llmTokensInput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_llm_prompt_tokens_total",
		Help: "Prompt tokens consumed, by stage and model.",
	}, []string{"stage", "model"})

	m.llmTokensOutput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_llm_completion_tokens_total",
		Help: "Completion tokens produced, by stage and model.",
	}, []string{"stage", "model"})

	m.llmCostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_llm_cost_dollars_total",
		Help: "Accumulated dollar cost of LLM calls, by stage and model.",
	}, []string{"stage", "model"})

	m.registry.MustRegister(m.llmCalls, m.llmCallDuration, m.llmErrors, m.llmTokensInput, m.llmTokensOutput, m.llmCostTotal)
}

func (m *Metrics) initStageMetrics() {
	m.stageCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_runs_total",
		Help: "Total stage invocations.",
	}, []string{"stage"})

	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Stage invocation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	m.stageErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_errors_total",
		Help: "Whole-stage failures (not swallowed per-item failures).",
	}, []string{"stage"})

	m.stageItems = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_items_processed",
		Help:    "Items processed per stage invocation (comments, subtopics, ...).",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	}, []string{"stage"})

	m.registry.MustRegister(m.stageCalls, m.stageDuration, m.stageErrors, m.stageItems)
}

// Handler returns the Prometheus exposition HTTP handler for this
// registry, mounted at /metrics by the server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
