package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Manager is the production Telemetry adapter: Prometheus metrics plus
// OpenTelemetry tracing, composed behind the single port the pipeline
// core depends on.
type Manager struct {
	metrics  *Metrics
	provider trace.TracerProvider
	tracer   trace.Tracer
}

var _ Telemetry = (*Manager)(nil)

// NewManager wires a Metrics collector to a TracerProvider built from cfg.
func NewManager(ctx context.Context, cfg TracerConfig, metrics *Metrics) (*Manager, error) {
	provider, err := InitTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		metrics:  metrics,
		provider: provider,
		tracer:   provider.Tracer("talktothecity/pipeline"),
	}, nil
}

// Metrics exposes the underlying collector so the server can mount its
// /metrics handler.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

func (m *Manager) RecordLLMCall(ctx context.Context, rec LLMCallRecord) {
	if m.metrics == nil {
		return
	}
	m.metrics.llmCalls.WithLabelValues(rec.Stage, rec.Model).Inc()
	m.metrics.llmCallDuration.WithLabelValues(rec.Stage, rec.Model).Observe(rec.Duration.Seconds())
	m.metrics.llmTokensInput.WithLabelValues(rec.Stage, rec.Model).Add(float64(rec.PromptTokens))
	m.metrics.llmTokensOutput.WithLabelValues(rec.Stage, rec.Model).Add(float64(rec.CompletionTokens))
	m.metrics.llmCostTotal.WithLabelValues(rec.Stage, rec.Model).Add(rec.Cost)
	if rec.Err != nil {
		m.metrics.llmErrors.WithLabelValues(rec.Stage, rec.Model).Inc()
	}
}

func (m *Manager) RecordStage(ctx context.Context, rec StageRecord) {
	if m.metrics == nil {
		return
	}
	m.metrics.stageCalls.WithLabelValues(rec.Stage).Inc()
	m.metrics.stageDuration.WithLabelValues(rec.Stage).Observe(rec.Duration.Seconds())
	m.metrics.stageItems.WithLabelValues(rec.Stage).Observe(float64(rec.Items))
	if rec.Err != nil {
		m.metrics.stageErrors.WithLabelValues(rec.Stage).Inc()
	}
}

func (m *Manager) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	spanCtx, span := m.tracer.Start(ctx, name)
	return spanCtx, func() { span.End() }
}

func (m *Manager) Flush(ctx context.Context) {
	if sp, ok := m.provider.(interface{ ForceFlush(context.Context) error }); ok {
		_ = sp.ForceFlush(ctx)
	}
}

// Shutdown stops the underlying tracer provider, flushing any buffered
// spans. Callers should invoke this once during process shutdown.
func (m *Manager) Shutdown(ctx context.Context) error {
	if sp, ok := m.provider.(interface{ Shutdown(context.Context) error }); ok {
		return sp.Shutdown(ctx)
	}
	return nil
}
