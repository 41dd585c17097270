// Package telemetry abstracts observability sinks behind a Telemetry
// port, so the pipeline core never imports Prometheus or OpenTelemetry
// directly. Two adapters are provided: a Prometheus+OTel-backed Manager
// for production, and a NoOp for tests and environments with metrics
// disabled.
package telemetry

import (
	"context"
	"time"
)

// LLMCallRecord describes one completed LLM call for metrics purposes.
type LLMCallRecord struct {
	Stage            string
	Model            string
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Err              error
}

// StageRecord describes one completed pipeline stage invocation.
type StageRecord struct {
	Stage    string
	Duration time.Duration
	Items    int
	Err      error
}

// Telemetry is the port every stage and the server record through.
// Implementations own their own synchronization; callers may invoke it
// concurrently from worker-pool goroutines.
type Telemetry interface {
	// RecordLLMCall logs one LLM call's outcome and accounting.
	RecordLLMCall(ctx context.Context, rec LLMCallRecord)

	// RecordStage logs one stage invocation's outcome.
	RecordStage(ctx context.Context, rec StageRecord)

	// StartSpan begins a trace span for the given operation name, returning
	// a context carrying it and a function to end it.
	StartSpan(ctx context.Context, name string) (context.Context, func())

	// Flush gives the implementation a chance to drain any buffered data.
	// Fire-and-forget sinks may no-op.
	Flush(ctx context.Context)
}
