package telemetry

import "context"

// NoOp discards every record. Used in tests and when telemetry is
// disabled by configuration.
type NoOp struct{}

var _ Telemetry = NoOp{}

func (NoOp) RecordLLMCall(ctx context.Context, rec LLMCallRecord) {}

func (NoOp) RecordStage(ctx context.Context, rec StageRecord) {}

func (NoOp) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOp) Flush(ctx context.Context) {}
