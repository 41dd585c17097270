// Package llm abstracts LLM transport behind a single synchronous
// completion port, with two concrete adapters: a cloud chat-completion
// backend that supports JSON-mode response formatting, and an Ollama-style
// local backend that does not.
package llm

import (
	"context"

	"github.com/talktothecity/pipeline/pkg/domain"
)

// CompleteOptions controls one completion call.
type CompleteOptions struct {
	// Model overrides the provider's configured default model for this call.
	Model string
	// JSONMode requests a structured JSON response when the backend
	// supports it natively (cloud backends); for backends that don't, the
	// caller is expected to have already augmented the prompt text.
	JSONMode bool
	// Temperature overrides the provider's configured default.
	Temperature *float64
}

// Completer is the port every pipeline stage calls through. A single call
// is a synchronous request/response exchange; there is no streaming and no
// retry of pipeline semantics (the transport layer may retry connection
// failures, never the call itself).
type Completer interface {
	// Complete issues one completion call and returns the raw response
	// text plus the token accounting for the call.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (text string, usage domain.TokenUsage, err error)

	// ModelName returns the model this completer is configured to use by
	// default (before any per-call override).
	ModelName() string

	// SupportsJSONMode reports whether this backend can be asked to emit
	// strict JSON natively, as opposed to requiring prompt augmentation.
	SupportsJSONMode() bool
}
