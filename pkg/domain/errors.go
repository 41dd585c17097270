package domain

import "errors"

// Error taxonomy. Stages and the server wrap these with fmt.Errorf("%w: ...")
// and compare with errors.Is; the server maps them to status codes.
var (
	// ErrInputInvalid covers missing required fields, empty comment lists,
	// malformed trees, and unsupported sort keys. Maps to HTTP 400.
	ErrInputInvalid = errors.New("input invalid")

	// ErrLLMTransportFailure covers network/timeout failures from the LLM
	// client. Maps to HTTP 502. Never retried at this layer.
	ErrLLMTransportFailure = errors.New("llm transport failure")

	// ErrCancelled is returned when the request context is done before a
	// stage can produce a result. Maps to HTTP 499.
	ErrCancelled = errors.New("request cancelled")

	// ErrExtractionFailure marks a per-item JSON extraction exhaustion.
	// Never returned to callers; stages swallow it with a stage-specific
	// default and a logged warning. No telemetry record marks the failure.
	ErrExtractionFailure = errors.New("json extraction failed")

	// ErrSchemaMismatch marks a parsed-but-incomplete model response.
	// Never returned to callers; the stage normalizes and logs a warning.
	ErrSchemaMismatch = errors.New("schema mismatch")
)
