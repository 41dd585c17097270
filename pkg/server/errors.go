package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/talktothecity/pipeline/pkg/domain"
)

// statusForErr maps the pipeline's error taxonomy to HTTP status codes
// per §7: InputInvalid -> 400, LLMTransportFailure -> 502, cancellation
// -> 499 (a de facto nginx/client-disconnect convention, not in the IANA
// registry), anything else -> 500.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, domain.ErrCancelled):
		return 499
	case errors.Is(err, domain.ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLLMTransportFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs the failure and writes a JSON error body with the
// status statusForErr selects.
func writeError(w http.ResponseWriter, err error) {
	status := statusForErr(err)
	if status >= 500 {
		slog.Error("stage failed", "error", err)
	} else {
		slog.Warn("request rejected", "error", err, "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeJSON writes v as a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

// decodeJSON decodes the request body into v, wrapping any failure as
// InputInvalid.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode request body: %v", domain.ErrInputInvalid, err)
	}
	return nil
}
