// Package taxonomy implements Stage 1: deriving a two-level topic/subtopic
// taxonomy from a batch of raw comments in a single LLM call.
package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/talktothecity/pipeline/pkg/claims"
	"github.com/talktothecity/pipeline/pkg/costing"
	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/jsonextract"
	"github.com/talktothecity/pipeline/pkg/llm"
	"github.com/talktothecity/pipeline/pkg/telemetry"
)

const schemaHint = `{"taxonomy":[{"topicName":"...","topicShortDescription":"...","subtopics":[{"subtopicName":"...","subtopicShortDescription":"..."}]}]}`

// Input is the Stage 1 request.
type Input struct {
	Comments []domain.Comment
	LLM      domain.LLMConfig
	// Filter decides which comments are meaningful enough to include in the
	// taxonomy prompt. The zero value falls back to claims.DefaultFilter.
	Filter claims.Filter
}

// Output is the Stage 1 response. Data is the bare array, not the
// wrapping {"taxonomy": ...} object, matching the source API shape.
type Output struct {
	Data  domain.Taxonomy  `json:"data"`
	Usage domain.TokenUsage `json:"usage"`
	Cost  float64          `json:"cost"`
}

// Taxonomizer builds a taxonomy from comments using a single LLM call.
type Taxonomizer struct {
	completer llm.Completer
	telemetry telemetry.Telemetry
}

// New constructs a Taxonomizer backed by completer, recording metrics
// through tel. A nil tel is replaced with telemetry.NoOp.
func New(completer llm.Completer, tel telemetry.Telemetry) *Taxonomizer {
	if tel == nil {
		tel = telemetry.NoOp{}
	}
	return &Taxonomizer{completer: completer, telemetry: tel}
}

// rawTaxonomyResponse mirrors the wire shape the model is asked to emit.
type rawTaxonomyResponse struct {
	Taxonomy json.RawMessage `json:"taxonomy"`
}

// Run executes Stage 1: exactly one LLM call followed by JSON extraction
// and normalization. If the model output cannot be parsed, the stage
// swallows the failure and returns an empty taxonomy rather than
// propagating an error to the caller.
func (t *Taxonomizer) Run(ctx context.Context, in Input) (Output, error) {
	if len(in.Comments) == 0 {
		return Output{}, fmt.Errorf("%w: comments must not be empty", domain.ErrInputInvalid)
	}

	ctx, endSpan := t.telemetry.StartSpan(ctx, "stage.taxonomy")
	defer endSpan()
	start := time.Now()

	filter := in.Filter
	if filter == (claims.Filter{}) {
		filter = claims.DefaultFilter
	}
	userPrompt := buildUserPrompt(in.LLM.UserPrompt, in.Comments, filter)

	opts := llm.CompleteOptions{Model: in.LLM.ModelName}
	if t.completer.SupportsJSONMode() {
		opts.JSONMode = true
	} else {
		userPrompt = llm.AugmentPromptForJSON(userPrompt, schemaHint)
	}

	text, usage, err := t.completer.Complete(ctx, in.LLM.SystemPrompt, userPrompt, opts)
	cost := costing.Cost(in.LLM.ModelName, usage.PromptTokens, usage.CompletionTokens)

	t.telemetry.RecordLLMCall(ctx, telemetry.LLMCallRecord{
		Stage: "taxonomy", Model: in.LLM.ModelName, Duration: time.Since(start),
		PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens, Cost: cost, Err: err,
	})
	if err != nil {
		t.telemetry.RecordStage(ctx, telemetry.StageRecord{Stage: "taxonomy", Duration: time.Since(start), Err: err})
		return Output{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
	}

	taxonomy := extractTaxonomy(text)
	normalize(&taxonomy)

	t.telemetry.RecordStage(ctx, telemetry.StageRecord{Stage: "taxonomy", Duration: time.Since(start), Items: len(taxonomy)})
	return Output{Data: taxonomy, Usage: usage, Cost: cost}, nil
}

func buildUserPrompt(prefix string, comments []domain.Comment, filter claims.Filter) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, c := range comments {
		if !filter.IsMeaningful(c.Text) {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// extractTaxonomy runs JSONExtractor and decodes the result into a
// Taxonomy. Any failure (extraction or decode) yields an empty taxonomy,
// per the ExtractionFailure swallow policy for this stage.
func extractTaxonomy(text string) domain.Taxonomy {
	raw, err := jsonextract.Extract(text)
	if err != nil {
		slog.Warn("taxonomy extraction failed", "error", err)
		return domain.Taxonomy{}
	}

	var wrapper rawTaxonomyResponse
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Taxonomy == nil {
		slog.Warn("taxonomy response missing taxonomy field", "error", err)
		return domain.Taxonomy{}
	}

	var taxonomy domain.Taxonomy
	if err := json.Unmarshal(wrapper.Taxonomy, &taxonomy); err != nil {
		slog.Warn("taxonomy field is not an array", "error", err)
		return domain.Taxonomy{}
	}
	return taxonomy
}

// normalize applies the unconditional Stage 1 normalization rule: every
// topic gets at least one subtopic, synthesizing a "General <topic>"
// placeholder when the model omitted subtopics entirely.
func normalize(taxonomy *domain.Taxonomy) {
	for i := range *taxonomy {
		topic := &(*taxonomy)[i]
		if len(topic.Subtopics) > 0 {
			continue
		}
		topic.Subtopics = []domain.Subtopic{{
			Name:        "General " + topic.Name,
			Description: "General aspects of " + strings.ToLower(topic.Name),
		}}
	}
}
