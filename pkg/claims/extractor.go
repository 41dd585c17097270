// Package claims implements the meaningful-comment filter and Stage 2:
// per-comment claim extraction and placement under the Stage 1 taxonomy.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/talktothecity/pipeline/pkg/costing"
	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/jsonextract"
	"github.com/talktothecity/pipeline/pkg/llm"
	"github.com/talktothecity/pipeline/pkg/telemetry"
	"github.com/talktothecity/pipeline/pkg/workerpool"
)

const schemaHint = `{"claims":[{"claim":"...","quote":"...","topicName":"...","subtopicName":"..."}]}`

// Input is the Stage 2 request. Tree is the Stage 1 taxonomy, used both to
// build the placement prompt and to reconcile claim placement afterward.
type Input struct {
	Comments []domain.Comment
	LLM      domain.LLMConfig
	Tree     domain.Taxonomy
	// Filter decides which comments are worth sending to the LLM. The zero
	// value falls back to DefaultFilter.
	Filter Filter
}

// Output is the Stage 2 response.
type Output struct {
	Data  domain.ClaimTree  `json:"data"`
	Usage domain.TokenUsage `json:"usage"`
	Cost  float64           `json:"cost"`
}

// Extractor runs Stage 2 with a bounded pool of concurrent per-comment
// LLM calls.
type Extractor struct {
	completer llm.Completer
	telemetry telemetry.Telemetry
	poolSize  int
}

// New constructs an Extractor. poolSize <= 0 defaults to 1 (serial).
func New(completer llm.Completer, tel telemetry.Telemetry, poolSize int) *Extractor {
	if tel == nil {
		tel = telemetry.NoOp{}
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Extractor{completer: completer, telemetry: tel, poolSize: poolSize}
}

type claimObj struct {
	Claim        string `json:"claim"`
	Quote        string `json:"quote"`
	TopicName    string `json:"topicName"`
	SubtopicName string `json:"subtopicName"`
}

type rawClaimsResponse struct {
	Claims []claimObj `json:"claims"`
}

// Run executes Stage 2: one LLM call per meaningful comment, fanned out
// over a bounded worker pool, followed by placement reconciliation and
// ClaimTree accumulation.
func (e *Extractor) Run(ctx context.Context, in Input) (Output, error) {
	if len(in.Comments) == 0 {
		return Output{}, fmt.Errorf("%w: comments must not be empty", domain.ErrInputInvalid)
	}

	ctx, endSpan := e.telemetry.StartSpan(ctx, "stage.claims")
	defer endSpan()
	start := time.Now()

	treeJSON, err := json.Marshal(struct {
		Taxonomy domain.Taxonomy `json:"taxonomy"`
	}{Taxonomy: in.Tree})
	if err != nil {
		return Output{}, fmt.Errorf("%w: marshal tree: %v", domain.ErrInputInvalid, err)
	}

	filter := in.Filter
	if filter == (Filter{}) {
		filter = DefaultFilter
	}

	dispatchable := make([]domain.Comment, 0, len(in.Comments))
	for _, c := range in.Comments {
		if filter.IsMeaningful(c.Text) {
			dispatchable = append(dispatchable, c)
		}
	}

	type result struct {
		claims []domain.Claim
		usage  domain.TokenUsage
	}

	results, errs := workerpool.RunBestEffort(ctx, len(dispatchable), e.poolSize, func(ctx context.Context, i int) (result, error) {
		comment := dispatchable[i]
		userPrompt := in.LLM.UserPrompt + "\n" + string(treeJSON) + "\nAnd then here is the comment:\n" + comment.Text

		opts := llm.CompleteOptions{Model: in.LLM.ModelName}
		if e.completer.SupportsJSONMode() {
			opts.JSONMode = true
		} else {
			userPrompt = llm.AugmentPromptForJSON(userPrompt, schemaHint)
		}

		callStart := time.Now()
		text, usage, err := e.completer.Complete(ctx, in.LLM.SystemPrompt, userPrompt, opts)
		cost := costing.Cost(in.LLM.ModelName, usage.PromptTokens, usage.CompletionTokens)
		e.telemetry.RecordLLMCall(ctx, telemetry.LLMCallRecord{
			Stage: "claims", Model: in.LLM.ModelName, Duration: time.Since(callStart),
			PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens, Cost: cost, Err: err,
		})
		if err != nil {
			return result{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
		}

		parsed, extractErr := extractClaims(text)
		claims := make([]domain.Claim, 0, len(parsed))
		for _, c := range parsed {
			claims = append(claims, domain.Claim{
				Text:         c.Claim,
				Quote:        c.Quote,
				TopicName:    c.TopicName,
				SubtopicName: c.SubtopicName,
				CommentID:    comment.ID,
				Speaker:      comment.Speaker,
			})
		}
		if extractErr != nil {
			slog.Warn("claim extraction failed for comment", "comment_id", comment.ID, "error", extractErr)
		}
		return result{claims: claims, usage: usage}, nil
	})

	if err := ctx.Err(); err != nil {
		return Output{}, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
	}

	var usage domain.TokenUsage
	var allClaims []domain.Claim
	for i, r := range results {
		if errs[i] != nil {
			slog.Warn("comment LLM call failed", "comment_id", dispatchable[i].ID, "error", errs[i])
			continue
		}
		usage.Add(r.usage)
		allClaims = append(allClaims, r.claims...)
	}

	placed := placeClaims(allClaims, in.Tree)
	tree := buildTree(placed)
	ensureCoverage(tree, in.Tree)

	cost := costing.Cost(in.LLM.ModelName, usage.PromptTokens, usage.CompletionTokens)
	e.telemetry.RecordStage(ctx, telemetry.StageRecord{Stage: "claims", Duration: time.Since(start), Items: len(placed)})
	return Output{Data: tree, Usage: usage, Cost: cost}, nil
}

// extractClaims runs JSONExtractor and accepts either {"claims":[...]} or
// a bare array, wrapping the latter.
func extractClaims(text string) ([]claimObj, error) {
	raw, err := jsonextract.Extract(text)
	if err != nil {
		return nil, err
	}

	var bare []claimObj
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var wrapper rawClaimsResponse
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaMismatch, err)
	}
	return wrapper.Claims, nil
}

// placeClaims applies the Stage 2 placement/reconciliation rule: a claim
// missing topicName is assigned the taxonomy's first topic/subtopic, or
// dropped if the taxonomy is empty.
func placeClaims(allClaims []domain.Claim, tree domain.Taxonomy) []domain.Claim {
	placed := make([]domain.Claim, 0, len(allClaims))
	for _, c := range allClaims {
		if c.TopicName == "" {
			if len(tree) == 0 {
				continue
			}
			c.TopicName = tree[0].Name
			if len(tree[0].Subtopics) > 0 {
				c.SubtopicName = tree[0].Subtopics[0].Name
			} else {
				c.SubtopicName = domain.GeneralSubtopic
			}
		}
		placed = append(placed, c)
	}
	return placed
}

// buildTree accumulates claims into a ClaimTree, preserving dispatch order
// within each subtopic bucket's claims slice.
func buildTree(placed []domain.Claim) domain.ClaimTree {
	tree := make(domain.ClaimTree)
	for _, c := range placed {
		topicBucket, ok := tree[c.TopicName]
		if !ok {
			topicBucket = domain.NewTopicBucket()
			tree[c.TopicName] = topicBucket
		}
		topicBucket.Total++
		topicBucket.Speakers[speakerOrUnknown(c.Speaker)] = true

		subName := c.SubtopicName
		if subName == "" {
			subName = domain.GeneralSubtopic
		}
		subBucket, ok := topicBucket.Subtopics[subName]
		if !ok {
			subBucket = domain.NewSubtopicBucket()
			topicBucket.Subtopics[subName] = subBucket
		}
		subBucket.Total++
		subBucket.Speakers[speakerOrUnknown(c.Speaker)] = true
		subBucket.Claims = append(subBucket.Claims, c)
	}
	return tree
}

// ensureCoverage guarantees every (topic, subtopic) pair from the input
// taxonomy appears in the ClaimTree. A topic that received no claims at
// all gets a single "None" placeholder subtopic rather than an empty
// bucket per taxonomy subtopic; a topic present in the tree but missing
// one of its taxonomy subtopics gets that subtopic added empty.
func ensureCoverage(tree domain.ClaimTree, taxonomy domain.Taxonomy) {
	for _, topic := range taxonomy {
		topicBucket, ok := tree[topic.Name]
		if !ok {
			topicBucket = domain.NewTopicBucket()
			tree[topic.Name] = topicBucket
			topicBucket.Subtopics[domain.NoneSubtopic] = domain.NewSubtopicBucket()
			continue
		}
		for _, sub := range topic.Subtopics {
			if _, ok := topicBucket.Subtopics[sub.Name]; !ok {
				topicBucket.Subtopics[sub.Name] = domain.NewSubtopicBucket()
			}
		}
	}
}

func speakerOrUnknown(speaker string) string {
	if speaker == "" {
		return domain.UnknownSpeaker
	}
	return speaker
}
