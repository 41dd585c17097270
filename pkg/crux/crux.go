// Package crux implements Stage 4: per-subtopic crux synthesis, speaker
// anonymization, and the controversy-matrix/top-K analysis across cruxes.
package crux

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/talktothecity/pipeline/pkg/costing"
	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/jsonextract"
	"github.com/talktothecity/pipeline/pkg/llm"
	"github.com/talktothecity/pipeline/pkg/telemetry"
	"github.com/talktothecity/pipeline/pkg/workerpool"
)

const schemaHint = `{"crux":{"cruxClaim":"...","agree":["0:..."],"disagree":["1:..."],"explanation":"..."}}`

const noFurtherDetails = "No further details"

// Input is the Stage 4 request.
type Input struct {
	CruxTree domain.ClaimTree
	LLM      domain.LLMConfig
	Topics   domain.Taxonomy
	TopK     int
}

// Output is the Stage 4 response.
type Output struct {
	CruxClaims        []domain.CruxRow        `json:"cruxClaims"`
	ControversyMatrix domain.ControversyMatrix `json:"controversyMatrix"`
	TopCruxes         []domain.TopCruxPair     `json:"topCruxes"`
	Usage             domain.TokenUsage        `json:"usage"`
	Cost              float64                  `json:"cost"`
}

// Engine runs Stage 4 with a bounded pool of concurrent per-subtopic
// crux-synthesis calls.
type Engine struct {
	completer llm.Completer
	telemetry telemetry.Telemetry
	poolSize  int
}

// New constructs an Engine. poolSize <= 0 defaults to 1.
func New(completer llm.Completer, tel telemetry.Telemetry, poolSize int) *Engine {
	if tel == nil {
		tel = telemetry.NoOp{}
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Engine{completer: completer, telemetry: tel, poolSize: poolSize}
}

type cruxWire struct {
	CruxClaim   string   `json:"cruxClaim"`
	Agree       []string `json:"agree"`
	Disagree    []string `json:"disagree"`
	Explanation string   `json:"explanation"`
}

type subtopicJob struct {
	topicName   string
	subName     string
	description string
	bucket      *domain.SubtopicBucket
}

// Run executes Stage 4: speaker-map construction, per-subtopic crux
// synthesis (skipping subtopics with too few claims or speakers), and the
// controversy matrix / top-K analysis over the resulting cruxes.
func (e *Engine) Run(ctx context.Context, in Input) (Output, error) {
	if len(in.CruxTree) == 0 {
		return Output{}, fmt.Errorf("%w: cruxTree must not be empty", domain.ErrInputInvalid)
	}

	ctx, endSpan := e.telemetry.StartSpan(ctx, "stage.crux")
	defer endSpan()
	start := time.Now()

	speakerMap := domain.NewSpeakerMap(in.CruxTree)
	jobs := eligibleJobs(in.CruxTree, buildTopicDesc(in.Topics))

	type result struct {
		row   *domain.CruxRow
		usage domain.TokenUsage
	}

	results, errs := workerpool.RunBestEffort(ctx, len(jobs), e.poolSize, func(ctx context.Context, i int) (result, error) {
		row, usage, err := e.synthesizeCrux(ctx, jobs[i], speakerMap, in.LLM)
		return result{row: row, usage: usage}, err
	})

	if err := ctx.Err(); err != nil {
		return Output{}, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
	}

	var usage domain.TokenUsage
	var cruxes []domain.CruxRow
	for i, r := range results {
		if errs[i] != nil {
			slog.Warn("crux synthesis failed", "topic", jobs[i].topicName, "subtopic", jobs[i].subName, "error", errs[i])
			continue
		}
		usage.Add(r.usage)
		if r.row != nil {
			cruxes = append(cruxes, *r.row)
		}
	}

	matrix := buildControversyMatrix(cruxes, speakerMap)
	topCruxes := topKCruxes(cruxes, matrix, in.TopK)

	cost := costing.Cost(in.LLM.ModelName, usage.PromptTokens, usage.CompletionTokens)
	e.telemetry.RecordStage(ctx, telemetry.StageRecord{Stage: "crux", Duration: time.Since(start), Items: len(cruxes)})
	return Output{CruxClaims: cruxes, ControversyMatrix: matrix, TopCruxes: topCruxes, Usage: usage, Cost: cost}, nil
}

func buildTopicDesc(topics domain.Taxonomy) map[string]string {
	desc := make(map[string]string, len(topics)*2)
	for _, t := range topics {
		desc[t.Name] = t.Description
		for _, s := range t.Subtopics {
			desc[s.Name] = s.Description
		}
	}
	return desc
}

// eligibleJobs returns every (topic, subtopic) pair with at least 2
// claims and at least 2 distinct speakers, in deterministic name order,
// each carrying its subtopic description from the taxonomy.
func eligibleJobs(tree domain.ClaimTree, topicDesc map[string]string) []subtopicJob {
	topicNames := make([]string, 0, len(tree))
	for name := range tree {
		topicNames = append(topicNames, name)
	}
	sort.Strings(topicNames)

	var jobs []subtopicJob
	for _, topicName := range topicNames {
		bucket := tree[topicName]
		subNames := make([]string, 0, len(bucket.Subtopics))
		for name := range bucket.Subtopics {
			subNames = append(subNames, name)
		}
		sort.Strings(subNames)
		for _, subName := range subNames {
			sub := bucket.Subtopics[subName]
			if len(sub.Claims) < 2 || len(sub.Speakers) < 2 {
				continue
			}
			jobs = append(jobs, subtopicJob{topicName: topicName, subName: subName, description: topicDesc[subName], bucket: sub})
		}
	}
	return jobs
}

func (e *Engine) synthesizeCrux(ctx context.Context, job subtopicJob, speakerMap domain.SpeakerMap, llmCfg domain.LLMConfig) (*domain.CruxRow, domain.TokenUsage, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s, %s\n", job.topicName, job.subName)

	description := job.description
	if description == "" {
		description = noFurtherDetails
	}
	sb.WriteString(description)
	sb.WriteString("\n")

	for _, c := range job.bucket.Claims {
		speaker := c.Speaker
		if speaker == "" {
			speaker = domain.UnknownSpeaker
		}
		fmt.Fprintf(&sb, "%s:%s\n", speakerMap[speaker], c.Text)
	}

	userPrompt := llmCfg.UserPrompt + "\n" + sb.String()
	opts := llm.CompleteOptions{Model: llmCfg.ModelName}
	if e.completer.SupportsJSONMode() {
		opts.JSONMode = true
	} else {
		userPrompt = llm.AugmentPromptForJSON(userPrompt, schemaHint)
	}

	callStart := time.Now()
	text, usage, err := e.completer.Complete(ctx, llmCfg.SystemPrompt, userPrompt, opts)
	cost := costing.Cost(llmCfg.ModelName, usage.PromptTokens, usage.CompletionTokens)
	e.telemetry.RecordLLMCall(ctx, telemetry.LLMCallRecord{
		Stage: "crux", Model: llmCfg.ModelName, Duration: time.Since(callStart),
		PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens, Cost: cost, Err: err,
	})
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
	}

	row := extractCruxRow(text)
	return row, usage, nil
}

// extractCruxRow accepts either {"crux": {...}} or a bare CruxRow object;
// any other shape is skipped with a warning, per the ExtractionFailure
// swallow policy for this stage.
func extractCruxRow(text string) *domain.CruxRow {
	raw, err := jsonextract.Extract(text)
	if err != nil {
		slog.Warn("crux extraction failed", "error", err)
		return nil
	}

	var wrapped struct {
		Crux *cruxWire `json:"crux"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Crux != nil {
		return normalizeCruxRow(wrapped.Crux)
	}

	var bare cruxWire
	if err := json.Unmarshal(raw, &bare); err != nil || bare.CruxClaim == "" {
		slog.Warn("crux response did not match expected shape", "error", err)
		return nil
	}
	return normalizeCruxRow(&bare)
}

func normalizeCruxRow(w *cruxWire) *domain.CruxRow {
	return &domain.CruxRow{
		CruxClaim:   w.CruxClaim,
		Agree:       stripToSpeakerID(w.Agree),
		Disagree:    stripToSpeakerID(w.Disagree),
		Explanation: w.Explanation,
	}
}

// stripToSpeakerID normalizes "<id>:<claimText>" entries down to the
// speaker id before the first colon.
func stripToSpeakerID(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if idx := strings.Index(e, ":"); idx >= 0 {
			out = append(out, e[:idx])
		} else {
			out = append(out, e)
		}
	}
	return out
}

// buildControversyMatrix scores each crux/speaker pair and accumulates
// pairwise disagreement across the full speaker set.
func buildControversyMatrix(cruxes []domain.CruxRow, speakerMap domain.SpeakerMap) domain.ControversyMatrix {
	n := len(cruxes)
	matrix := domain.NewControversyMatrix(n)
	if n == 0 {
		return matrix
	}

	speakerIDs := make([]string, 0, len(speakerMap))
	for _, id := range speakerMap {
		speakerIDs = append(speakerIDs, id)
	}
	sort.Strings(speakerIDs)

	scores := make([][]float64, n)
	for i, row := range cruxes {
		agree := toSet(row.Agree)
		disagree := toSet(row.Disagree)
		scores[i] = make([]float64, len(speakerIDs))
		for s, id := range speakerIDs {
			switch {
			case agree[id]:
				scores[i][s] = 1
			case disagree[id]:
				scores[i][s] = 0.5
			default:
				scores[i][s] = 0
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var total float64
			for s := range speakerIDs {
				a, b := scores[i][s], scores[j][s]
				switch {
				case a == b:
					// no controversy
				case a == 0 || b == 0:
					total += 0.5
				default:
					total += 1
				}
			}
			matrix[i][j] = total
			matrix[j][i] = total
		}
	}
	return matrix
}

func toSet(entries []string) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e] = true
	}
	return set
}

// topKCruxes enumerates the upper triangle of the controversy matrix and
// returns the K highest-scoring pairs. topK == 0 selects K = min(ceil(sqrt(N)), 10).
func topKCruxes(cruxes []domain.CruxRow, matrix domain.ControversyMatrix, topK int) []domain.TopCruxPair {
	n := len(cruxes)
	if n < 2 {
		return nil
	}

	k := topK
	if k == 0 {
		k = int(math.Ceil(math.Sqrt(float64(n))))
		if k > 10 {
			k = 10
		}
	}

	var pairs []domain.TopCruxPair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, domain.TopCruxPair{
				Score: matrix[i][j], CruxA: cruxes[i], CruxB: cruxes[j], IndexA: i, IndexB: j,
			})
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].Score > pairs[b].Score })
	if k < len(pairs) {
		pairs = pairs[:k]
	}
	return pairs
}
