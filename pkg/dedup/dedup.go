// Package dedup implements Stage 3: per-subtopic duplicate detection,
// equivalence-class folding, and popularity sorting of the claim tree.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/talktothecity/pipeline/pkg/costing"
	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/jsonextract"
	"github.com/talktothecity/pipeline/pkg/llm"
	"github.com/talktothecity/pipeline/pkg/telemetry"
	"github.com/talktothecity/pipeline/pkg/workerpool"
)

const schemaHint = `{"nesting":{"claimId0":["claimId1"],"claimId1":[]}}`

// SortKey selects the popularity metric used to order topics and
// subtopics in the output tree.
type SortKey string

const (
	SortByNumPeople SortKey = "numPeople"
	SortByNumClaims SortKey = "numClaims"
)

// Input is the Stage 3 request.
type Input struct {
	Tree domain.ClaimTree
	LLM  domain.LLMConfig
	Sort SortKey
}

// Output is the Stage 3 response.
type Output struct {
	Data  domain.SortedTree `json:"data"`
	Usage domain.TokenUsage `json:"usage"`
	Cost  float64           `json:"cost"`
}

// Deduper runs Stage 3 with a bounded pool of concurrent per-subtopic
// dedup calls.
type Deduper struct {
	completer llm.Completer
	telemetry telemetry.Telemetry
	poolSize  int
}

// New constructs a Deduper. poolSize <= 0 defaults to 1.
func New(completer llm.Completer, tel telemetry.Telemetry, poolSize int) *Deduper {
	if tel == nil {
		tel = telemetry.NoOp{}
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Deduper{completer: completer, telemetry: tel, poolSize: poolSize}
}

type nestingResponse struct {
	Nesting map[string][]string `json:"nesting"`
}

// subtopicJob names one (topic, subtopic) pair to be processed, flattened
// for worker-pool dispatch with a stable index.
type subtopicJob struct {
	topicName string
	subName   string
	bucket    *domain.SubtopicBucket
}

type subtopicResult struct {
	canonicals []domain.Claim
	usage      domain.TokenUsage
}

// Run executes Stage 3: per-subtopic dedup calls fanned out over a
// bounded pool, equivalence-class folding, then popularity sorting.
func (d *Deduper) Run(ctx context.Context, in Input) (Output, error) {
	if in.Sort != SortByNumPeople && in.Sort != SortByNumClaims {
		return Output{}, fmt.Errorf("%w: sort must be %q or %q, got %q", domain.ErrInputInvalid, SortByNumPeople, SortByNumClaims, in.Sort)
	}
	if len(in.Tree) == 0 {
		return Output{}, fmt.Errorf("%w: tree must not be empty", domain.ErrInputInvalid)
	}

	ctx, endSpan := d.telemetry.StartSpan(ctx, "stage.dedup")
	defer endSpan()
	start := time.Now()

	jobs := flattenJobs(in.Tree)

	results, errs := workerpool.RunBestEffort(ctx, len(jobs), d.poolSize, func(ctx context.Context, i int) (subtopicResult, error) {
		return d.dedupSubtopic(ctx, jobs[i], in.LLM)
	})

	if err := ctx.Err(); err != nil {
		return Output{}, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
	}

	var usage domain.TokenUsage
	canonicalsByKey := make(map[string][]domain.Claim, len(jobs))
	for i, job := range jobs {
		if errs[i] != nil {
			slog.Warn("subtopic dedup failed", "topic", job.topicName, "subtopic", job.subName, "error", errs[i])
			continue
		}
		usage.Add(results[i].usage)
		canonicalsByKey[key(job.topicName, job.subName)] = results[i].canonicals
	}

	sorted := buildSortedTree(in.Tree, canonicalsByKey, in.Sort)

	cost := costing.Cost(in.LLM.ModelName, usage.PromptTokens, usage.CompletionTokens)
	d.telemetry.RecordStage(ctx, telemetry.StageRecord{Stage: "dedup", Duration: time.Since(start), Items: len(jobs)})
	return Output{Data: sorted, Usage: usage, Cost: cost}, nil
}

func key(topic, subtopic string) string { return topic + "\x00" + subtopic }

func flattenJobs(tree domain.ClaimTree) []subtopicJob {
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
			jobs = append(jobs, subtopicJob{topicName: topicName, subName: subName, bucket: bucket.Subtopics[subName]})
		}
	}
	return jobs
}

// dedupSubtopic handles one subtopic bucket: buckets with at most one
// claim need no LLM call; larger buckets get one dedup call and are
// folded into equivalence classes.
func (d *Deduper) dedupSubtopic(ctx context.Context, job subtopicJob, llmCfg domain.LLMConfig) (subtopicResult, error) {
	claims := job.bucket.Claims
	if len(claims) <= 1 {
		return subtopicResult{canonicals: append([]domain.Claim{}, claims...)}, nil
	}

	var sb strings.Builder
	for i, c := range claims {
		fmt.Fprintf(&sb, "claimId%d: %s\n", i, c.Text)
	}

	userPrompt := llmCfg.UserPrompt + "\n" + sb.String()
	opts := llm.CompleteOptions{Model: llmCfg.ModelName}
	if d.completer.SupportsJSONMode() {
		opts.JSONMode = true
	} else {
		userPrompt = llm.AugmentPromptForJSON(userPrompt, schemaHint)
	}

	callStart := time.Now()
	text, usage, err := d.completer.Complete(ctx, llmCfg.SystemPrompt, userPrompt, opts)
	cost := costing.Cost(llmCfg.ModelName, usage.PromptTokens, usage.CompletionTokens)
	d.telemetry.RecordLLMCall(ctx, telemetry.LLMCallRecord{
		Stage: "dedup", Model: llmCfg.ModelName, Duration: time.Since(callStart),
		PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens, Cost: cost, Err: err,
	})
	if err != nil {
		return subtopicResult{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
	}

	nesting := extractNesting(text)
	canonicals := foldDuplicates(claims, nesting)
	return subtopicResult{canonicals: canonicals, usage: usage}, nil
}

// extractNesting runs JSONExtractor against the dedup response, defaulting
// to an empty nesting map on any extraction or schema failure.
func extractNesting(text string) map[string][]string {
	raw, err := jsonextract.Extract(text)
	if err != nil {
		slog.Warn("dedup extraction failed", "error", err)
		return map[string][]string{}
	}
	var resp nestingResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Nesting == nil {
		slog.Warn("dedup response missing nesting field", "error", err)
		return map[string][]string{}
	}
	return resp.Nesting
}

// closeNestingRelation turns the model's possibly-asymmetric "claimIdK" ->
// []"claimIdJ" nesting map into a symmetric neighbor map keyed by integer
// claim index.
func closeNestingRelation(nesting map[string][]string) map[int]map[int]bool {
	dupeMap := make(map[int]map[int]bool)
	ensure := func(i int) map[int]bool {
		if dupeMap[i] == nil {
			dupeMap[i] = make(map[int]bool)
		}
		return dupeMap[i]
	}

	for key, values := range nesting {
		if len(values) == 0 {
			continue
		}
		k, err := parseClaimIndex(key)
		if err != nil {
			continue
		}
		group := map[int]bool{k: true}
		for _, v := range values {
			j, err := parseClaimIndex(v)
			if err != nil {
				continue
			}
			group[j] = true
		}
		for e := range group {
			neighbors := ensure(e)
			for other := range group {
				if other != e {
					neighbors[other] = true
				}
			}
		}
	}
	return dupeMap
}

// parseClaimIndex extracts the integer k from a "claimIdK" token by
// splitting on the literal "Id", matching how the dedup prompt was built.
func parseClaimIndex(token string) (int, error) {
	parts := strings.SplitN(token, "Id", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed claim id token %q", token)
	}
	return strconv.Atoi(parts[1])
}

// foldDuplicates walks claims in original order, folding each claim's
// closed neighbor set into a single canonical claim, sorted by duplicate
// count descending (stable).
func foldDuplicates(claims []domain.Claim, nesting map[string][]string) []domain.Claim {
	dupeMap := closeNestingRelation(nesting)
	visited := make(map[int]bool)
	var canonicals []domain.Claim

	for k := range claims {
		if visited[k] {
			continue
		}
		canonical := claims[k]
		canonical.Duplicates = nil
		canonical.Duplicated = false

		neighbors := sortedInts(dupeMap[k])
		for _, m := range neighbors {
			if visited[m] || m == k {
				continue
			}
			dup := claims[m]
			dup.Duplicated = true
			dup.Duplicates = nil
			canonical.Duplicates = append(canonical.Duplicates, dup)
			visited[m] = true
		}
		visited[k] = true
		canonicals = append(canonicals, canonical)
	}

	sort.SliceStable(canonicals, func(i, j int) bool {
		return len(canonicals[i].Duplicates) > len(canonicals[j].Duplicates)
	})
	return canonicals
}

func sortedInts(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// buildSortedTree assembles the final SortedTree from the claim tree's
// speaker/count metadata and each subtopic's canonical claim list, sorted
// by the chosen popularity key at both nesting levels.
func buildSortedTree(tree domain.ClaimTree, canonicalsByKey map[string][]domain.Claim, sortKey SortKey) domain.SortedTree {
	topicNames := make([]string, 0, len(tree))
	for name := range tree {
		topicNames = append(topicNames, name)
	}
	sort.Strings(topicNames)

	sortedTopics := make(domain.SortedTree, 0, len(tree))
	for _, topicName := range topicNames {
		bucket := tree[topicName]

		subNames := make([]string, 0, len(bucket.Subtopics))
		for name := range bucket.Subtopics {
			subNames = append(subNames, name)
		}
		sort.Strings(subNames)

		subtopics := make([]domain.SortedSubtopic, 0, len(subNames))
		for _, subName := range subNames {
			subBucket := bucket.Subtopics[subName]
			claims := canonicalsByKey[key(topicName, subName)]
			subtopics = append(subtopics, domain.SortedSubtopic{
				Name:    subName,
				Claims:  claims,
				Speaker: subBucket.SpeakerList(),
				Counts:  domain.Counts{Claims: subBucket.Total, Speakers: len(subBucket.Speakers)},
			})
		}

		sortEntries(subtopics, sortKey)

		sortedTopics = append(sortedTopics, domain.SortedTopic{
			Name:      topicName,
			Subtopics: subtopics,
			Speakers:  bucket.SpeakerList(),
			Counts:    domain.Counts{Claims: bucket.Total, Speakers: len(bucket.Speakers)},
		})
	}

	sort.SliceStable(sortedTopics, func(i, j int) bool {
		return topicKey(sortedTopics[i], sortKey) > topicKey(sortedTopics[j], sortKey)
	})
	return sortedTopics
}

func sortEntries(subtopics []domain.SortedSubtopic, sortKey SortKey) {
	sort.SliceStable(subtopics, func(i, j int) bool {
		return subtopicKey(subtopics[i], sortKey) > subtopicKey(subtopics[j], sortKey)
	})
}

func topicKey(t domain.SortedTopic, sortKey SortKey) int {
	if sortKey == SortByNumPeople {
		return t.Counts.Speakers
	}
	return t.Counts.Claims
}

func subtopicKey(s domain.SortedSubtopic, sortKey SortKey) int {
	if sortKey == SortByNumPeople {
		return s.Counts.Speakers
	}
	return s.Counts.Claims
}
