package crux

import (
	"context"
	"testing"

	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/llm"
)

type fakeCompleter struct {
	jsonMode bool
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.CompleteOptions) (string, domain.TokenUsage, error) {
	if f.err != nil {
		return "", domain.TokenUsage{}, f.err
	}
	return f.response, domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func (f *fakeCompleter) ModelName() string      { return "gpt-4o-mini" }
func (f *fakeCompleter) SupportsJSONMode() bool { return f.jsonMode }

func bucketWithSpeakers(speakers ...string) *domain.SubtopicBucket {
	b := domain.NewSubtopicBucket()
	for i, speaker := range speakers {
		b.Claims = append(b.Claims, domain.Claim{Text: "claim " + string(rune('A'+i)), Speaker: speaker})
		b.Speakers[speaker] = true
	}
	b.Total = len(speakers)
	return b
}

func TestEligibleJobs_SkipsSmallSubtopics(t *testing.T) {
	tree := domain.ClaimTree{
		"Pets": {
			Subtopics: map[string]*domain.SubtopicBucket{
				"Dogs": bucketWithSpeakers("alice", "bob"),
				"Cats": bucketWithSpeakers("alice", "alice"), // only 1 speaker, ineligible
				"Fish": bucketWithSpeakers("alice"),          // only 1 claim total, ineligible
			},
		},
	}

	jobs := eligibleJobs(tree, map[string]string{"Dogs": "Dog ownership"})
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	if jobs[0].subName != "Dogs" {
		t.Fatalf("eligible job = %q, want Dogs", jobs[0].subName)
	}
	if jobs[0].description != "Dog ownership" {
		t.Fatalf("job description = %q, want taxonomy description carried onto the job", jobs[0].description)
	}
}

func TestRun_ExtractsWrappedAndBareCruxShapes(t *testing.T) {
	tree := domain.ClaimTree{
		"Pets": {
			Subtopics: map[string]*domain.SubtopicBucket{
				"Dogs": bucketWithSpeakers("alice", "bob"),
			},
		},
	}

	for name, response := range map[string]string{
		"wrapped": `{"crux":{"cruxClaim":"Dogs are the best pet","agree":["0:yes"],"disagree":["1:no"],"explanation":"split"}}`,
		"bare":    `{"cruxClaim":"Dogs are the best pet","agree":["0:yes"],"disagree":["1:no"],"explanation":"split"}`,
	} {
		t.Run(name, func(t *testing.T) {
			fc := &fakeCompleter{jsonMode: true, response: response}
			e := New(fc, nil, 1)

			out, err := e.Run(context.Background(), Input{CruxTree: tree, LLM: domain.LLMConfig{ModelName: "gpt-4o-mini"}})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(out.CruxClaims) != 1 {
				t.Fatalf("len(CruxClaims) = %d, want 1", len(out.CruxClaims))
			}
			row := out.CruxClaims[0]
			if row.CruxClaim != "Dogs are the best pet" {
				t.Fatalf("CruxClaim = %q", row.CruxClaim)
			}
			if len(row.Agree) != 1 || row.Agree[0] != "0" {
				t.Fatalf("Agree = %v, want [0]", row.Agree)
			}
			if len(row.Disagree) != 1 || row.Disagree[0] != "1" {
				t.Fatalf("Disagree = %v, want [1]", row.Disagree)
			}
		})
	}
}

func TestRun_SkipsIneligibleSubtopics(t *testing.T) {
	tree := domain.ClaimTree{
		"Pets": {
			Subtopics: map[string]*domain.SubtopicBucket{
				"Cats": bucketWithSpeakers("alice"),
			},
		},
	}
	fc := &fakeCompleter{jsonMode: true, response: `{"cruxClaim":"unused"}`}
	e := New(fc, nil, 1)

	out, err := e.Run(context.Background(), Input{CruxTree: tree, LLM: domain.LLMConfig{}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.CruxClaims) != 0 {
		t.Fatalf("len(CruxClaims) = %d, want 0", len(out.CruxClaims))
	}
}

func TestRun_EmptyTreeIsInputInvalid(t *testing.T) {
	e := New(&fakeCompleter{}, nil, 1)
	_, err := e.Run(context.Background(), Input{})
	if err == nil {
		t.Fatal("expected error for empty CruxTree")
	}
}

func TestBuildControversyMatrix_SymmetricZeroDiagonal(t *testing.T) {
	speakerMap := domain.SpeakerMap{"alice": "0", "bob": "1", "carol": "2"}
	cruxes := []domain.CruxRow{
		{CruxClaim: "A", Agree: []string{"0"}, Disagree: []string{"1"}},
		{CruxClaim: "B", Agree: []string{"1"}, Disagree: []string{"0"}},
	}

	matrix := buildControversyMatrix(cruxes, speakerMap)

	if len(matrix) != 2 || len(matrix[0]) != 2 {
		t.Fatalf("matrix shape = %dx%d, want 2x2", len(matrix), len(matrix[0]))
	}
	if matrix[0][0] != 0 || matrix[1][1] != 0 {
		t.Fatal("diagonal must be zero")
	}
	if matrix[0][1] != matrix[1][0] {
		t.Fatalf("matrix not symmetric: %v != %v", matrix[0][1], matrix[1][0])
	}
	// alice: agree(1) on A, disagree(0.5) on B -> both nonzero, differ -> +1.
	// bob: disagree(0.5) on A, agree(1) on B -> both nonzero, differ -> +1.
	// carol: 0 on both -> +0. Total = 2.
	if matrix[0][1] != 2 {
		t.Fatalf("matrix[0][1] = %v, want 2", matrix[0][1])
	}
}

func TestTopKCruxes_DefaultKBoundedBySqrtAndTen(t *testing.T) {
	n := 6 // ceil(sqrt(6)) == 3
	cruxes := make([]domain.CruxRow, n)
	matrix := domain.NewControversyMatrix(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			matrix[i][j] = float64(i + j)
			matrix[j][i] = matrix[i][j]
		}
	}

	pairs := topKCruxes(cruxes, matrix, 0)
	if len(pairs) != 3 {
		t.Fatalf("len(pairs) = %d, want 3", len(pairs))
	}
	for i := 1; i < len(pairs); i++ {
		if pairs[i].Score > pairs[i-1].Score {
			t.Fatalf("pairs not sorted descending: %v then %v", pairs[i-1].Score, pairs[i].Score)
		}
	}
}

func TestTopKCruxes_FewerThanTwoCruxesReturnsNil(t *testing.T) {
	if got := topKCruxes(nil, domain.NewControversyMatrix(0), 0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := topKCruxes([]domain.CruxRow{{}}, domain.NewControversyMatrix(1), 0); got != nil {
		t.Fatalf("expected nil for a single crux, got %v", got)
	}
}

func TestStripToSpeakerID(t *testing.T) {
	got := stripToSpeakerID([]string{"0:some claim text", "1"})
	want := []string{"0", "1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stripToSpeakerID = %v, want %v", got, want)
		}
	}
}
