package dedup

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

func bucketWithClaims(texts ...string) *domain.SubtopicBucket {
	b := domain.NewSubtopicBucket()
	for i, text := range texts {
		speaker := "speaker" + string(rune('A'+i))
		b.Claims = append(b.Claims, domain.Claim{Text: text, Speaker: speaker})
		b.Speakers[speaker] = true
	}
	b.Total = len(texts)
	return b
}

func TestDedup_DuplicateFolding(t *testing.T) {
	fc := &fakeCompleter{jsonMode: true, response: `{"nesting":{"claimId0":["claimId1"],"claimId1":[]}}`}
	d := New(fc, nil, 1)

	tree := domain.ClaimTree{
		"Pets": {
			Total:     2,
			Speakers:  map[string]bool{"speakerA": true, "speakerB": true},
			Subtopics: map[string]*domain.SubtopicBucket{"Dogs": bucketWithClaims("Dogs are great", "Dogs are great")},
		},
	}

	out, err := d.Run(context.Background(), Input{Tree: tree, LLM: domain.LLMConfig{ModelName: "gpt-4o-mini"}, Sort: SortByNumClaims})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	claims := out.Data[0].Subtopics[0].Claims
	if len(claims) != 1 {
		t.Fatalf("expected 1 canonical claim, got %d", len(claims))
	}
	if len(claims[0].Duplicates) != 1 {
		t.Fatalf("expected 1 duplicate, got %d", len(claims[0].Duplicates))
	}
	if !claims[0].Duplicates[0].Duplicated {
		t.Error("duplicate claim should have Duplicated=true")
	}
	if claims[0].Duplicated {
		t.Error("canonical claim should not be marked Duplicated")
	}
}

func TestDedup_AsymmetricNestingClosesCorrectly(t *testing.T) {
	// claim 0 points to nothing, claim 1 points to 0, claim 2 points to nothing.
	// The relation should close {0,1} into one equivalence class and leave 2 alone.
	nesting := map[string][]string{
		"claimId0": {},
		"claimId1": {"claimId0"},
		"claimId2": {},
	}
	claims := []domain.Claim{{Text: "A"}, {Text: "A duplicate"}, {Text: "B"}}

	canonicals := foldDuplicates(claims, nesting)
	if len(canonicals) != 2 {
		t.Fatalf("expected 2 canonicals, got %d", len(canonicals))
	}

	var folded, lone int
	for _, c := range canonicals {
		switch len(c.Duplicates) {
		case 1:
			folded++
		case 0:
			lone++
		}
	}
	if folded != 1 || lone != 1 {
		t.Errorf("expected 1 folded pair and 1 lone claim, got folded=%d lone=%d", folded, lone)
	}
}

func TestDedup_SortBySpeakersVsClaims(t *testing.T) {
	tree := domain.ClaimTree{
		"Transit": {
			Total:    3,
			Speakers: map[string]bool{"a": true, "b": true},
			Subtopics: map[string]*domain.SubtopicBucket{
				"Buses": {Total: 3, Claims: []domain.Claim{{Text: "x"}, {Text: "y"}, {Text: "z"}}, Speakers: map[string]bool{"a": true}},
				"Trains": {Total: 1, Claims: []domain.Claim{{Text: "w"}}, Speakers: map[string]bool{"a": true, "b": true}},
			},
		},
	}

	byClaims := buildSortedTree(tree, map[string][]domain.Claim{}, SortByNumClaims)
	if byClaims[0].Subtopics[0].Name != "Buses" {
		t.Errorf("numClaims sort: first = %s, want Buses", byClaims[0].Subtopics[0].Name)
	}

	bySpeakers := buildSortedTree(tree, map[string][]domain.Claim{}, SortByNumPeople)
	if bySpeakers[0].Subtopics[0].Name != "Trains" {
		t.Errorf("numPeople sort: first = %s, want Trains", bySpeakers[0].Subtopics[0].Name)
	}
}

func TestDedup_RejectsInvalidSortKey(t *testing.T) {
	d := New(&fakeCompleter{}, nil, 1)
	_, err := d.Run(context.Background(), Input{
		Tree: domain.ClaimTree{"X": domain.NewTopicBucket()},
		LLM:  domain.LLMConfig{ModelName: "gpt-4o-mini"},
		Sort: "bogus",
	})
	if err == nil {
		t.Fatal("expected error for invalid sort key")
	}
}

func TestDedup_SingleClaimBucketSkipsLLMCall(t *testing.T) {
	fc := &fakeCompleter{err: context.DeadlineExceeded} // would fail if called
	d := New(fc, nil, 1)

	tree := domain.ClaimTree{
		"Pets": {
			Total:     1,
			Speakers:  map[string]bool{"a": true},
			Subtopics: map[string]*domain.SubtopicBucket{"Dogs": bucketWithClaims("Only claim")},
		},
	}

	out, err := d.Run(context.Background(), Input{Tree: tree, LLM: domain.LLMConfig{ModelName: "gpt-4o-mini"}, Sort: SortByNumClaims})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Data[0].Subtopics[0].Claims) != 1 {
		t.Fatalf("expected single claim passed through untouched")
	}
}

func TestParseClaimIndex(t *testing.T) {
	cases := map[string]int{"claimId0": 0, "claimId12": 12}
	for token, want := range cases {
		got, err := parseClaimIndex(token)
		if err != nil {
			t.Fatalf("parseClaimIndex(%q): %v", token, err)
		}
		if got != want {
			t.Errorf("parseClaimIndex(%q) = %d, want %d", token, got, want)
		}
	}
	if _, err := parseClaimIndex("garbage"); err == nil {
		t.Error("expected error for malformed token")
	}
}
