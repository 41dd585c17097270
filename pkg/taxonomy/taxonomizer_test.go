package taxonomy

import (
	"context"
	"testing"

	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/llm"
)

type fakeCompleter struct {
	responseText     string
	err              error
	jsonMode         bool
	lastUserPrompt   string
	lastSystemPrompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.CompleteOptions) (string, domain.TokenUsage, error) {
	f.lastSystemPrompt = systemPrompt
	f.lastUserPrompt = userPrompt
	if f.err != nil {
		return "", domain.TokenUsage{}, f.err
	}
	return f.responseText, domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func (f *fakeCompleter) ModelName() string     { return "gpt-4o-mini" }
func (f *fakeCompleter) SupportsJSONMode() bool { return f.jsonMode }

func TestTaxonomizer_PetsMinimal(t *testing.T) {
	fc := &fakeCompleter{
		jsonMode: true,
		responseText: `{"taxonomy":[{"topicName":"Pets","topicShortDescription":"Pet preferences",
			"subtopics":[{"subtopicName":"Dogs","subtopicShortDescription":"Dog ownership"}]}]}`,
	}
	tax := New(fc, nil)

	out, err := tax.Run(context.Background(), Input{
		Comments: []domain.Comment{
			{ID: "1", Text: "I think dogs are the best pets for families.", Speaker: "alice"},
			{ID: "2", Text: "Cats are much easier to take care of than dogs.", Speaker: "bob"},
			{ID: "3", Text: "Dogs need daily walks which I enjoy a lot.", Speaker: "carol"},
		},
		LLM: domain.LLMConfig{ModelName: "gpt-4o-mini", UserPrompt: "Derive a taxonomy:"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Data) != 1 {
		t.Fatalf("len(Data) = %d, want 1", len(out.Data))
	}
	if len(out.Data[0].Subtopics) != 1 {
		t.Fatalf("len(subtopics) = %d, want 1", len(out.Data[0].Subtopics))
	}
}

func TestTaxonomizer_NormalizesMissingSubtopics(t *testing.T) {
	fc := &fakeCompleter{
		jsonMode:     true,
		responseText: `{"taxonomy":[{"topicName":"Transit","topicShortDescription":"Transit topics"}]}`,
	}
	tax := New(fc, nil)

	out, err := tax.Run(context.Background(), Input{
		Comments: []domain.Comment{{ID: "1", Text: "Buses should run more often downtown.", Speaker: "a"}},
		LLM:      domain.LLMConfig{ModelName: "gpt-4o-mini"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Data[0].Subtopics) != 1 {
		t.Fatalf("expected synthesized subtopic, got %d", len(out.Data[0].Subtopics))
	}
	if out.Data[0].Subtopics[0].Name != "General Transit" {
		t.Errorf("subtopic name = %q, want %q", out.Data[0].Subtopics[0].Name, "General Transit")
	}
}

func TestTaxonomizer_SwallowsExtractionFailure(t *testing.T) {
	fc := &fakeCompleter{jsonMode: true, responseText: "I cannot help with that request."}
	tax := New(fc, nil)

	out, err := tax.Run(context.Background(), Input{
		Comments: []domain.Comment{{ID: "1", Text: "Some meaningful comment text here.", Speaker: "a"}},
		LLM:      domain.LLMConfig{ModelName: "gpt-4o-mini"},
	})
	if err != nil {
		t.Fatalf("Run should swallow extraction failure, got: %v", err)
	}
	if len(out.Data) != 0 {
		t.Errorf("expected empty taxonomy, got %d topics", len(out.Data))
	}
}

func TestTaxonomizer_RejectsEmptyComments(t *testing.T) {
	tax := New(&fakeCompleter{}, nil)
	_, err := tax.Run(context.Background(), Input{LLM: domain.LLMConfig{ModelName: "gpt-4o-mini"}})
	if err == nil {
		t.Fatal("expected error for empty comments")
	}
}

func TestTaxonomizer_AugmentsPromptWhenNoJSONMode(t *testing.T) {
	fc := &fakeCompleter{jsonMode: false, responseText: `{"taxonomy":[]}`}
	tax := New(fc, nil)

	_, err := tax.Run(context.Background(), Input{
		Comments: []domain.Comment{{ID: "1", Text: "Some meaningful comment text here.", Speaker: "a"}},
		LLM:      domain.LLMConfig{ModelName: "llama3.2:latest", UserPrompt: "Derive a taxonomy:"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fc.lastUserPrompt == "Derive a taxonomy:\nSome meaningful comment text here." {
		t.Error("expected prompt to be augmented with JSON schema instructions")
	}
}
