package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talktothecity/pipeline/pkg/config"
	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/llm"
)

type fakeCompleter struct {
	responseText string
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.CompleteOptions) (string, domain.TokenUsage, error) {
	return f.responseText, domain.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}, nil
}

func (f *fakeCompleter) ModelName() string      { return "test-model" }
func (f *fakeCompleter) SupportsJSONMode() bool { return true }

// newTestServer builds a Server whose default completer is swapped for a
// fake after construction, so no real provider is contacted.
func newTestServer(t *testing.T, fc *fakeCompleter) *Server {
	t.Helper()
	cfg := &config.Config{UseOllama: true}
	cfg.SetDefaults()
	s, err := New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.defaultCompleter = fc
	return s
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status   string   `json:"status"`
		Backends []string `json:"backends"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status field = %q, want ok", body.Status)
	}
	if len(body.Backends) != 1 || body.Backends[0] != "default" {
		t.Fatalf("backends = %v, want [default]", body.Backends)
	}
}

func TestHandleTopicTree(t *testing.T) {
	fc := &fakeCompleter{responseText: `{"taxonomy":[{"topicName":"Pets","topicShortDescription":"d",
		"subtopics":[{"subtopicName":"Dogs","subtopicShortDescription":"d"}]}]}`}
	s := newTestServer(t, fc)

	reqBody := topicTreeRequest{
		Comments: []domain.Comment{{ID: "1", Text: "dogs are great", Speaker: "alice"}},
		LLM:      domain.LLMConfig{ModelName: "test-model", UserPrompt: "derive"},
	}
	buf, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/topic_tree", bytes.NewReader(buf))
	rec := httptest.NewRecorder()

	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data domain.Taxonomy `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Data) != 1 {
		t.Fatalf("len(data) = %d, want 1", len(out.Data))
	}
}

func TestHandleTopicTree_EmptyComments(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{})

	req := httptest.NewRequest(http.MethodPost, "/topic_tree", bytes.NewReader([]byte(`{"comments":[],"llm":{}}`)))
	rec := httptest.NewRecorder()

	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleClaims_MalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{})

	req := httptest.NewRequest(http.MethodPost, "/claims", bytes.NewReader([]byte(`not json`)))
	rec := httptest.NewRecorder()

	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSortClaimsTree_InvalidSort(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{})

	body := sortClaimsTreeRequest{
		Tree: domain.ClaimTree{"Pets": domain.NewTopicBucket()},
		Sort: "bogus",
	}
	buf, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPut, "/sort_claims_tree/", bytes.NewReader(buf))
	rec := httptest.NewRecorder()

	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestResolveCompleter_IgnoresHeaderForOllama(t *testing.T) {
	cfg := &config.Config{UseOllama: true}
	cfg.SetDefaults()
	s, err := New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/topic_tree", nil)
	req.Header.Set("X-OpenAI-API-Key", "sk-test")

	got, err := s.resolveCompleter(req)
	if err != nil {
		t.Fatalf("resolveCompleter: %v", err)
	}
	if got != s.defaultCompleter {
		t.Fatalf("resolveCompleter returned a different completer for an ollama backend")
	}
}

func TestResolveModelName_PassthroughWhenNotOllama(t *testing.T) {
	cfg := &config.Config{LLMs: map[string]config.LLMProviderConfig{
		"default": {Type: "openai", APIKey: "sk-test"},
	}}
	cfg.SetDefaults()
	s, err := New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.resolveModelName("gpt-4o"); got != "gpt-4o" {
		t.Fatalf("resolveModelName = %q, want passthrough", got)
	}
}
