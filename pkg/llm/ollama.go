package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/talktothecity/pipeline/pkg/costing"
	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/httpclient"
)

// OllamaConfig configures the local completion backend.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
}

// SetDefaults fills unset fields with the package defaults.
func (c *OllamaConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "llama3.2:latest"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// OllamaProvider implements Completer against a local Ollama-compatible
// /api/generate endpoint. It does not support native JSON mode: callers
// are expected to have already appended explicit JSON-output instructions
// to the prompt, and thinking is always disabled for thinking-capable
// models since the pipeline only ever wants the final answer.
type OllamaProvider struct {
	cfg        OllamaConfig
	httpClient *httpclient.Client

	counterOnce sync.Once
	counter     *costing.TokenCounter
}

// NewOllamaProvider constructs a local-backend completer.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	cfg.SetDefaults()
	return &OllamaProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(2),
		),
	}, nil
}

// countPair counts tokens for one call. The tiktoken counter is built
// lazily on first use since its encoding loader may need network access;
// if it can't be built, a bytes/4 approximation is used instead.
func (p *OllamaProvider) countPair(prompt, completion string) (int, int) {
	p.counterOnce.Do(func() {
		counter, err := costing.NewTokenCounter(p.cfg.DefaultModel)
		if err != nil {
			slog.Warn("ollama token counter unavailable, approximating", "error", err)
			return
		}
		p.counter = counter
	})
	if p.counter != nil {
		return p.counter.CountPair(prompt, completion)
	}
	return costing.ApproxCount(prompt), costing.ApproxCount(completion)
}

func (p *OllamaProvider) ModelName() string     { return p.cfg.DefaultModel }
func (p *OllamaProvider) SupportsJSONMode() bool { return false }

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Think   *bool                  `json:"think,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete issues one synchronous /api/generate call. The caller is
// expected to pass prompts already augmented with JSON-output
// instructions, since this backend has no native JSON mode.
func (p *OllamaProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (string, domain.TokenUsage, error) {
	model := p.cfg.DefaultModel
	if opts.Model != "" {
		model = opts.Model
	}

	think := false
	req := ollamaGenerateRequest{
		Model:  model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": p.cfg.Temperature,
			"num_predict": p.cfg.MaxTokens,
		},
	}
	if isThinkingCapableModel(model) {
		req.Think = &think
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("llm: marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.cfg.BaseURL, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: ollama returned status %d", domain.ErrLLMTransportFailure, resp.StatusCode)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: decode ollama response: %w", domain.ErrLLMTransportFailure, err)
	}

	promptTokens, completionTokens := p.countPair(systemPrompt+"\n"+userPrompt, out.Response)
	usage := domain.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	return out.Response, usage, nil
}

func isThinkingCapableModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	for _, excluded := range thinkingExcluded {
		if strings.Contains(lower, excluded) {
			return false
		}
	}
	for _, pattern := range thinkingCapableModels {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// AugmentPromptForJSON appends an explicit instruction to emit literal
// JSON matching schemaHint, for backends (like this one) that have no
// native JSON mode.
func AugmentPromptForJSON(prompt, schemaHint string) string {
	return prompt + "\n\nRespond with ONLY valid JSON matching this shape, no commentary, no markdown fences:\n" + schemaHint
}
