package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/talktothecity/pipeline/pkg/domain"
	"github.com/talktothecity/pipeline/pkg/httpclient"
)

// OpenAIConfig configures the cloud chat-completion backend.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// TLS carries custom CA / verification settings for deployments behind
	// TLS-intercepting proxies. Nil means stock verification.
	TLS *httpclient.TLSConfig
}

// SetDefaults fills unset fields with the package defaults.
func (c *OpenAIConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
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

// Validate checks required fields.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("llm: openai api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm: openai model is required")
	}
	return nil
}

// OpenAIProvider implements Completer against a cloud chat-completion API
// that supports response_format: json_object.
type OpenAIProvider struct {
	cfg        OpenAIConfig
	httpClient *httpclient.Client
}

// NewOpenAIProvider constructs a cloud-backend completer.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(2),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		httpclient.WithRetryStrategy(httpclient.DefaultStrategy),
	}
	if cfg.TLS != nil {
		// After WithHTTPClient, so the TLS transport lands on the final client.
		opts = append(opts, httpclient.WithTLSConfig(cfg.TLS))
	}
	return &OpenAIProvider{
		cfg:        cfg,
		httpClient: httpclient.New(opts...),
	}, nil
}

func (p *OpenAIProvider) ModelName() string     { return p.cfg.Model }
func (p *OpenAIProvider) SupportsJSONMode() bool { return true }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                 `json:"model"`
	Messages       []openAIMessage        `json:"messages"`
	Temperature    float64                `json:"temperature"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat  `json:"response_format,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIError struct {
	Message string `json:"message"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

// Complete issues one synchronous chat-completion call.
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (string, domain.TokenUsage, error) {
	model := p.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := p.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	req := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("llm: marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: %w", domain.ErrLLMTransportFailure, err)
	}
	defer resp.Body.Close()

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: decode openai response: %w", domain.ErrLLMTransportFailure, err)
	}
	if out.Error != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: %s", domain.ErrLLMTransportFailure, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", domain.TokenUsage{}, fmt.Errorf("%w: openai response had no choices", domain.ErrLLMTransportFailure)
	}

	usage := domain.TokenUsage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}
	return out.Choices[0].Message.Content, usage, nil
}
