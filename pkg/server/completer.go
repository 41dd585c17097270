package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/talktothecity/pipeline/pkg/config"
	"github.com/talktothecity/pipeline/pkg/httpclient"
	"github.com/talktothecity/pipeline/pkg/llm"
)

// resolveCompleter returns the Completer to use for one request: the
// server's default completer, unless the caller supplied
// X-OpenAI-API-Key and the configured backend is the cloud provider, in
// which case a fresh provider is built with that key substituted.
func (s *Server) resolveCompleter(r *http.Request) (llm.Completer, error) {
	apiKey := r.Header.Get("X-OpenAI-API-Key")
	if apiKey == "" {
		return s.defaultCompleter, nil
	}

	provider, ok := s.cfg.LLMs["default"]
	if !ok || provider.Type != "openai" {
		// Local backend ignores the cloud credential entirely.
		return s.defaultCompleter, nil
	}

	return buildCompleter(provider, apiKey)
}

// buildCompleter constructs the configured backend's Completer.
// apiKeyOverride, when non-empty, replaces the config's api_key for the
// cloud backend (used for the per-request X-OpenAI-API-Key header).
func buildCompleter(cfg config.LLMProviderConfig, apiKeyOverride string) (llm.Completer, error) {
	switch cfg.Type {
	case "ollama":
		return llm.NewOllamaProvider(llm.OllamaConfig{
			BaseURL:      cfg.Host,
			DefaultModel: cfg.Model,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
			Timeout:      time.Duration(cfg.Timeout) * time.Second,
		})
	case "openai":
		apiKey := cfg.APIKey
		if apiKeyOverride != "" {
			apiKey = apiKeyOverride
		}
		var tlsCfg *httpclient.TLSConfig
		if cfg.CACertificate != "" || cfg.InsecureSkipVerify {
			tlsCfg = &httpclient.TLSConfig{
				CACertificate:      cfg.CACertificate,
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			}
		}
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:      apiKey,
			Model:       cfg.Model,
			BaseURL:     cfg.Host,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			TLS:         tlsCfg,
		})
	default:
		return nil, fmt.Errorf("server: unknown llm provider type %q", cfg.Type)
	}
}

// resolveModelName maps a cloud model name to its local equivalent when
// the Ollama backend is active; the cloud model name passes through
// unchanged otherwise.
func (s *Server) resolveModelName(modelName string) string {
	if !s.cfg.UseOllama || s.modelMap == nil {
		return modelName
	}
	return s.modelMap.Get(modelName)
}
