package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfigFromString_BasicFields(t *testing.T) {
	yamlContent := `
server:
  host: "127.0.0.1"
  port: 9090
performance:
  worker_pool_size: 8
  request_timeout: 2m
use_ollama: true
llms:
  taxonomy:
    type: ollama
    model: llama3.2:latest
    host: http://localhost:11434
`
	cfg, err := LoadConfigFromString(yamlContent)
	if err != nil {
		t.Fatalf("LoadConfigFromString: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("server = %+v, want host=127.0.0.1 port=9090", cfg.Server)
	}
	if cfg.Performance.WorkerPoolSize != 8 {
		t.Errorf("worker_pool_size = %d, want 8", cfg.Performance.WorkerPoolSize)
	}
	if cfg.Performance.RequestTimeout != 2*time.Minute {
		t.Errorf("request_timeout = %v, want 2m", cfg.Performance.RequestTimeout)
	}
	if !cfg.UseOllama {
		t.Error("use_ollama = false, want true")
	}
	llm, ok := cfg.LLMs["taxonomy"]
	if !ok {
		t.Fatal("expected llms.taxonomy to be present")
	}
	if llm.Type != "ollama" || llm.Model != "llama3.2:latest" {
		t.Errorf("llm = %+v, unexpected", llm)
	}
}

func TestLoadConfigFromString_EnvVarExpansion(t *testing.T) {
	t.Setenv("PIPELINE_API_KEY", "sk-test-123")

	yamlContent := `
llms:
  default:
    type: openai
    api_key: ${PIPELINE_API_KEY}
    host: ${PIPELINE_HOST:-https://api.openai.com/v1}
`
	cfg, err := LoadConfigFromString(yamlContent)
	if err != nil {
		t.Fatalf("LoadConfigFromString: %v", err)
	}

	llm := cfg.LLMs["default"]
	if llm.APIKey != "sk-test-123" {
		t.Errorf("api_key = %q, want sk-test-123", llm.APIKey)
	}
	if llm.Host != "https://api.openai.com/v1" {
		t.Errorf("host = %q, want default applied", llm.Host)
	}
}

func TestConfig_SetDefaults_ZeroConfig(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero-config should validate after SetDefaults: %v", err)
	}
	if len(cfg.LLMs) != 1 {
		t.Fatalf("expected exactly one zero-config llm, got %d", len(cfg.LLMs))
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Claims.MinCharCount != 9 || cfg.Claims.MinWordCount != 4 {
		t.Errorf("claims defaults = %+v, want {9 4}", cfg.Claims)
	}
}

func TestConfig_Validate_RejectsBadPort(t *testing.T) {
	cfg := Config{Server: ServerConfig{Port: -1}}
	cfg.Performance.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Telemetry.SetDefaults()
	cfg.ModelMap.SetDefaults()
	cfg.Claims.SetDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLLMProviderConfig_RequiresAPIKeyForOpenAI(t *testing.T) {
	c := LLMProviderConfig{Type: "openai", Host: "https://api.openai.com/v1", Model: "gpt-4o"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing api_key")
	}
}

func TestLoadModelMap_MissingFileFallsBackToDefault(t *testing.T) {
	w, err := LoadModelMap("/nonexistent/model_map.yaml")
	if err != nil {
		t.Fatalf("LoadModelMap: %v", err)
	}
	if got := w.Get("gpt-4o"); got == "" {
		t.Error("expected a non-empty fallback mapping")
	}
}

func TestLoadModelMap_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/model_map.yaml"
	content := "gpt-4o: llama3.3:70b\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := LoadModelMap(path)
	if err != nil {
		t.Fatalf("LoadModelMap: %v", err)
	}
	if got := w.Get("gpt-4o"); got != "llama3.3:70b" {
		t.Errorf("Get(gpt-4o) = %q, want llama3.3:70b", got)
	}
	if got := w.Get("unmapped-model"); got != "unmapped-model" {
		t.Errorf("Get(unmapped-model) = %q, want passthrough", got)
	}
}
