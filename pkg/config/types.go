package config

import (
	"fmt"
	"time"
)

// Config is the single entry point for all pipeline configuration,
// the equivalent of a docker-compose.yml for this service.
type Config struct {
	Server      ServerConfig                 `yaml:"server,omitempty"`
	Performance PerformanceConfig            `yaml:"performance,omitempty"`
	Logging     LoggingConfig                `yaml:"logging,omitempty"`
	Telemetry   TelemetryConfig              `yaml:"telemetry,omitempty"`
	UseOllama   bool                         `yaml:"use_ollama"`
	LLMs        map[string]LLMProviderConfig `yaml:"llms,omitempty"`
	ModelMap    ModelMapConfig               `yaml:"model_map,omitempty"`
	Claims      ClaimsConfig                 `yaml:"claims,omitempty"`
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := c.Performance.Validate(); err != nil {
		return fmt.Errorf("performance config validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry config validation failed: %w", err)
	}
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llm '%s' validation failed: %w", name, err)
		}
	}
	if err := c.ModelMap.Validate(); err != nil {
		return fmt.Errorf("model_map validation failed: %w", err)
	}
	if err := c.Claims.Validate(); err != nil {
		return fmt.Errorf("claims config validation failed: %w", err)
	}
	return nil
}

// SetDefaults fills in every unset field, including a zero-config LLM
// provider so the service is runnable without a config file at all.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Performance.SetDefaults()
	c.Logging.SetDefaults()
	c.Telemetry.SetDefaults()
	c.ModelMap.SetDefaults()
	c.Claims.SetDefaults()

	if c.LLMs == nil {
		c.LLMs = make(map[string]LLMProviderConfig)
	}
	if len(c.LLMs) == 0 {
		if c.UseOllama {
			c.LLMs["default"] = LLMProviderConfig{Type: "ollama"}
		} else {
			c.LLMs["default"] = LLMProviderConfig{Type: "openai"}
		}
	}
	for name := range c.LLMs {
		llm := c.LLMs[name]
		if llm.Type == "" && c.UseOllama {
			llm.Type = "ollama"
		}
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
}

// PerformanceConfig bounds concurrency for the LLM worker pools shared
// by every stage.
type PerformanceConfig struct {
	WorkerPoolSize int           `yaml:"worker_pool_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func (c *PerformanceConfig) Validate() error {
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

func (c *PerformanceConfig) SetDefaults() {
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = 4
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Minute
	}
}

// LoggingConfig controls the slog-based logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true, "simple": true, "verbose": true}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Output] {
		return fmt.Errorf("invalid output destination: %s", c.Output)
	}
	return nil
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// TelemetryConfig toggles the Prometheus/OTel adapters versus the NoOp.
type TelemetryConfig struct {
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	TracesEnabled  bool    `yaml:"traces_enabled"`
	ServiceName    string  `yaml:"service_name"`
	SamplingRate   float64 `yaml:"sampling_rate"`
}

func (c *TelemetryConfig) Validate() error {
	if c.TracesEnabled && (c.SamplingRate < 0 || c.SamplingRate > 1) {
		return fmt.Errorf("sampling_rate must be between 0 and 1")
	}
	return nil
}

func (c *TelemetryConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "talktothecity-pipeline"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
}

// LLMProviderConfig configures a single named LLM backend, cloud or local.
type LLMProviderConfig struct {
	Type        string  `yaml:"type"` // "openai" or "ollama"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Host        string  `yaml:"host"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds

	// CACertificate points at a custom CA bundle for deployments that reach
	// the cloud backend through a corporate TLS-intercepting proxy.
	CACertificate string `yaml:"ca_certificate"`
	// InsecureSkipVerify disables TLS verification. Dev/test only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

func (c *LLMProviderConfig) Validate() error {
	if c.Type != "openai" && c.Type != "ollama" {
		return fmt.Errorf("type must be 'openai' or 'ollama', got %q", c.Type)
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for openai")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		if c.Type == "ollama" {
			c.Model = "llama3.2:latest"
		} else {
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Host == "" {
		switch c.Type {
		case "ollama":
			c.Host = "http://localhost:11434"
		default:
			c.Host = "https://api.openai.com/v1"
		}
	}
	if c.Temperature == 0 {
		c.Temperature = 0.0
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
}

// ModelMapConfig points at the YAML file mapping cloud model names to
// local Ollama equivalents, watched for changes at runtime.
type ModelMapConfig struct {
	Path         string `yaml:"path"`
	WatchForEdit bool   `yaml:"watch_for_edit"`
}

func (c *ModelMapConfig) Validate() error {
	return nil
}

func (c *ModelMapConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "model_map.yaml"
	}
}

// ClaimsConfig holds the meaningful-comment thresholds used by the
// claim-extraction stage's comment filter.
type ClaimsConfig struct {
	MinCharCount int `yaml:"min_char_count"`
	MinWordCount int `yaml:"min_word_count"`
}

func (c *ClaimsConfig) Validate() error {
	if c.MinCharCount < 0 {
		return fmt.Errorf("min_char_count must be non-negative")
	}
	if c.MinWordCount < 0 {
		return fmt.Errorf("min_word_count must be non-negative")
	}
	return nil
}

func (c *ClaimsConfig) SetDefaults() {
	if c.MinCharCount == 0 {
		c.MinCharCount = 9
	}
	if c.MinWordCount == 0 {
		c.MinWordCount = 4
	}
}
