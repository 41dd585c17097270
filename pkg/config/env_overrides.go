package config

import (
	"os"
	"strconv"
)

// ApplyEnvOverrides layers the process environment on top of a loaded
// Config, following the priority CLI flag > env var > config file >
// default. Call after LoadConfig/LoadConfigFromString and before
// SetDefaults, so SetDefaults still fills whatever neither the file nor
// the environment set.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("USE_OLLAMA"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseOllama = b
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Performance.WorkerPoolSize = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v, ok := os.LookupEnv("OTEL_TRACES_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.TracesEnabled = b
		}
	}

	applyDefaultLLMEnvOverrides(cfg)
}

// applyDefaultLLMEnvOverrides applies OLLAMA_BASE_URL/OLLAMA_DEFAULT_MODEL
// and OPENAI_API_KEY to the "default" provider only, matching the
// single-backend zero-config shape this service runs with.
func applyDefaultLLMEnvOverrides(cfg *Config) {
	if cfg.LLMs == nil {
		cfg.LLMs = make(map[string]LLMProviderConfig)
	}
	provider := cfg.LLMs["default"]

	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		provider.Host = v
	}
	if v := os.Getenv("OLLAMA_DEFAULT_MODEL"); v != "" && cfg.UseOllama {
		provider.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		provider.APIKey = v
	}

	cfg.LLMs["default"] = provider
}
