package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads filePath, loads .env/.env.local first, expands
// environment variable references in the raw bytes, and decodes the
// result into a Config. Defaults are NOT applied and validation is NOT
// run; call SetDefaults and Validate explicitly, as the CLI's serve and
// validate commands do.
func LoadConfig(filePath string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return LoadConfigFromBytes(raw)
}

// LoadConfigFromBytes decodes a Config from an in-memory YAML document,
// after environment-variable expansion. Used by LoadConfig and directly
// by tests that don't want to touch the filesystem.
func LoadConfigFromBytes(raw []byte) (*Config, error) {
	expanded := expandEnvVarsInBytes(raw)

	var generic map[string]interface{}
	if err := yaml.Unmarshal(expanded, &generic); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromString is a convenience wrapper over LoadConfigFromBytes
// for callers holding a YAML document as a string (tests, embedded
// defaults).
func LoadConfigFromString(yamlContent string) (*Config, error) {
	return LoadConfigFromBytes([]byte(yamlContent))
}
