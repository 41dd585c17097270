package llm

// ModelMap coerces cloud model names to their local (Ollama) equivalents,
// mirroring the source pipeline's MODEL_MAPPING table. Backends are
// selected at process start (config.UseOllama); the map only matters when
// the local backend is active.
type ModelMap map[string]string

// DefaultModelMap is the static cloud→local mapping. Unmapped model names
// fall back to the caller-supplied default (OLLAMA_DEFAULT_MODEL).
var DefaultModelMap = ModelMap{
	"gpt-4o-mini":         "llama3.2:latest",
	"gpt-4-turbo-preview": "llama3.2:latest",
	"gpt-4o":              "llama3.2:latest",
	"gpt-3.5-turbo":       "llama3.2:latest",
}

// Resolve returns the local model name for a cloud model name, falling
// back to defaultModel when there's no entry.
func (m ModelMap) Resolve(cloudModel, defaultModel string) string {
	if local, ok := m[cloudModel]; ok {
		return local
	}
	return defaultModel
}

// thinkingCapableModels are Ollama model name substrings known to support
// a "thinking" reasoning pass that must be explicitly disabled for this
// pipeline (we always want the final answer, never the chain of thought,
// in the completion text).
var thinkingCapableModels = []string{
	"qwen3",
	"deepseek-r1",
	"deepseek-v3",
	"gpt-oss",
}

// thinkingExcluded are substrings that override a thinkingCapableModels
// match — coder variants of otherwise-thinking-capable families don't
// support the flag.
var thinkingExcluded = []string{
	"qwen3-coder",
	"qwen2-coder",
}
