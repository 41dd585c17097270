// Package costing provides accurate per-model token counting and the
// per-model dollar cost lookup used to populate every stage's {usage, cost}
// response fields.
package costing

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter wraps a cached tiktoken encoding for one model family.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
	mu       sync.RWMutex
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter returns a counter for the given model, falling back to
// cl100k_base when the model isn't recognized by tiktoken (true for every
// local/Ollama model name).
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()
	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("costing: failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the number of tokens text would encode to.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountPair returns the prompt and completion token counts for one LLM
// call, given the full prompt text sent and the text returned.
func (tc *TokenCounter) CountPair(prompt, completion string) (promptTokens, completionTokens int) {
	return tc.Count(prompt), tc.Count(completion)
}

// ApproxCount estimates the token count of text at roughly four bytes per
// token. Used when no tiktoken encoding is available (the loader needs
// network access on first use).
func ApproxCount(text string) int {
	return (len(text) + 3) / 4
}
