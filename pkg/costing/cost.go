package costing

import "log/slog"

// Rate is a model's $/1K-token pricing for prompt ("in") and completion
// ("out") tokens.
type Rate struct {
	InPer1K  float64
	OutPer1K float64
}

// Table is a static per-model cost lookup, mirroring the original
// pipeline's COST_BY_MODEL dictionary. Local/Ollama models cost 0 since
// they run on inference the operator already owns.
var Table = map[string]Rate{
	"gpt-4o":              {InPer1K: 0.0025, OutPer1K: 0.01},
	"gpt-4o-mini":         {InPer1K: 0.00015, OutPer1K: 0.0006},
	"gpt-4-turbo-preview": {InPer1K: 0.01, OutPer1K: 0.03},
	"gpt-3.5-turbo":       {InPer1K: 0.0005, OutPer1K: 0.0015},
	"llama3.2:latest":     {InPer1K: 0, OutPer1K: 0},
}

// Cost returns the dollar cost of one call given the model name and the
// number of prompt/completion tokens it used. Unknown models warn and
// cost 0, matching the source pipeline's fallback behavior.
func Cost(modelName string, promptTokens, completionTokens int) float64 {
	rate, ok := Table[modelName]
	if !ok {
		slog.Warn("costing: model not found in cost table, cost calculation may be inaccurate", "model", modelName)
		return 0
	}
	return 0.001 * (float64(promptTokens)*rate.InPer1K + float64(completionTokens)*rate.OutPer1K)
}
