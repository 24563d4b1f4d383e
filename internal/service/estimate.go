package service

import "github.com/kordant/loom/internal/domain"

// Token count approximation: four characters per token, which is as precise
// as the billing report needs.
const charsPerToken = 4

// costPer1KTokens maps model ids to a blended per-1K-token price. Unlisted
// models fall back to defaultCostPer1K.
var costPer1KTokens = map[string]float64{
	"claude-sonnet-4":   0.009,
	"claude-haiku-3-5":  0.002,
	"gpt-4o":            0.0075,
	"gpt-4o-mini":       0.0005,
	"mock-1":            0,
	string(domain.ProviderMock): 0,
}

const defaultCostPer1K = 0.002

// EstimateTokens approximates token counts from character length.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateCost prices a token total for the given model id.
func EstimateCost(modelID string, tokens int) float64 {
	per1K, ok := costPer1KTokens[modelID]
	if !ok {
		per1K = defaultCostPer1K
	}
	return float64(tokens) / 1000 * per1K
}
