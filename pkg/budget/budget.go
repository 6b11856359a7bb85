// Package budget converts a base token budget into per-model token ceilings
// and estimates how many words a ceiling buys on each provider.
package budget

import (
	"math"

	"github.com/abdhe/essay-forge/pkg/provider"
)

const (
	DefaultBaseTokens = 1500
	DefaultMinTokens  = 500
	DefaultMaxTokens  = 10000

	defaultTokensPerWord = 1.3
)

// tokensPerWord is the average tokenization ratio per provider family.
var tokensPerWord = map[string]float64{
	provider.OpenAI:    1.3,
	provider.Gemini:    1.3,
	provider.Anthropic: 1.4,
}

// reasoningShare is the fraction of the budget a provider family spends on
// internal reasoning that never shows up in the output.
var reasoningShare = map[string]float64{
	provider.Gemini: 0.5,
}

// Calculator derives token ceilings from a base budget.
type Calculator struct {
	BaseTokens int
	MinTokens  int
	MaxTokens  int
}

// TokenConfig is the resolved token configuration for one model.
type TokenConfig struct {
	MaxTokens      int     `json:"max_tokens"`
	BaseTokens     int     `json:"base_tokens"`
	Multiplier     float64 `json:"multiplier"`
	EstimatedWords int     `json:"estimated_words"`
	Provider       string  `json:"provider"`
}

// NewCalculator returns a Calculator with the default [500, 10000] bounds.
// A non-positive base falls back to DefaultBaseTokens.
func NewCalculator(base int) Calculator {
	if base <= 0 {
		base = DefaultBaseTokens
	}
	return Calculator{BaseTokens: base, MinTokens: DefaultMinTokens, MaxTokens: DefaultMaxTokens}
}

// Ceiling returns round(base × multiplier) clamped to [MinTokens, MaxTokens].
// An explicit override is returned verbatim.
func (c Calculator) Ceiling(multiplier float64, override *int) int {
	if override != nil {
		return *override
	}
	if multiplier <= 0 {
		multiplier = 1.0
	}
	n := int(math.Round(float64(c.BaseTokens) * multiplier))
	if n < c.MinTokens {
		return c.MinTokens
	}
	if n > c.MaxTokens {
		return c.MaxTokens
	}
	return n
}

// ForModel resolves the full token configuration for a model.
func (c Calculator) ForModel(m provider.ModelConfig) TokenConfig {
	multiplier := m.TokenMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	p := provider.Normalize(m.Provider)
	if p == "" {
		p = provider.OpenAI
	}
	ceiling := c.Ceiling(multiplier, m.MaxTokens)
	return TokenConfig{
		MaxTokens:      ceiling,
		BaseTokens:     c.BaseTokens,
		Multiplier:     multiplier,
		EstimatedWords: EstimateWords(ceiling, p),
		Provider:       p,
	}
}

// Ratio returns the tokens-per-word ratio for a provider.
func Ratio(p string) float64 {
	if r, ok := tokensPerWord[provider.Normalize(p)]; ok {
		return r
	}
	return defaultTokensPerWord
}

// EstimateWords estimates the visible word count a token ceiling yields.
// Advisory only; nothing enforces it.
func EstimateWords(tokens int, p string) int {
	t := float64(tokens)
	if share, ok := reasoningShare[provider.Normalize(p)]; ok {
		t *= 1 - share
	}
	return int(t / Ratio(p))
}

// EstimateTokens estimates the token budget needed for a target word count.
func EstimateTokens(words int, p string) int {
	tokens := int(float64(words) * Ratio(p))
	if share, ok := reasoningShare[provider.Normalize(p)]; ok && share < 1 {
		tokens = int(float64(tokens) / (1 - share))
	}
	return tokens
}
