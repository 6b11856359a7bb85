package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abdhe/essay-forge/pkg/provider"
)

func intPtr(v int) *int { return &v }

func TestCeiling(t *testing.T) {
	c := NewCalculator(1500)
	tests := []struct {
		name       string
		multiplier float64
		override   *int
		want       int
	}{
		{"unscaled", 1.0, nil, 1500},
		{"clamped high", 10.0, nil, 10000},
		{"clamped low", 0.01, nil, 500},
		{"override wins", 10.0, intPtr(2000), 2000},
		{"override below min is verbatim", 1.0, intPtr(100), 100},
		{"rounded", 1.3333, nil, 2000},
		{"zero multiplier means 1.0", 0, nil, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Ceiling(tt.multiplier, tt.override))
		})
	}
}

func TestNewCalculatorDefaultsBase(t *testing.T) {
	assert.Equal(t, DefaultBaseTokens, NewCalculator(0).BaseTokens)
}

func TestEstimateWords(t *testing.T) {
	assert.Equal(t, 1153, EstimateWords(1500, "openai"))
	assert.Equal(t, 1071, EstimateWords(1500, "anthropic"))
	assert.Equal(t, 576, EstimateWords(1500, "gemini"))
	assert.Equal(t, 1153, EstimateWords(1500, "mistral"))
	assert.Equal(t, 1071, EstimateWords(1500, "Anthropic"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1300, EstimateTokens(1000, "openai"))
	assert.Equal(t, 1400, EstimateTokens(1000, "anthropic"))
	assert.Equal(t, 2600, EstimateTokens(1000, "gemini"))
}

func TestForModel(t *testing.T) {
	c := NewCalculator(1500)

	cfg := c.ForModel(provider.ModelConfig{Name: "Claude", Provider: "anthropic", TokenMultiplier: 1.4})
	assert.Equal(t, TokenConfig{MaxTokens: 2100, BaseTokens: 1500, Multiplier: 1.4, EstimatedWords: 1500, Provider: "anthropic"}, cfg)

	cfg = c.ForModel(provider.ModelConfig{Name: "Gemini", Provider: "gemini", MaxTokens: intPtr(8000)})
	assert.Equal(t, 8000, cfg.MaxTokens)
	assert.Equal(t, 1.0, cfg.Multiplier)
	assert.Equal(t, 3076, cfg.EstimatedWords)

	cfg = c.ForModel(provider.ModelConfig{Name: "bare"})
	assert.Equal(t, provider.OpenAI, cfg.Provider)
}
