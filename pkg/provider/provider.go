// Package provider defines the LLM provider interface, the model configuration
// shared by the generation pipeline, and the HTTP adapters for each vendor.
package provider

import (
	"context"
	"strings"
)

// Known provider identifiers. The set is open: any other string is accepted
// and falls back to baseline behaviour wherever a provider-specific table is
// consulted.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Gemini    = "gemini"
)

// ModelConfig describes one generation target. It is supplied by the caller
// and never mutated.
type ModelConfig struct {
	Name            string  // Display name, e.g. "ChatGPT 4o"
	Model           string  // Provider model id, optionally prefixed with "<provider>/"
	Provider        string  // Provider identifier, e.g. "openai"
	Temperature     float64 // Sampling temperature
	TokenMultiplier float64 // Scales the base token budget; 0 means 1.0
	MaxTokens       *int    // Explicit ceiling; overrides the multiplier when set
}

// Message is a single chat message.
type Message struct {
	Role    string
	Content string
}

// Request represents a generation request to an LLM provider.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Params      map[string]any // Provider-specific extras, e.g. "reasoning_effort"
	APIKey      string         // Injected by the key pool
}

// Response represents a complete generation response. An empty Text means the
// provider returned no usable completion.
type Response struct {
	Text         string
	PromptTokens int
	OutputTokens int
}

// Provider is the interface that all LLM backends must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "gemini").
	Name() string

	// Complete performs a single non-streaming generation call.
	// The context should carry a deadline/timeout.
	Complete(ctx context.Context, req Request) (Response, error)
}

// ModelName strips a leading "<provider>/" routing prefix from a model id.
// Other slashes are left alone since some vendors use them in model names.
func ModelName(provider, id string) string {
	prefix := Normalize(provider) + "/"
	if len(id) > len(prefix) && strings.EqualFold(id[:len(prefix)], prefix) {
		return id[len(prefix):]
	}
	return id
}

// Normalize lower-cases and trims a provider identifier.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
