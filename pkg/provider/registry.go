package provider

import "fmt"

// New builds the HTTP adapter for a known provider identifier.
func New(name string, opts ...Option) (Provider, error) {
	switch Normalize(name) {
	case OpenAI:
		return NewOpenAIProvider(opts...), nil
	case Anthropic:
		return NewAnthropicProvider(opts...), nil
	case Gemini:
		return NewGeminiProvider(opts...), nil
	}
	return nil, fmt.Errorf("provider: unsupported provider %q", name)
}
