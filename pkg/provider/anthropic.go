package provider

import (
	"context"
	"strings"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider implements the Provider interface for Anthropic's Messages API.
type AnthropicProvider struct {
	httpBackend
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(opts ...Option) *AnthropicProvider {
	return &AnthropicProvider{httpBackend: newHTTPBackend(Anthropic, "https://api.anthropic.com/v1", opts)}
}

func (a *AnthropicProvider) Name() string { return Anthropic }

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete performs a messages call.
func (a *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	system, turns := splitSystem(req.Messages)
	body := anthropicRequest{
		Model:       ModelName(Anthropic, req.Model),
		System:      system,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range turns {
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	// Thinking requires temperature 1 and a budget below max_tokens; otherwise
	// the effort is dropped rather than sent into a 400.
	if budget, ok := thinkingBudget(req.Params["reasoning_effort"]); ok && req.Temperature == 1 && budget < req.MaxTokens {
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: budget}
	}

	var antResp anthropicResponse
	headers := map[string]string{
		"x-api-key":         req.APIKey,
		"anthropic-version": anthropicVersion,
	}
	if err := a.postJSON(ctx, a.baseURL+"/messages", headers, body, &antResp); err != nil {
		return Response{}, err
	}

	var sb strings.Builder
	for _, block := range antResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return Response{
		Text:         sb.String(),
		PromptTokens: antResp.Usage.InputTokens,
		OutputTokens: antResp.Usage.OutputTokens,
	}, nil
}
