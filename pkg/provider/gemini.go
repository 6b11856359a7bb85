package provider

import (
	"context"
	"fmt"
	"strings"
)

// GeminiProvider implements the Provider interface for Google's Gemini API.
type GeminiProvider struct {
	httpBackend
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(opts ...Option) *GeminiProvider {
	return &GeminiProvider{httpBackend: newHTTPBackend(Gemini, "https://generativelanguage.googleapis.com/v1beta", opts)}
}

func (g *GeminiProvider) Name() string { return Gemini }

// geminiRequest is the Gemini API request body.
type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64               `json:"temperature"`
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// geminiResponse is the Gemini API response body.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text    string `json:"text"`
				Thought bool   `json:"thought,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete performs a generateContent call to the Gemini API.
func (g *GeminiProvider) Complete(ctx context.Context, req Request) (Response, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, ModelName(Gemini, req.Model))

	system, turns := splitSystem(req.Messages)
	body := geminiRequest{
		GenerationConfig: geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range turns {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if budget, ok := thinkingBudget(req.Params["reasoning_effort"]); ok {
		body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: budget}
	}

	var gemResp geminiResponse
	headers := map[string]string{"x-goog-api-key": req.APIKey}
	if err := g.postJSON(ctx, url, headers, body, &gemResp); err != nil {
		return Response{}, err
	}

	var sb strings.Builder
	if len(gemResp.Candidates) > 0 {
		for _, p := range gemResp.Candidates[0].Content.Parts {
			if !p.Thought {
				sb.WriteString(p.Text)
			}
		}
	}

	return Response{
		Text:         sb.String(),
		PromptTokens: gemResp.UsageMetadata.PromptTokenCount,
		OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}
