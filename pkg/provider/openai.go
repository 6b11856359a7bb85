package provider

import "context"

// OpenAIProvider implements the Provider interface for OpenAI's Chat Completions API.
type OpenAIProvider struct {
	httpBackend
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(opts ...Option) *OpenAIProvider {
	return &OpenAIProvider{httpBackend: newHTTPBackend(OpenAI, "https://api.openai.com/v1", opts)}
}

func (o *OpenAIProvider) Name() string { return OpenAI }

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	Temperature     float64         `json:"temperature"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete performs a chat completion call.
func (o *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	body := openAIRequest{
		Model:       ModelName(OpenAI, req.Model),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	if effort, ok := req.Params["reasoning_effort"].(string); ok {
		body.ReasoningEffort = effort
	}

	var oaiResp openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + req.APIKey}
	if err := o.postJSON(ctx, o.baseURL+"/chat/completions", headers, body, &oaiResp); err != nil {
		return Response{}, err
	}

	var text string
	if len(oaiResp.Choices) > 0 && oaiResp.Choices[0].Message.Content != nil {
		text = *oaiResp.Choices[0].Message.Content
	}

	return Response{
		Text:         text,
		PromptTokens: oaiResp.Usage.PromptTokens,
		OutputTokens: oaiResp.Usage.CompletionTokens,
	}, nil
}
