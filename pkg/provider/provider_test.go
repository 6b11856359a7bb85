package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessages() []Message {
	return []Message{
		{Role: "system", Content: "be a student"},
		{Role: "user", Content: "write an essay"},
	}
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "gpt-4o", ModelName("openai", "openai/gpt-4o"))
	assert.Equal(t, "gemini-2.5-pro", ModelName("Gemini", "gemini/gemini-2.5-pro"))
	assert.Equal(t, "meta-llama/llama-3", ModelName("openai", "meta-llama/llama-3"))
	assert.Equal(t, "claude-3-7-sonnet", ModelName("anthropic", "claude-3-7-sonnet"))
}

func TestAPIErrorRateLimit(t *testing.T) {
	err := error(&APIError{Provider: "openai", StatusCode: http.StatusTooManyRequests, Body: "slow down"})
	assert.True(t, IsRateLimit(err))
	assert.True(t, errors.Is(err, ErrRateLimited))

	wrapped := errors.Join(errors.New("context"), err)
	assert.True(t, IsRateLimit(wrapped))

	assert.False(t, IsRateLimit(&APIError{Provider: "openai", StatusCode: http.StatusInternalServerError}))
	assert.False(t, IsRateLimit(errors.New("boom")))
	assert.False(t, IsRateLimit(nil))
}

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"An essay."}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), Request{
		Model:       "openai/gpt-4o",
		Messages:    testMessages(),
		Temperature: 0.8,
		MaxTokens:   1500,
		Params:      map[string]any{"reasoning_effort": "low"},
		APIKey:      "sk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "An essay.", resp.Text)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 3, resp.OutputTokens)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, 1500.0, got["max_tokens"])
	assert.Equal(t, "low", got["reasoning_effort"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAINullContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":null}}]}`))
	}))
	defer srv.Close()

	resp, err := NewOpenAIProvider(WithBaseURL(srv.URL)).Complete(context.Background(), Request{Model: "gpt-4o", Messages: testMessages()})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestOpenAIRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider(WithBaseURL(srv.URL)).Complete(context.Background(), Request{Model: "gpt-4o", Messages: testMessages()})
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "Rate limit exceeded")
}

func TestAnthropicComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key-a", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"Essay body."}],"usage":{"input_tokens":20,"output_tokens":4}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), Request{
		Model:       "anthropic/claude-3-7-sonnet-20250219",
		Messages:    testMessages(),
		Temperature: 1.0,
		MaxTokens:   2100,
		Params:      map[string]any{"reasoning_effort": "low"},
		APIKey:      "key-a",
	})
	require.NoError(t, err)
	assert.Equal(t, "Essay body.", resp.Text)
	assert.Equal(t, 20, resp.PromptTokens)

	assert.Equal(t, "claude-3-7-sonnet-20250219", got["model"])
	assert.Equal(t, "be a student", got["system"])
	require.Len(t, got["messages"], 1)
	thinking := got["thinking"].(map[string]any)
	assert.Equal(t, "enabled", thinking["type"])
	assert.Equal(t, 1024.0, thinking["budget_tokens"])
}

func TestAnthropicThinkingDroppedWhenBudgetTooSmall(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	_, err := NewAnthropicProvider(WithBaseURL(srv.URL)).Complete(context.Background(), Request{
		Model:       "claude-3-7-sonnet",
		Messages:    testMessages(),
		Temperature: 1.0,
		MaxTokens:   500,
		Params:      map[string]any{"reasoning_effort": "low"},
	})
	require.NoError(t, err)
	assert.NotContains(t, got, "thinking")
}

func TestAnthropicThinkingDroppedBelowTemperatureOne(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	resp, err := NewAnthropicProvider(WithBaseURL(srv.URL)).Complete(context.Background(), Request{
		Model:       "claude-3-7-sonnet",
		Messages:    testMessages(),
		Temperature: 0.8,
		MaxTokens:   2100,
		Params:      map[string]any{"reasoning_effort": "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.NotContains(t, got, "thinking")
	assert.Equal(t, 0.8, got["temperature"])
}

func TestGeminiComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"plan","thought":true},{"text":"Final essay."}]}}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":2}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), Request{
		Model:       "gemini/gemini-2.5-pro",
		Messages:    testMessages(),
		Temperature: 0.8,
		MaxTokens:   3000,
		Params:      map[string]any{"reasoning_effort": "low"},
		APIKey:      "g-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "Final essay.", resp.Text)
	assert.Equal(t, 2, resp.OutputTokens)

	sys := got["systemInstruction"].(map[string]any)
	assert.Equal(t, "be a student", sys["parts"].([]any)[0].(map[string]any)["text"])
	cfg := got["generationConfig"].(map[string]any)
	assert.Equal(t, 3000.0, cfg["maxOutputTokens"])
	assert.Equal(t, 1024.0, cfg["thinkingConfig"].(map[string]any)["thinkingBudget"])
}

func TestNew(t *testing.T) {
	for _, name := range []string{"openai", "Anthropic", " gemini "} {
		p, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, Normalize(name), p.Name())
	}
	_, err := New("perplexity")
	assert.Error(t, err)
}
