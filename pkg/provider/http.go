package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 5 * time.Minute

// Option customises an HTTP-backed provider.
type Option func(*httpBackend)

// WithBaseURL points the provider at a different endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(b *httpBackend) {
		if url != "" {
			b.baseURL = url
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *httpBackend) {
		if c != nil {
			b.client = c
		}
	}
}

type httpBackend struct {
	name    string
	client  *http.Client
	baseURL string
}

func newHTTPBackend(name, baseURL string, opts []Option) httpBackend {
	b := httpBackend{
		name:    name,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// postJSON marshals body, POSTs it to url and decodes a 200 response into out.
// Non-200 responses come back as *APIError.
func (b *httpBackend) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", b.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", b.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", b.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return &APIError{Provider: b.name, StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", b.name, err)
	}
	return nil
}

// splitSystem separates the system instruction from the conversation turns.
func splitSystem(msgs []Message) (string, []Message) {
	var system string
	turns := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

// thinkingBudget maps a reasoning effort label to a token budget for vendors
// that expose reasoning as an explicit budget rather than an effort level.
func thinkingBudget(effort any) (int, bool) {
	s, ok := effort.(string)
	if !ok {
		return 0, false
	}
	switch s {
	case "low":
		return 1024, true
	case "medium":
		return 2048, true
	case "high":
		return 4096, true
	}
	return 0, false
}
