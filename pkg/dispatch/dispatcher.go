// Package dispatch issues single essay generation calls against LLM providers,
// honouring per-provider rate-limit backoff and a bounded retry budget.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abdhe/essay-forge/pkg/budget"
	"github.com/abdhe/essay-forge/pkg/metrics"
	"github.com/abdhe/essay-forge/pkg/provider"
	"github.com/abdhe/essay-forge/pkg/resilience"
)

// DefaultSystemPrompt is sent as the first message of every request.
const DefaultSystemPrompt = "You are an experienced student writer. Follow the instructions precisely to create an authentic academic essay."

var errEmptyContent = errors.New("provider returned empty content")

// Request is one prompt bound to one model. Metadata is passed through to the
// Result untouched.
type Request struct {
	Prompt   string
	Model    provider.ModelConfig
	Metadata map[string]any
}

// Result is a successful generation.
type Result struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	ModelName   string         `json:"model_name"`
	ModelID     string         `json:"model_id"`
	Provider    string         `json:"provider"`
	Temperature float64        `json:"temperature"`
	WordCount   int            `json:"word_count"`
	PromptHash  string         `json:"prompt_hash"`
	Attempts    int            `json:"attempts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Config holds the dispatcher configuration.
type Config struct {
	Providers      map[string]provider.Provider    // provider id → adapter
	KeyPools       map[string]*resilience.KeyPool // provider id → keys; optional
	Tracker        *resilience.BackoffTracker
	Budget         budget.Calculator
	Overrides      Overrides
	Retry          resilience.RetryConfig
	RequestTimeout time.Duration
	SystemPrompt   string
	Logger         *slog.Logger
}

// Dispatcher turns a Request into at most Retry.MaxAttempts provider calls.
type Dispatcher struct {
	providers      map[string]provider.Provider
	keyPools       map[string]*resilience.KeyPool
	tracker        *resilience.BackoffTracker
	budget         budget.Calculator
	overrides      Overrides
	retry          resilience.RetryConfig
	requestTimeout time.Duration
	systemPrompt   string
	logger         *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher, filling unset fields with defaults.
func New(cfg Config) *Dispatcher {
	if cfg.Tracker == nil {
		cfg.Tracker = resilience.NewBackoffTracker(resilience.DefaultBackoffConfig())
	}
	if cfg.Budget.BaseTokens == 0 {
		cfg.Budget = budget.NewCalculator(budget.DefaultBaseTokens)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	providers := make(map[string]provider.Provider, len(cfg.Providers))
	for name, p := range cfg.Providers {
		providers[provider.Normalize(name)] = p
	}
	keyPools := make(map[string]*resilience.KeyPool, len(cfg.KeyPools))
	for name, kp := range cfg.KeyPools {
		kp.SetClock(cfg.Tracker.Now)
		keyPools[provider.Normalize(name)] = kp
	}
	return &Dispatcher{
		providers:      providers,
		keyPools:       keyPools,
		tracker:        cfg.Tracker,
		budget:         cfg.Budget,
		overrides:      cfg.Overrides,
		retry:          cfg.Retry,
		requestTimeout: cfg.RequestTimeout,
		systemPrompt:   cfg.SystemPrompt,
		logger:         cfg.Logger,
		sleep:          sleepContext,
	}
}

// Tracker returns the backoff tracker shared by every call.
func (d *Dispatcher) Tracker() *resilience.BackoffTracker { return d.tracker }

// Generate produces one essay. The boolean is false when the call terminally
// failed; failures are logged, never returned.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (Result, bool) {
	m := req.Model
	prov := provider.Normalize(m.Provider)
	if prov == "" {
		prov = provider.OpenAI
	}
	log := d.logger.With("model", m.Name, "provider", prov)

	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()
	start := time.Now()
	defer func() {
		metrics.GenerationLatency.WithLabelValues(prov, m.Name).Observe(time.Since(start).Seconds())
	}()

	backend, ok := d.providers[prov]
	if !ok {
		log.Error("no adapter registered for provider")
		metrics.GenerationsTotal.WithLabelValues(prov, m.Name, metrics.OutcomeFailed).Inc()
		return Result{}, false
	}

	tokens := d.budget.ForModel(m)
	log.Debug("token config",
		"max_tokens", tokens.MaxTokens,
		"estimated_words", tokens.EstimatedWords,
		"multiplier", tokens.Multiplier,
	)

	call := provider.Request{
		Model: m.Model,
		Messages: []provider.Message{
			{Role: "system", Content: d.systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: m.Temperature,
		MaxTokens:   tokens.MaxTokens,
		Params:      d.overrides.Resolve(m),
	}

	var (
		resp     provider.Response
		attempts int
	)
	err := resilience.Retry(ctx, d.retry, func(ctx context.Context) error {
		attempts++
		if wait := d.tracker.CurrentWait(prov); wait > 0 {
			log.Info("provider backed off, waiting", "attempt", attempts, "wait", wait)
			if err := d.sleep(ctx, wait); err != nil {
				return err
			}
		} else {
			metrics.BackoffSeconds.WithLabelValues(prov).Set(0)
		}

		r, key, err := d.attempt(ctx, backend, prov, call)
		switch {
		case err == nil && strings.TrimSpace(r.Text) == "":
			metrics.AttemptsTotal.WithLabelValues(prov, "empty").Inc()
			return errEmptyContent
		case err == nil:
			metrics.AttemptsTotal.WithLabelValues(prov, "ok").Inc()
			resp = r
			return nil
		case ctx.Err() != nil:
			return err
		case provider.IsRateLimit(err):
			metrics.AttemptsTotal.WithLabelValues(prov, "rate_limited").Inc()
			backoff := d.tracker.RecordFailure(prov)
			metrics.BackoffSeconds.WithLabelValues(prov).Set(backoff.Seconds())
			// A lone key is gated by the provider backoff alone.
			if pool := d.keyPools[prov]; pool != nil && key != "" && pool.Size() > 1 {
				pool.MarkRateLimited(key, d.tracker.Now().Add(backoff))
			}
			log.Warn("rate limited", "attempt", attempts, "max_attempts", d.retry.MaxAttempts, "backoff", backoff, "error", err)
			return resilience.Throttled(err)
		default:
			metrics.AttemptsTotal.WithLabelValues(prov, "error").Inc()
			log.Warn("generation attempt failed", "attempt", attempts, "max_attempts", d.retry.MaxAttempts, "error", err)
			return resilience.Transient(err)
		}
	})

	promptHash := HashPrompt(req.Prompt)
	switch {
	case err == nil:
	case errors.Is(err, errEmptyContent):
		log.Error("provider returned empty content", "prompt_hash", promptHash, "attempts", attempts)
		log.Debug("failing prompt", "prompt", req.Prompt)
		metrics.GenerationsTotal.WithLabelValues(prov, m.Name, metrics.OutcomeEmpty).Inc()
		return Result{}, false
	case provider.IsRateLimit(err):
		log.Error("rate limit retries exhausted", "attempts", attempts, "error", err)
		metrics.GenerationsTotal.WithLabelValues(prov, m.Name, metrics.OutcomeExhausted).Inc()
		return Result{}, false
	default:
		log.Error("generation failed", "attempts", attempts, "error", err)
		metrics.GenerationsTotal.WithLabelValues(prov, m.Name, metrics.OutcomeFailed).Inc()
		return Result{}, false
	}

	metrics.GenerationsTotal.WithLabelValues(prov, m.Name, metrics.OutcomeSuccess).Inc()
	metrics.RecordTokens(prov, m.Name, resp.PromptTokens, resp.OutputTokens)

	res := Result{
		ID:          uuid.NewString(),
		Content:     resp.Text,
		ModelName:   m.Name,
		ModelID:     m.Model,
		Provider:    prov,
		Temperature: m.Temperature,
		WordCount:   len(strings.Fields(resp.Text)),
		PromptHash:  promptHash,
		Attempts:    attempts,
		Metadata:    req.Metadata,
	}
	log.Info("essay generated", "words", res.WordCount, "attempts", attempts)
	return res, true
}

// attempt issues one provider call with a key from the pool, if any.
func (d *Dispatcher) attempt(ctx context.Context, backend provider.Provider, prov string, call provider.Request) (provider.Response, string, error) {
	if pool := d.keyPools[prov]; pool != nil {
		key, err := d.nextKey(ctx, prov, pool)
		if err != nil {
			return provider.Response{}, "", err
		}
		call.APIKey = key
	}

	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	resp, err := backend.Complete(ctx, call)
	return resp, call.APIKey, err
}

// nextKey takes a key from pool, waiting for the earliest reset while every
// key is parked. The wait is not a provider failure: it records no backoff
// and uses no attempt.
func (d *Dispatcher) nextKey(ctx context.Context, prov string, pool *resilience.KeyPool) (string, error) {
	for {
		key, err := pool.Next()
		if !errors.Is(err, resilience.ErrKeysExhausted) {
			return key, err
		}
		wait := pool.ResetIn()
		d.logger.Debug("all keys parked, waiting", "provider", prov, "wait", wait)
		if err := d.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

// HashPrompt returns the hex SHA-256 of a prompt, used for dedup tracking.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
