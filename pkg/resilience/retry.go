// Package resilience provides the retry and backoff primitives used when
// calling LLM providers.
package resilience

import (
	"context"
	"errors"
	"time"

	retry "github.com/sethvargo/go-retry"
)

// RetryConfig bounds the attempt loop.
type RetryConfig struct {
	MaxAttempts int           // Total attempts, including the first
	Pause       time.Duration // Fixed pause after a transient failure
}

// DefaultRetryConfig returns 5 attempts with a 1s transient pause.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Pause:       1 * time.Second,
	}
}

// RetryableFunc is a single attempt. Wrap the returned error with Throttled
// or Transient to ask for another attempt; any other error is terminal.
type RetryableFunc func(ctx context.Context) error

type retryClass int

const (
	classTransient retryClass = iota
	classThrottled
)

type classifiedError struct {
	class retryClass
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Throttled marks err as a rate-limit failure. The next attempt starts
// immediately; waiting is left to the provider backoff checked inside the
// attempt itself.
func Throttled(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: classThrottled, err: err}
}

// Transient marks err as a local failure retried after RetryConfig.Pause.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: classTransient, err: err}
}

// Retry runs fn until it succeeds, returns an unclassified error, the attempt
// budget is spent or ctx is done. The returned error is the last one fn
// produced, with the classification stripped.
func Retry(ctx context.Context, cfg RetryConfig, fn RetryableFunc) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var pause time.Duration
	b := retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		return pause, false
	}))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		var ce *classifiedError
		if !errors.As(err, &ce) {
			return err
		}
		if ce.class == classThrottled {
			pause = 0
		} else {
			pause = cfg.Pause
		}
		return retry.RetryableError(err)
	})

	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.err
	}
	return err
}
