package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 5, Pause: time.Millisecond}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	for name, wrap := range map[string]func(error) error{
		"throttled": Throttled,
		"transient": Transient,
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
				calls++
				return wrap(errBoom)
			})
			assert.ErrorIs(t, err, errBoom)
			assert.Equal(t, errBoom, err, "classification is stripped")
			assert.Equal(t, 5, calls)
		})
	}
}

func TestRetryStopsOnTerminalError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		if calls == 2 {
			return errBoom
		}
		return Transient(errors.New("flaky"))
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 2, calls)
}

func TestRetryRecovers(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Throttled(errBoom)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTransientPauses(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, Pause: 20 * time.Millisecond}
	start := time.Now()
	_ = Retry(context.Background(), cfg, func(ctx context.Context) error {
		return Transient(errBoom)
	})
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 5, Pause: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return Transient(errBoom)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, Throttled(nil))
	assert.NoError(t, Transient(nil))
}
