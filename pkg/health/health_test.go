package health

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/abdhe/essay-forge/pkg/resilience"
)

func check(t *testing.T, r *Reporter, provider string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName(provider)})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestReporterMirrorsBackoff(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tr := resilience.NewBackoffTracker(resilience.DefaultBackoffConfig())
	tr.SetClock(func() time.Time { return now })

	r := NewReporter(tr, []string{"openai", "gemini"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r, "openai"))

	tr.RecordFailure("openai")
	r.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, "openai"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r, "gemini"))

	now = now.Add(1500 * time.Millisecond)
	r.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r, "openai"))
}

func TestReporterRunShutsDown(t *testing.T) {
	tr := resilience.NewBackoffTracker(resilience.DefaultBackoffConfig())
	r := NewReporter(tr, []string{"openai"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, "openai"))
}

func TestServeStopsOnCancel(t *testing.T) {
	r := NewReporter(resilience.NewBackoffTracker(resilience.BackoffConfig{}), []string{"openai"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, "127.0.0.1:0", r) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
