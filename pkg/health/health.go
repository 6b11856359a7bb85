// Package health exposes per-provider backoff state over the standard gRPC
// health protocol. A provider reports NOT_SERVING while it is backed off.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/abdhe/essay-forge/pkg/resilience"
)

// StatusSource yields the current backoff snapshot; *resilience.BackoffTracker implements it.
type StatusSource interface {
	Status() []resilience.BackoffStatus
}

// ServiceName is the health service name reported for a provider.
func ServiceName(provider string) string { return "provider/" + provider }

// Reporter mirrors backoff status into a gRPC health server.
type Reporter struct {
	hs        *grpchealth.Server
	src       StatusSource
	providers []string
	logger    *slog.Logger
}

// NewReporter creates a reporter for the given providers, all initially SERVING.
func NewReporter(src StatusSource, providers []string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{hs: grpchealth.NewServer(), src: src, providers: providers, logger: logger}
	for _, p := range providers {
		r.hs.SetServingStatus(ServiceName(p), healthpb.HealthCheckResponse_SERVING)
	}
	return r
}

// Server returns the underlying health server.
func (r *Reporter) Server() *grpchealth.Server { return r.hs }

// Sync applies one snapshot. Providers missing from the snapshot are SERVING.
func (r *Reporter) Sync() {
	backedOff := make(map[string]resilience.BackoffStatus)
	for _, st := range r.src.Status() {
		backedOff[st.Provider] = st
	}
	for _, p := range r.providers {
		status := healthpb.HealthCheckResponse_SERVING
		if st, ok := backedOff[p]; ok && st.BackedOff {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			r.logger.Debug("provider backed off", "provider", p, "remaining", st.Remaining)
		}
		r.hs.SetServingStatus(ServiceName(p), status)
	}
}

// Run syncs every interval until ctx is done, then marks everything NOT_SERVING.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	r.Sync()
	for {
		select {
		case <-ctx.Done():
			r.hs.Shutdown()
			return
		case <-t.C:
			r.Sync()
		}
	}
}

// Serve runs a gRPC server with the health and reflection services on addr
// until ctx is done.
func Serve(ctx context.Context, addr string, r *Reporter) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, r.hs)
	reflection.Register(srv)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	r.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("health: serve: %w", err)
	}
	return nil
}
