package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abdhe/essay-forge/pkg/batch"
	"github.com/abdhe/essay-forge/pkg/budget"
	"github.com/abdhe/essay-forge/pkg/config"
	"github.com/abdhe/essay-forge/pkg/dispatch"
	"github.com/abdhe/essay-forge/pkg/health"
	"github.com/abdhe/essay-forge/pkg/provider"
	"github.com/abdhe/essay-forge/pkg/resilience"
	"github.com/abdhe/essay-forge/pkg/store"
)

const healthSyncInterval = time.Second

type generateOptions struct {
	prompts     string
	out         string
	models      []string
	chunkSize   int
	chunkDelay  time.Duration
	metricsPort string
	grpcPort    string
}

func newGenerateCmd(a *app) *cobra.Command {
	var o generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one essay per prompt and model",
		Long: `Reads prompts from a JSONL file ({"prompt": "...", "metadata": {...}} per line),
fans every prompt out to every selected model and appends the essays to --out.
A JSON run report is printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("chunk-size") {
				a.cfg.Generation.ChunkSize = o.chunkSize
			}
			if cmd.Flags().Changed("chunk-delay") {
				a.cfg.Generation.ChunkDelay = o.chunkDelay
			}
			if cmd.Flags().Changed("metrics-port") {
				a.cfg.Server.MetricsPort = o.metricsPort
			}
			if cmd.Flags().Changed("grpc-port") {
				a.cfg.Server.GRPCPort = o.grpcPort
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(ctx, cmd, a, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.prompts, "prompts", "p", "prompts.jsonl", "JSONL prompt file")
	f.StringVarP(&o.out, "out", "o", "essays.jsonl", "JSONL output file (appended)")
	f.StringSliceVarP(&o.models, "model", "m", nil, "restrict to these model names (repeatable)")
	f.IntVar(&o.chunkSize, "chunk-size", 5, "prompts per chunk")
	f.DurationVar(&o.chunkDelay, "chunk-delay", time.Second, "pause between chunks")
	f.StringVar(&o.metricsPort, "metrics-port", "", "serve Prometheus metrics on this port")
	f.StringVar(&o.grpcPort, "grpc-port", "", "serve gRPC health on this port")
	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, a *app, o generateOptions) error {
	cfg, logger := a.cfg, a.logger

	models, err := selectModels(cfg.ModelConfigs(), o.models)
	if err != nil {
		return err
	}

	pf, err := os.Open(o.prompts)
	if err != nil {
		return fmt.Errorf("open prompts: %w", err)
	}
	prompts, err := batch.ReadPrompts(pf)
	pf.Close()
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts in %s", o.prompts)
	}

	providers, pools, err := buildProviders(cfg, models, logger)
	if err != nil {
		return err
	}
	tracker := resilience.NewBackoffTracker(cfg.BackoffConfig())
	d := dispatch.New(dispatch.Config{
		Providers:      providers,
		KeyPools:       pools,
		Tracker:        tracker,
		Budget:         budget.NewCalculator(cfg.Generation.BaseMaxTokens),
		Overrides:      cfg.Overrides,
		Retry:          cfg.RetryConfig(),
		RequestTimeout: cfg.Generation.RequestTimeout,
		SystemPrompt:   cfg.Generation.SystemPrompt,
		Logger:         logger,
	})

	sink, closeSinks, err := openSinks(ctx, cfg, o.out, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	srvCtx, stopServers := context.WithCancel(ctx)
	servers := startServers(srvCtx, cfg, tracker, providerNames(models), logger)

	logger.Info("starting generation", "prompts", len(prompts), "models", len(models), "out", o.out)
	orch := batch.NewOrchestrator(d, logger)
	rep, runErr := orch.RunChunked(ctx, prompts, models, batch.ChunkOptions{
		Size:  cfg.Generation.ChunkSize,
		Delay: cfg.Generation.ChunkDelay,
	}, sink)

	stopServers()
	if err := servers.Wait(); err != nil {
		logger.Warn("server error", "error", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("generation complete",
		"requested", rep.Requested,
		"generated", rep.Generated,
		"success_rate", rep.SuccessRate,
	)
	return runErr
}

// selectModels keeps the models whose names were requested, in config order.
func selectModels(all []provider.ModelConfig, names []string) ([]provider.ModelConfig, error) {
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var out []provider.ModelConfig
	for _, m := range all {
		if want[strings.ToLower(m.Name)] {
			out = append(out, m)
			delete(want, strings.ToLower(m.Name))
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		return nil, fmt.Errorf("unknown model(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func providerNames(models []provider.ModelConfig) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range models {
		if !seen[m.Provider] {
			seen[m.Provider] = true
			names = append(names, m.Provider)
		}
	}
	return names
}

// buildProviders creates one adapter and, when keys are configured, one key
// pool per provider the models use.
func buildProviders(cfg *config.Config, models []provider.ModelConfig, logger *slog.Logger) (map[string]provider.Provider, map[string]*resilience.KeyPool, error) {
	providers := make(map[string]provider.Provider)
	pools := make(map[string]*resilience.KeyPool)
	for _, name := range providerNames(models) {
		p, err := provider.New(name, provider.WithBaseURL(cfg.Providers[name]))
		if err != nil {
			return nil, nil, err
		}
		providers[name] = p
		if keys := cfg.Keys[name]; len(keys) > 0 {
			pool := resilience.NewKeyPool(keys)
			pools[name] = pool
			logger.Info("key pool ready", "provider", name, "keys", pool.Size())
		} else {
			logger.Warn("no API key configured", "provider", name)
		}
	}
	return providers, pools, nil
}

// openSinks opens the JSONL writer and, when configured, the Redis ledger.
func openSinks(ctx context.Context, cfg *config.Config, out string, logger *slog.Logger) (batch.Sink, func(), error) {
	w, err := store.NewJSONLWriter(out)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{w.Close}
	sinks := []batch.Sink{w.Save}

	if cfg.Redis.Addr != "" {
		rs := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, ledger disabled", "addr", cfg.Redis.Addr, "error", err)
			rs.Close()
		} else {
			logger.Info("redis ledger enabled", "addr", cfg.Redis.Addr, "run_id", rs.RunID())
			closers = append(closers, rs.Close)
			sinks = append(sinks, ledgerSink(rs, logger))
		}
	}

	sink := func(ctx context.Context, results []dispatch.Result) error {
		for _, s := range sinks {
			if err := s(ctx, results); err != nil {
				return err
			}
		}
		return nil
	}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close sink", "error", err)
			}
		}
	}
	return sink, closeAll, nil
}

// ledgerSink flags prompts a model has already answered in an earlier run,
// then records the chunk.
func ledgerSink(rs *store.RedisStore, logger *slog.Logger) batch.Sink {
	return func(ctx context.Context, results []dispatch.Result) error {
		for _, r := range results {
			seen, err := rs.Seen(ctx, r.ModelID, r.PromptHash)
			if err != nil {
				logger.Debug("ledger lookup failed", "error", err)
				continue
			}
			if seen {
				logger.Info("duplicate prompt for model", "model", r.ModelName, "prompt_hash", r.PromptHash)
			}
		}
		return rs.Save(ctx, results)
	}
}

// startServers launches the metrics and health listeners that are enabled.
// Both stop when ctx is done.
func startServers(ctx context.Context, cfg *config.Config, tracker *resilience.BackoffTracker, providers []string, logger *slog.Logger) *errgroup.Group {
	var g errgroup.Group
	if port := cfg.Server.MetricsPort; port != "" {
		g.Go(func() error { return serveMetrics(ctx, ":"+port, logger) })
	}
	if port := cfg.Server.GRPCPort; port != "" {
		r := health.NewReporter(tracker, providers, logger)
		g.Go(func() error {
			r.Run(ctx, healthSyncInterval)
			return nil
		})
		g.Go(func() error { return health.Serve(ctx, ":"+port, r) })
	}
	return &g
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
