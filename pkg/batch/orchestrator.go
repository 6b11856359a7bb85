// Package batch fans prompts out across models and collects the essays that
// come back.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/abdhe/essay-forge/pkg/dispatch"
	"github.com/abdhe/essay-forge/pkg/metrics"
	"github.com/abdhe/essay-forge/pkg/provider"
)

// Prompt is one composed prompt plus the metadata that travels with it.
type Prompt struct {
	Text     string         `json:"prompt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Generator produces a single essay; *dispatch.Dispatcher implements it.
type Generator interface {
	Generate(ctx context.Context, req dispatch.Request) (dispatch.Result, bool)
}

// Orchestrator runs the prompt × model cross product concurrently.
type Orchestrator struct {
	gen    Generator
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator; a nil logger means slog.Default().
func NewOrchestrator(gen Generator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{gen: gen, logger: logger}
}

// GenerateBatch runs one task per (prompt, model) pair, all at once, and
// returns the successful results in task order. Failed tasks are logged with
// their prompt and model index and left out.
func (o *Orchestrator) GenerateBatch(ctx context.Context, prompts []Prompt, models []provider.ModelConfig) []dispatch.Result {
	total := len(prompts) * len(models)
	if total == 0 {
		return nil
	}
	slots := make([]*dispatch.Result, total)

	var g errgroup.Group
	for pi, p := range prompts {
		for mi, m := range models {
			idx := pi*len(models) + mi
			g.Go(func() error {
				res, ok := o.runTask(ctx, p, m, pi, mi)
				if !ok {
					metrics.BatchTasksTotal.WithLabelValues("failed").Inc()
					o.logger.Warn("task failed",
						"prompt_index", pi,
						"model_index", mi,
						"model", m.Name,
						"provider", m.Provider,
					)
					return nil
				}
				metrics.BatchTasksTotal.WithLabelValues("succeeded").Inc()
				slots[idx] = &res
				return nil
			})
		}
	}
	_ = g.Wait()

	results := make([]dispatch.Result, 0, total)
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	o.logger.Info("batch complete", "succeeded", len(results), "attempted", total)
	return results
}

// runTask isolates a panicking generator so siblings keep running.
func (o *Orchestrator) runTask(ctx context.Context, p Prompt, m provider.ModelConfig, pi, mi int) (res dispatch.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("task panicked", "prompt_index", pi, "model_index", mi, "panic", fmt.Sprint(r))
			res, ok = dispatch.Result{}, false
		}
	}()
	return o.gen.Generate(ctx, dispatch.Request{Prompt: p.Text, Model: m, Metadata: p.Metadata})
}
