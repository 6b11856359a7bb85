package batch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/abdhe/essay-forge/pkg/dispatch"
	"github.com/abdhe/essay-forge/pkg/provider"
)

// ChunkOptions bounds peak concurrency of a large run.
type ChunkOptions struct {
	Size  int           // Prompts per chunk
	Delay time.Duration // Pause between chunks
}

// DefaultChunkOptions returns chunks of 5 prompts with a 1s pause.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{Size: 5, Delay: 1 * time.Second}
}

// Sink receives the results of each chunk as soon as it finishes.
type Sink func(ctx context.Context, results []dispatch.Result) error

// Report summarises a chunked run.
type Report struct {
	Requested   int       `json:"total_requested"`
	Generated   int       `json:"total_generated"`
	SuccessRate float64   `json:"success_rate"`
	ModelsUsed  []string  `json:"models_used"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
}

// RunChunked processes prompts in chunks, pausing between chunks, and hands
// each chunk's results to sink. A sink error aborts the run.
func (o *Orchestrator) RunChunked(ctx context.Context, prompts []Prompt, models []provider.ModelConfig, opts ChunkOptions, sink Sink) (Report, error) {
	if opts.Size <= 0 {
		opts.Size = DefaultChunkOptions().Size
	}
	rep := Report{Requested: len(prompts) * len(models), Started: time.Now()}
	used := make(map[string]struct{})
	chunks := (len(prompts) + opts.Size - 1) / opts.Size

	for i := 0; i < len(prompts); i += opts.Size {
		end := min(i+opts.Size, len(prompts))
		o.logger.Info("processing chunk", "chunk", i/opts.Size+1, "chunks", chunks, "prompts", end-i)

		results := o.GenerateBatch(ctx, prompts[i:end], models)
		rep.Generated += len(results)
		for _, r := range results {
			used[r.ModelName] = struct{}{}
		}
		if sink != nil && len(results) > 0 {
			if err := sink(ctx, results); err != nil {
				rep.finish(used)
				return rep, fmt.Errorf("batch: sink chunk %d: %w", i/opts.Size+1, err)
			}
		}

		if end < len(prompts) && opts.Delay > 0 {
			t := time.NewTimer(opts.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				rep.finish(used)
				return rep, fmt.Errorf("batch: cancelled after chunk %d: %w", i/opts.Size+1, ctx.Err())
			case <-t.C:
			}
		}
	}

	rep.finish(used)
	return rep, nil
}

func (r *Report) finish(used map[string]struct{}) {
	r.Finished = time.Now()
	if r.Requested > 0 {
		r.SuccessRate = float64(r.Generated) / float64(r.Requested)
	}
	r.ModelsUsed = make([]string, 0, len(used))
	for name := range used {
		r.ModelsUsed = append(r.ModelsUsed, name)
	}
	sort.Strings(r.ModelsUsed)
}
