// Package stress drives a fixed-duration load run: a configured
// number of virtual workers loop the same request through the
// pipeline until the wall-clock window closes, then a single
// aggregate is computed over everything that completed. Workers are
// independent and interleave freely; only the final aggregate is
// observable.
package stress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studiowebux/postdad/internal/pipeline"
	"github.com/studiowebux/postdad/internal/types"
)

// Config sizes a load run.
type Config struct {
	Workers  int
	Duration time.Duration
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Workers)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	return nil
}

// Generator runs load bursts over a shared pipeline.
type Generator struct {
	pipeline *pipeline.Pipeline
}

func New(p *pipeline.Pipeline) *Generator {
	return &Generator{pipeline: p}
}

// Run executes the burst and blocks until every worker has stopped,
// then returns the terminal aggregate. Cancelling ctx stops workers
// from issuing new invocations; the in-flight ones finish under their
// own per-request deadline and still count.
func (g *Generator) Run(ctx context.Context, cfg Config, def *types.RequestDefinition) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Info("load run starting",
		"request", def.Name, "workers", cfg.Workers, "duration", cfg.Duration)

	stats := newStats()
	var mu sync.Mutex

	start := time.Now()
	deadline := start.Add(cfg.Duration)

	// In-flight invocations outlive a caller cancel; only the loop
	// condition observes ctx.
	execCtx := context.WithoutCancel(ctx)

	group, _ := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		group.Go(func() error {
			for time.Now().Before(deadline) && ctx.Err() == nil {
				result := g.pipeline.Execute(execCtx, def)
				mu.Lock()
				stats.add(result.DurationMs, result.Status, isError(def, result))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	stats.ElapsedMs = elapsed.Milliseconds()
	if elapsed > 0 {
		stats.RPS = float64(stats.Completed) / elapsed.Seconds()
	}

	slog.Info("load run finished",
		"request", def.Name, "completed", stats.Completed,
		"errors", stats.Errors, "rps", stats.RPS)
	return stats, nil
}

// isError classifies a completed invocation: any transport or script
// failure, or a status that misses the expectation.
func isError(def *types.RequestDefinition, result *types.ExecutionResult) bool {
	if !result.Success() {
		return true
	}
	return result.Status != def.ExpectedStatusOrDefault() || !result.AssertionsPassed()
}
