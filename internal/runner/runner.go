// Package runner executes an ordered collection of requests through
// the pipeline, one at a time, and reports per-request pass/fail plus
// a terminal summary. A failing request never stops the run; the
// point of a collection run is the full health picture.
package runner

import (
	"context"
	"time"

	"github.com/studiowebux/postdad/internal/pipeline"
	"github.com/studiowebux/postdad/internal/types"
)

// Outcome is the per-request record of a collection run. A request
// passes when the transport succeeded, the status matched the
// expectation and every recorded assertion held.
type Outcome struct {
	Name           string `json:"name" yaml:"name"`
	ExpectedStatus int    `json:"expected_status" yaml:"expected_status"`
	ActualStatus   int    `json:"actual_status,omitempty" yaml:"actual_status,omitempty"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
	Passed         bool   `json:"passed" yaml:"passed"`
	ElapsedMs      int64  `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// Summary is the terminal report of a run, outcomes in collection
// order.
type Summary struct {
	Outcomes  []Outcome `json:"results" yaml:"results"`
	Passed    int       `json:"passed" yaml:"passed"`
	Failed    int       `json:"failed" yaml:"failed"`
	ElapsedMs int64     `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// Success reports whether every request in the run passed.
func (s *Summary) Success() bool {
	return s.Failed == 0
}

// Runner drives sequential collection runs over a shared pipeline.
type Runner struct {
	pipeline *pipeline.Pipeline
}

func New(p *pipeline.Pipeline) *Runner {
	return &Runner{pipeline: p}
}

// Run executes the definitions strictly in order. Cancelling ctx
// stops the run before the next request; the in-flight one completes
// under its own deadline and its outcome is kept.
func (r *Runner) Run(ctx context.Context, defs []*types.RequestDefinition) *Summary {
	summary := &Summary{Outcomes: make([]Outcome, 0, len(defs))}
	start := time.Now()

	for _, def := range defs {
		if ctx.Err() != nil {
			break
		}
		result := <-r.pipeline.ExecuteAsync(ctx, def)
		outcome := evaluate(def, result)
		summary.Outcomes = append(summary.Outcomes, outcome)
		if outcome.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	summary.ElapsedMs = time.Since(start).Milliseconds()
	return summary
}

func evaluate(def *types.RequestDefinition, result *types.ExecutionResult) Outcome {
	outcome := Outcome{
		Name:           def.Name,
		ExpectedStatus: def.ExpectedStatusOrDefault(),
		ElapsedMs:      result.DurationMs,
	}
	if !result.Success() {
		outcome.Error = result.Failure.Reason
		return outcome
	}
	outcome.ActualStatus = result.Status
	outcome.Passed = result.Status == outcome.ExpectedStatus && result.AssertionsPassed()
	return outcome
}
