// Package cli assembles the engine for the headless commands and
// renders their reports. The commands themselves live in cmd/postdad.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/studiowebux/postdad/internal/config"
	"github.com/studiowebux/postdad/internal/dispatch"
	"github.com/studiowebux/postdad/internal/environment"
	"github.com/studiowebux/postdad/internal/history"
	"github.com/studiowebux/postdad/internal/loader"
	"github.com/studiowebux/postdad/internal/oauth"
	"github.com/studiowebux/postdad/internal/pipeline"
	"github.com/studiowebux/postdad/internal/runner"
	"github.com/studiowebux/postdad/internal/stress"
	"github.com/studiowebux/postdad/internal/types"
)

// Options are the flags shared by every headless command.
type Options struct {
	CollectionsDir string // defaults to ~/.postdad/collections
	EnvFile        string // defaults to ~/.postdad/environments.hcl
	EnvName        string // environment to activate, empty keeps the first
	Output         string // text, json or yaml; empty falls back to settings
}

// Engine bundles the assembled execution stack for one command run.
type Engine struct {
	Env      *environment.Store
	Pipeline *pipeline.Pipeline
	History  *history.Manager
	Settings *config.Settings
	Output   string
}

// Runner builds a collection runner over the engine's pipeline.
func (e *Engine) Runner() *runner.Runner {
	return runner.New(e.Pipeline)
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	if e.History != nil {
		return e.History.Close()
	}
	return nil
}

// Build initializes configuration, loads environments and wires the
// pipeline with its dispatcher, OAuth broker and history store.
func Build(opts Options) (*Engine, error) {
	if err := config.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	settings, err := config.LoadSettings(config.SettingsFile)
	if err != nil {
		return nil, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = config.EnvironmentsFile
	}
	envs, err := loader.LoadEnvironments(envFile)
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		envs = []types.Environment{{Name: "default"}}
	}

	store := environment.NewStore(envs...)
	if opts.EnvName != "" {
		if err := store.Activate(opts.EnvName); err != nil {
			return nil, err
		}
	}

	hist, err := history.NewManager(config.DatabasePath)
	if err != nil {
		return nil, err
	}
	if settings.HistoryRetention > 0 {
		hist.SetRetention(settings.HistoryRetention)
	}

	d := dispatch.New()
	d.OAuthToken = oauth.NewBroker().Token
	if settings.GRPCBridge != "" {
		d.GRPCBridge = settings.GRPCBridge
	}

	output := opts.Output
	if output == "" {
		output = settings.Output
	}
	if output == "" {
		output = "text"
	}
	switch output {
	case "text", "json", "yaml":
	default:
		hist.Close()
		return nil, fmt.Errorf("unknown output format %q (want text, json or yaml)", output)
	}

	return &Engine{
		Env:      store,
		Pipeline: pipeline.New(store, d, hist),
		History:  hist,
		Settings: settings,
		Output:   output,
	}, nil
}

// LoadCollection resolves ref to a collection: a path ending in .hcl
// loads that file, anything else names a collection in the
// collections directory.
func (e *Engine) LoadCollection(opts Options, ref string) (*loader.Collection, error) {
	if strings.HasSuffix(ref, ".hcl") {
		return loader.LoadCollectionFile(ref)
	}

	dir, err := config.ResolveDir(opts.CollectionsDir)
	if err != nil {
		return nil, err
	}
	col, err := loader.LoadCollectionFile(filepath.Join(dir, ref+".hcl"))
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", ref, err)
	}
	return col, nil
}

// RenderSummary writes a collection run report in the selected format.
func RenderSummary(w io.Writer, format string, summary *runner.Summary) error {
	switch format {
	case "json":
		return writeJSON(w, summary)
	case "yaml":
		return writeYAML(w, summary)
	default:
		return renderSummaryText(w, summary)
	}
}

func renderSummaryText(w io.Writer, summary *runner.Summary) error {
	for _, o := range summary.Outcomes {
		mark := "PASS"
		if !o.Passed {
			mark = "FAIL"
		}
		detail := fmt.Sprintf("status %d (expected %d)", o.ActualStatus, o.ExpectedStatus)
		if o.Error != "" {
			detail = o.Error
		}
		fmt.Fprintf(w, "%s  %-30s %s  %dms\n", mark, o.Name, detail, o.ElapsedMs)
	}
	fmt.Fprintf(w, "\n%d passed, %d failed in %dms\n", summary.Passed, summary.Failed, summary.ElapsedMs)
	return nil
}

// stressReport is the serializable face of a load run aggregate.
type stressReport struct {
	Completed int            `json:"completed" yaml:"completed"`
	Errors    int            `json:"errors" yaml:"errors"`
	ElapsedMs int64          `json:"elapsed_ms" yaml:"elapsed_ms"`
	RPS       float64        `json:"rps" yaml:"rps"`
	AvgMs     float64        `json:"avg_ms" yaml:"avg_ms"`
	MinMs     int64          `json:"min_ms" yaml:"min_ms"`
	MaxMs     int64          `json:"max_ms" yaml:"max_ms"`
	P50Ms     int64          `json:"p50_ms" yaml:"p50_ms"`
	P90Ms     int64          `json:"p90_ms" yaml:"p90_ms"`
	P95Ms     int64          `json:"p95_ms" yaml:"p95_ms"`
	P99Ms     int64          `json:"p99_ms" yaml:"p99_ms"`
	Statuses  map[int]int    `json:"statuses" yaml:"statuses"`
}

// RenderStats writes a load run aggregate in the selected format.
func RenderStats(w io.Writer, format string, stats *stress.Stats) error {
	report := stressReport{
		Completed: stats.Completed,
		Errors:    stats.Errors,
		ElapsedMs: stats.ElapsedMs,
		RPS:       stats.RPS,
		AvgMs:     stats.AvgDurationMs(),
		MinMs:     stats.Min(),
		MaxMs:     stats.Max(),
		P50Ms:     stats.P50(),
		P90Ms:     stats.P90(),
		P95Ms:     stats.P95(),
		P99Ms:     stats.P99(),
		Statuses:  stats.StatusCounts,
	}

	switch format {
	case "json":
		return writeJSON(w, report)
	case "yaml":
		return writeYAML(w, report)
	default:
		fmt.Fprintf(w, "completed: %d  errors: %d  rps: %.1f\n", report.Completed, report.Errors, report.RPS)
		fmt.Fprintf(w, "latency ms: avg %.1f  min %d  max %d\n", report.AvgMs, report.MinMs, report.MaxMs)
		fmt.Fprintf(w, "percentiles ms: p50 %d  p90 %d  p95 %d  p99 %d\n", report.P50Ms, report.P90Ms, report.P95Ms, report.P99Ms)
		statuses := make([]int, 0, len(report.Statuses))
		for s := range report.Statuses {
			statuses = append(statuses, s)
		}
		sort.Ints(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "  %d: %d\n", s, report.Statuses[s])
		}
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

// FindRequest narrows a collection to one request when name is set.
func FindRequest(col *loader.Collection, name string) ([]*types.RequestDefinition, error) {
	if name == "" {
		return col.Requests, nil
	}
	if def := col.Request(name); def != nil {
		return []*types.RequestDefinition{def}, nil
	}
	return nil, fmt.Errorf("request %q not found in collection %q", name, col.Name)
}
