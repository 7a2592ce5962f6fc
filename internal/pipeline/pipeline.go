// Package pipeline orchestrates one request execution as an atomic
// stage sequence: Resolving, PreScript, Dispatching, PostScript,
// Extracting, Done. A failure at any stage short-circuits the rest
// but still yields a terminal result and a history entry. The same
// primitive serves the single-shot surface, the collection runner,
// the load generator and the sentinel monitor.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/studiowebux/postdad/internal/chain"
	"github.com/studiowebux/postdad/internal/dispatch"
	"github.com/studiowebux/postdad/internal/environment"
	"github.com/studiowebux/postdad/internal/history"
	"github.com/studiowebux/postdad/internal/resolver"
	"github.com/studiowebux/postdad/internal/script"
	"github.com/studiowebux/postdad/internal/types"
)

// Pipeline binds the stage implementations to the shared session
// state. One Pipeline serves any number of concurrent invocations.
type Pipeline struct {
	env        *environment.Store
	dispatcher *dispatch.Dispatcher
	history    *history.Manager
}

// New assembles a pipeline. history may be nil to skip persistence.
func New(env *environment.Store, d *dispatch.Dispatcher, h *history.Manager) *Pipeline {
	return &Pipeline{env: env, dispatcher: d, history: h}
}

// Execute runs the full stage sequence for one definition and returns
// its terminal result. The definition is never mutated; all work
// happens on a resolved snapshot taken at entry, so environment
// switches and chain extractions from other executions cannot affect
// this one mid-flight.
func (p *Pipeline) Execute(ctx context.Context, def *types.RequestDefinition) *types.ExecutionResult {
	// Resolving: freeze the binding snapshot and produce the resolved copy.
	envVars, chainVars := p.env.Snapshot()
	res := resolver.New(envVars, chainVars)
	resolved, warnings := res.ResolveRequest(def)

	// PreScript: the hook may rewrite any outbound field. Variables it
	// writes become visible to subsequent executions, like extractions.
	vars := mergedBindings(envVars, chainVars)
	pre, err := script.RunPre(def.PreScript, resolved, vars)
	if err != nil {
		result := types.ScriptFailure(types.StagePreScript, err.Error())
		result.Warnings = warnings
		result.Logs = pre.Logs
		p.record(resolved, result)
		return result
	}
	p.persistNewBindings(envVars, chainVars, pre.Bindings)
	logs := pre.Logs

	// Dispatching: from here on the snapshot is frozen.
	result := p.dispatcher.Dispatch(ctx, resolved)
	result.Warnings = append(warnings, result.Warnings...)
	result.Logs = append(logs, result.Logs...)
	if !result.Success() {
		p.record(resolved, result)
		return result
	}

	// PostScript: read-only view of the response, assertions recorded.
	post, err := script.RunPost(def.PostScript, result)
	result.Assertions = post.Assertions
	result.Logs = append(result.Logs, post.Logs...)
	if err != nil {
		result.Failure = &types.Failure{
			Kind:   types.FailureScript,
			Stage:  types.StagePostScript,
			Reason: err.Error(),
		}
		p.record(resolved, result)
		return result
	}

	// Extracting: misses warn, they never fail the pipeline.
	_, extractWarnings := chain.Extract(def.Chain, result, p.env)
	result.Warnings = append(result.Warnings, extractWarnings...)

	p.record(resolved, result)
	return result
}

// ExecuteAsync runs Execute on its own goroutine and delivers the
// terminal result on the returned channel. The channel is buffered,
// so the caller is never blocked and may abandon the result.
func (p *Pipeline) ExecuteAsync(ctx context.Context, def *types.RequestDefinition) <-chan *types.ExecutionResult {
	ch := make(chan *types.ExecutionResult, 1)
	go func() {
		ch <- p.Execute(ctx, def)
		close(ch)
	}()
	return ch
}

// record appends the history entry for a terminal result.
func (p *Pipeline) record(resolved *types.ResolvedRequest, result *types.ExecutionResult) {
	if p.history == nil {
		return
	}
	entry := &types.HistoryEntry{
		Timestamp:   time.Now(),
		RequestName: resolved.Name,
		Method:      resolved.Method,
		URL:         resolved.URL,
		Headers:     resolved.HeaderMap(),
		Body:        resolved.Body.Text,
		Result:      result,
	}
	if err := p.history.Append(entry); err != nil {
		slog.Warn("history append failed", "request", resolved.Name, "error", err)
	}
}

// mergedBindings builds the script host's variable view: chain
// bindings shadow environment ones, same as resolution order.
func mergedBindings(env, chainVars map[string]string) map[string]string {
	out := make(map[string]string, len(env)+len(chainVars))
	for k, v := range env {
		out[k] = v
	}
	for k, v := range chainVars {
		out[k] = v
	}
	return out
}

// persistNewBindings pushes variables the pre-script added or changed
// into the shared overlay so the next execution sees them. The
// snapshot already taken stays untouched.
func (p *Pipeline) persistNewBindings(env, chainVars, after map[string]string) {
	for k, v := range after {
		if cv, ok := chainVars[k]; ok && cv == v {
			continue
		}
		if ev, ok := env[k]; ok && ev == v {
			if _, shadowed := chainVars[k]; !shadowed {
				continue
			}
		}
		p.env.SetChainBinding(k, v)
	}
}
