package types

import "time"

// Stage marks where in the pipeline an execution currently is, or
// where it failed.
type Stage string

const (
	StageResolving   Stage = "resolving"
	StagePreScript   Stage = "pre-script"
	StageDispatching Stage = "dispatching"
	StagePostScript  Stage = "post-script"
	StageExtracting  Stage = "extracting"
	StageDone        Stage = "done"
)

// FailureKind classifies a pipeline failure.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureScript    FailureKind = "script"
)

// Failure is a terminal pipeline fault captured as data. It carries
// the stage that produced it so the surface can report precisely
// without knowing execution internals.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Stage  Stage       `json:"stage"`
	Reason string      `json:"reason"`
}

// AssertionOutcome is one post-request test() record. A false result
// is data, not an abort.
type AssertionOutcome struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// ExecutionResult is the immutable outcome of one pipeline invocation.
// Failure is nil on success; Status/Headers/Body are meaningful only
// when the dispatch stage completed.
type ExecutionResult struct {
	Status       int                `json:"status,omitempty"`
	StatusText   string             `json:"statusText,omitempty"`
	Headers      map[string]string  `json:"headers,omitempty"`
	Body         string             `json:"body,omitempty"`
	DurationMs   int64              `json:"durationMs"`
	RequestSize  int                `json:"requestSize,omitempty"`
	ResponseSize int                `json:"responseSize,omitempty"`
	Failure      *Failure           `json:"failure,omitempty"`
	Assertions   []AssertionOutcome `json:"assertions,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Logs         []string           `json:"logs,omitempty"`
}

// Success reports whether the pipeline reached Done without a fault.
func (r *ExecutionResult) Success() bool {
	return r.Failure == nil
}

// AssertionsPassed reports whether every recorded assertion passed.
// An execution with no assertions passes vacuously.
func (r *ExecutionResult) AssertionsPassed() bool {
	for _, a := range r.Assertions {
		if !a.Passed {
			return false
		}
	}
	return true
}

// TransportFailure builds a failed result for the dispatch stage.
func TransportFailure(reason string, elapsed time.Duration) *ExecutionResult {
	return &ExecutionResult{
		DurationMs: elapsed.Milliseconds(),
		Failure: &Failure{
			Kind:   FailureTransport,
			Stage:  StageDispatching,
			Reason: reason,
		},
	}
}

// ScriptFailure builds a failed result for a hook stage.
func ScriptFailure(stage Stage, reason string) *ExecutionResult {
	return &ExecutionResult{
		Failure: &Failure{
			Kind:   FailureScript,
			Stage:  stage,
			Reason: reason,
		},
	}
}

// HistoryEntry pairs an execution result with the resolved request
// snapshot that produced it, for time-travel and diffing. Entries are
// append-only per request name with bounded retention.
type HistoryEntry struct {
	Timestamp   time.Time         `json:"timestamp"`
	RequestName string            `json:"requestName"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	Result      *ExecutionResult  `json:"result"`
}
