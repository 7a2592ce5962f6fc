// Package sentinel runs a periodic health check against a single
// request: one worker on a ticker, each tick one pipeline invocation,
// each outcome classified healthy or failed and kept in a bounded
// rolling history. Stopping is immediate in the sense that no new
// check starts after it; a check already in flight finishes and is
// still recorded.
package sentinel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/studiowebux/postdad/internal/pipeline"
	"github.com/studiowebux/postdad/internal/types"
)

// DefaultCapacity bounds the rolling history when Config.Capacity is
// unset.
const DefaultCapacity = 100

// Config shapes a monitor. A check fails when the status misses
// ExpectedStatus, or when FailKeyword is non-empty and appears in the
// raw response body even on a matching status.
type Config struct {
	Interval       time.Duration
	ExpectedStatus int // default 200
	FailKeyword    string
	Capacity       int // default DefaultCapacity
}

// Check is one recorded tick.
type Check struct {
	Timestamp time.Time
	Status    int
	LatencyMs int64
	Failed    bool
	Reason    string
}

// Monitor owns one sentinel loop. All accessors are safe to call
// while the loop runs.
type Monitor struct {
	pipeline *pipeline.Pipeline
	cfg      Config

	mu      sync.Mutex
	checks  []Check
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(p *pipeline.Pipeline, cfg Config) *Monitor {
	if cfg.ExpectedStatus == 0 {
		cfg.ExpectedStatus = 200
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Monitor{pipeline: p, cfg: cfg}
}

// Start launches the loop. The first check runs immediately, then one
// per interval. Starting a running monitor is an error.
func (m *Monitor) Start(def *types.RequestDefinition) error {
	if m.cfg.Interval <= 0 {
		return fmt.Errorf("sentinel interval must be positive, got %s", m.cfg.Interval)
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sentinel already running for %q", def.Name)
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	slog.Info("sentinel starting", "request", def.Name, "interval", m.cfg.Interval)
	go m.loop(def)
	return nil
}

// Stop prevents any new check from starting and waits for an
// in-flight one to finish and be recorded. Stopping a stopped monitor
// is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	slog.Info("sentinel stopped")
}

// Running reports whether the loop is accepting new checks.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Checks returns the rolling history, oldest first.
func (m *Monitor) Checks() []Check {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Check, len(m.checks))
	copy(out, m.checks)
	return out
}

func (m *Monitor) loop(def *types.RequestDefinition) {
	defer close(m.done)

	// Per-check lifetime is the request's own deadline, detached from
	// the stop signal so an in-flight check always completes.
	m.check(def)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			select {
			case <-m.stop:
				return
			default:
			}
			m.check(def)
		}
	}
}

func (m *Monitor) check(def *types.RequestDefinition) {
	result := <-m.pipeline.ExecuteAsync(context.Background(), def)
	c := m.classify(result)

	m.mu.Lock()
	if len(m.checks) == m.cfg.Capacity {
		copy(m.checks, m.checks[1:])
		m.checks[len(m.checks)-1] = c
	} else {
		m.checks = append(m.checks, c)
	}
	m.mu.Unlock()

	if c.Failed {
		slog.Warn("sentinel check failed",
			"request", def.Name, "status", c.Status, "reason", c.Reason)
	}
}

func (m *Monitor) classify(result *types.ExecutionResult) Check {
	c := Check{Timestamp: time.Now(), LatencyMs: result.DurationMs}
	if !result.Success() {
		c.Failed = true
		c.Reason = result.Failure.Reason
		return c
	}
	c.Status = result.Status
	if result.Status != m.cfg.ExpectedStatus {
		c.Failed = true
		c.Reason = fmt.Sprintf("status %d, expected %d", result.Status, m.cfg.ExpectedStatus)
		return c
	}
	if m.cfg.FailKeyword != "" && strings.Contains(result.Body, m.cfg.FailKeyword) {
		c.Failed = true
		c.Reason = fmt.Sprintf("body contains %q", m.cfg.FailKeyword)
	}
	return c
}

// ExportCSV writes the rolling history as index,timestamp,status,
// latency_ms rows, oldest first.
func (m *Monitor) ExportCSV(w io.Writer) error {
	checks := m.Checks()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "timestamp", "status", "latency_ms"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, c := range checks {
		row := []string{
			strconv.Itoa(i),
			c.Timestamp.Format(time.RFC3339),
			strconv.Itoa(c.Status),
			strconv.FormatInt(c.LatencyMs, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
