// Package history persists execution results with their resolved
// request snapshots in SQLite. Entries are append-only per request
// name with bounded retention, so every pipeline invocation leaves a
// record without the database growing without bound.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studiowebux/postdad/internal/types"
)

// DefaultRetention is how many entries are kept per request name.
const DefaultRetention = 100

// Manager owns the history database. All methods are safe for
// concurrent use; SQLite serializes the writes.
type Manager struct {
	db        *sql.DB
	retention int
}

// NewManager opens (or creates) the history database at dbPath.
// Use ":memory:" for an ephemeral store.
func NewManager(dbPath string) (*Manager, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	m := &Manager{db: db, retention: DefaultRetention}
	if err := m.initSchema(); err != nil {
		return nil, err
	}
	return m, nil
}

// SetRetention overrides the per-request retention bound.
func (m *Manager) SetRetention(n int) {
	if n > 0 {
		m.retention = n
	}
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		request_name TEXT NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT,
		body TEXT,
		status INTEGER,
		duration_ms INTEGER NOT NULL,
		failure_kind TEXT,
		failure_stage TEXT,
		failure_reason TEXT,
		response_headers TEXT,
		response_body TEXT,
		assertions TEXT,
		warnings TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_executions_name ON executions(request_name, id DESC);
	CREATE INDEX IF NOT EXISTS idx_executions_timestamp ON executions(timestamp DESC);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Append records one entry and prunes anything past the retention
// bound for that request name.
func (m *Manager) Append(entry *types.HistoryEntry) error {
	headersJSON, _ := json.Marshal(entry.Headers)
	respHeadersJSON, _ := json.Marshal(entry.Result.Headers)
	assertionsJSON, _ := json.Marshal(entry.Result.Assertions)
	warningsJSON, _ := json.Marshal(entry.Result.Warnings)

	var failureKind, failureStage, failureReason string
	if entry.Result.Failure != nil {
		failureKind = string(entry.Result.Failure.Kind)
		failureStage = string(entry.Result.Failure.Stage)
		failureReason = entry.Result.Failure.Reason
	}

	_, err := m.db.Exec(`
		INSERT INTO executions (
			timestamp, request_name, method, url, headers, body,
			status, duration_ms, failure_kind, failure_stage, failure_reason,
			response_headers, response_body, assertions, warnings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.RequestName,
		entry.Method,
		entry.URL,
		string(headersJSON),
		entry.Body,
		entry.Result.Status,
		entry.Result.DurationMs,
		failureKind,
		failureStage,
		failureReason,
		string(respHeadersJSON),
		entry.Result.Body,
		string(assertionsJSON),
		string(warningsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	if err := m.prune(entry.RequestName); err != nil {
		// Retention is best effort, the entry itself is stored.
		slog.Warn("history prune failed", "request", entry.RequestName, "error", err)
	}
	return nil
}

func (m *Manager) prune(requestName string) error {
	_, err := m.db.Exec(`
		DELETE FROM executions
		WHERE request_name = ?
		  AND id NOT IN (
			SELECT id FROM executions
			WHERE request_name = ?
			ORDER BY id DESC LIMIT ?
		  )`, requestName, requestName, m.retention)
	return err
}

// List returns the newest entries for a request name, most recent
// first, up to limit.
func (m *Manager) List(requestName string, limit int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = m.retention
	}

	rows, err := m.db.Query(`
		SELECT timestamp, request_name, method, url, headers, body,
		       status, duration_ms, failure_kind, failure_stage, failure_reason,
		       response_headers, response_body, assertions, warnings
		FROM executions
		WHERE request_name = ?
		ORDER BY id DESC LIMIT ?`, requestName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []types.HistoryEntry
	for rows.Next() {
		var (
			entry       types.HistoryEntry
			result      types.ExecutionResult
			ts          string
			headersJSON, respHeadersJSON, assertionsJSON, warningsJSON string
			failureKind, failureStage, failureReason                   string
		)
		if err := rows.Scan(
			&ts, &entry.RequestName, &entry.Method, &entry.URL, &headersJSON, &entry.Body,
			&result.Status, &result.DurationMs, &failureKind, &failureStage, &failureReason,
			&respHeadersJSON, &result.Body, &assertionsJSON, &warningsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		entry.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		_ = json.Unmarshal([]byte(headersJSON), &entry.Headers)
		_ = json.Unmarshal([]byte(respHeadersJSON), &result.Headers)
		_ = json.Unmarshal([]byte(assertionsJSON), &result.Assertions)
		_ = json.Unmarshal([]byte(warningsJSON), &result.Warnings)
		if failureKind != "" {
			result.Failure = &types.Failure{
				Kind:   types.FailureKind(failureKind),
				Stage:  types.Stage(failureStage),
				Reason: failureReason,
			}
		}
		entry.Result = &result
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries for a request name.
func (m *Manager) Count(requestName string) (int, error) {
	var n int
	err := m.db.QueryRow(
		`SELECT COUNT(*) FROM executions WHERE request_name = ?`, requestName).Scan(&n)
	return n, err
}

// Close releases the database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}
