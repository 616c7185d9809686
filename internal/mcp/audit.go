package mcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry is one recorded tool invocation.
type AuditEntry struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ToolName     string    `json:"tool_name"`
	InputJSON    string    `json:"input_json"`
	Caller       string    `json:"caller"`
	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// AuditStore persists tool invocation records. Timestamps are stored as
// RFC3339 UTC strings so that ordering compares correctly.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an audit store backed by the given database handle.
// The caller applies the module migrations before handing the handle over.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Insert records one audit entry.
func (s *AuditStore) Insert(ctx context.Context, entry AuditEntry) error {
	success := 0
	if entry.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_audit_log (timestamp, tool_name, input_json, caller, duration_ms, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.ToolName,
		entry.InputJSON,
		entry.Caller,
		entry.DurationMs,
		success,
		entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns audit entries, newest first, optionally filtered by tool
// name, together with the total matching row count.
func (s *AuditStore) List(ctx context.Context, toolName string, limit, offset int) ([]AuditEntry, int, error) {
	countQuery := `SELECT COUNT(*) FROM mcp_audit_log`
	var filterArgs []any
	if toolName != "" {
		countQuery += ` WHERE tool_name = ?`
		filterArgs = append(filterArgs, toolName)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, filterArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := `SELECT id, timestamp, tool_name, input_json, caller, duration_ms, success, error_message FROM mcp_audit_log`
	if toolName != "" {
		query += ` WHERE tool_name = ?`
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args := make([]any, 0, len(filterArgs)+2)
	args = append(args, filterArgs...)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e       AuditEntry
			ts      string
			success int
		)
		if err := rows.Scan(&e.ID, &ts, &e.ToolName, &e.InputJSON, &e.Caller, &e.DurationMs, &success, &e.ErrorMessage); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, 0, fmt.Errorf("parse audit timestamp: %w", err)
		}
		e.Success = success != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}
