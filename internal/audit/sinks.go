package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"shopdesk/internal/types"
)

// =============================================================================
// MEMORY SINK
// =============================================================================

// MemorySink buffers entries in memory. Used by tests and the `ask` one-shot
// command.
type MemorySink struct {
	mu      sync.Mutex
	entries []types.AuditEntry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends the entry.
func (m *MemorySink) Write(_ context.Context, entry types.AuditEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of everything written so far.
func (m *MemorySink) Entries() []types.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Close is a no-op.
func (m *MemorySink) Close() error { return nil }

// =============================================================================
// FILE SINK
// =============================================================================

// FileSink appends entries as JSON lines to a log file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if necessary) the audit log at path.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &FileSink{file: file}, nil
}

// Write appends one JSON line.
func (f *FileSink) Write(_ context.Context, entry types.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// =============================================================================
// SQLITE SINK
// =============================================================================

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	category   TEXT NOT NULL,
	succeeded  INTEGER NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	detail     TEXT NOT NULL DEFAULT '',
	ts         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_entries(session_id, ts);
`

// SQLiteSink appends entries to an audit_entries table. Rows are insert-only;
// nothing in the core updates or deletes them.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if necessary) the audit database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write inserts one entry.
func (s *SQLiteSink) Write(ctx context.Context, entry types.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, session_id, event_type, category, succeeded, confidence, detail, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.EventType, entry.Category,
		entry.Succeeded, entry.Confidence, entry.Detail, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
