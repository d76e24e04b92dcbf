package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"shopdesk/internal/logging"
	"shopdesk/internal/types"
)

// SQLiteStore persists conversation state in SQLite. Per the Store contract,
// Load converts backend failures into a fresh default state (logged) instead
// of an error.
type SQLiteStore struct {
	mu           sync.Mutex
	db           *sql.DB
	historyLimit int
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id       TEXT PRIMARY KEY,
	active_category  TEXT NOT NULL DEFAULT '',
	error_count      INTEGER NOT NULL DEFAULT 0,
	user_context     TEXT NOT NULL DEFAULT '{}',
	compliance_flags TEXT NOT NULL DEFAULT '{}',
	updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_turns_session ON session_turns(session_id, id);
`

// NewSQLiteStore opens (creating if necessary) the session database at path.
func NewSQLiteStore(path string, historyLimit int) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	logging.Session("SQLiteStore: opened %s (history limit %d)", path, historyLimit)
	return &SQLiteStore{db: db, historyLimit: historyLimit}, nil
}

// Load reads session state and its capped turn history. Any backend error is
// logged and degraded to a fresh default state for this turn.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) *types.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := types.NewConversationState(sessionID)

	var userContext, complianceFlags string
	row := s.db.QueryRowContext(ctx,
		`SELECT active_category, error_count, user_context, compliance_flags
		 FROM sessions WHERE session_id = ?`, sessionID)
	err := row.Scan(&state.ActiveCategory, &state.ErrorCount, &userContext, &complianceFlags)
	if err == sql.ErrNoRows {
		logging.SessionDebug("SQLiteStore: creating default state for session %s", sessionID)
		return state
	}
	if err != nil {
		logging.SessionError("SQLiteStore: load failed for %s, using fresh state: %v", sessionID, err)
		return types.NewConversationState(sessionID)
	}

	if err := json.Unmarshal([]byte(userContext), &state.UserContext); err != nil {
		logging.SessionError("SQLiteStore: bad user_context for %s: %v", sessionID, err)
		state.UserContext = nil
	}
	if err := json.Unmarshal([]byte(complianceFlags), &state.ComplianceFlags); err != nil {
		logging.SessionError("SQLiteStore: bad compliance_flags for %s: %v", sessionID, err)
		state.ComplianceFlags = make(map[string]bool)
	}

	turns, err := s.loadTurns(ctx, sessionID)
	if err != nil {
		logging.SessionError("SQLiteStore: history load failed for %s, continuing without history: %v", sessionID, err)
		return state
	}
	state.TurnHistory = turns
	return state
}

func (s *SQLiteStore) loadTurns(ctx context.Context, sessionID string) ([]types.Turn, error) {
	limit := s.historyLimit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	// Newest rows first so the cap keeps the tail of the conversation,
	// then reversed into chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM session_turns
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reversed []types.Turn
	for rows.Next() {
		var turn types.Turn
		if err := rows.Scan(&turn.Role, &turn.Text, &turn.Timestamp); err != nil {
			return nil, err
		}
		reversed = append(reversed, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	turns := make([]types.Turn, len(reversed))
	for i, turn := range reversed {
		turns[len(reversed)-1-i] = turn
	}
	return turns, nil
}

// Save upserts the session row. Last write wins; turn history is persisted
// separately via AppendTurn.
func (s *SQLiteStore) Save(ctx context.Context, state *types.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return nil
	}

	userContext, err := json.Marshal(state.UserContext)
	if err != nil {
		return fmt.Errorf("failed to marshal user_context: %w", err)
	}
	complianceFlags, err := json.Marshal(state.ComplianceFlags)
	if err != nil {
		return fmt.Errorf("failed to marshal compliance_flags: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, active_category, error_count, user_context, compliance_flags, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   active_category = excluded.active_category,
		   error_count = excluded.error_count,
		   user_context = excluded.user_context,
		   compliance_flags = excluded.compliance_flags,
		   updated_at = excluded.updated_at`,
		state.SessionID, state.ActiveCategory, state.ErrorCount,
		string(userContext), string(complianceFlags), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	return nil
}

// AppendTurn inserts a turn and evicts rows beyond the history limit,
// oldest first.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_turns (session_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, turn.Role, turn.Text, ts)
	if err != nil {
		return fmt.Errorf("failed to append turn for %s: %w", sessionID, err)
	}

	if s.historyLimit > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM session_turns WHERE session_id = ? AND id NOT IN (
			   SELECT id FROM session_turns WHERE session_id = ? ORDER BY id DESC LIMIT ?
			 )`, sessionID, sessionID, s.historyLimit)
		if err != nil {
			return fmt.Errorf("failed to trim history for %s: %w", sessionID, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
