// Package session owns per-conversation state persistence. Stores have no
// routing knowledge and do not serialize concurrent writers for a session;
// that duty belongs to the dispatch engine, which holds a per-session lock
// across load, dispatch, and save (see LockTable).
package session

import (
	"context"
	"sync"

	"shopdesk/internal/logging"
	"shopdesk/internal/types"
)

// Store is the session state store contract.
//
// Load never errors: a miss (or an unavailable backend) yields a fresh
// default state, so a store outage costs conversation context but never chat
// availability. Save is idempotent last-write-wins; its error is logged and
// swallowed by the caller.
type Store interface {
	Load(ctx context.Context, sessionID string) *types.ConversationState
	Save(ctx context.Context, state *types.ConversationState) error
	AppendTurn(ctx context.Context, sessionID string, turn types.Turn) error
	Close() error
}

// MemoryStore is the in-process Store used by default and in tests.
type MemoryStore struct {
	mu           sync.RWMutex
	states       map[string]*types.ConversationState
	historyLimit int
}

// NewMemoryStore creates an empty in-memory store. historyLimit caps
// turn_history per session; <= 0 means unbounded.
func NewMemoryStore(historyLimit int) *MemoryStore {
	return &MemoryStore{
		states:       make(map[string]*types.ConversationState),
		historyLimit: historyLimit,
	}
}

// Load returns a deep copy of the stored state, or a fresh default on miss.
func (m *MemoryStore) Load(_ context.Context, sessionID string) *types.ConversationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if state, ok := m.states[sessionID]; ok {
		return state.Clone()
	}
	logging.SessionDebug("MemoryStore: creating default state for session %s", sessionID)
	return types.NewConversationState(sessionID)
}

// Save stores a deep copy of the state, replacing any previous record.
func (m *MemoryStore) Save(_ context.Context, state *types.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return nil
	}
	m.mu.Lock()
	m.states[state.SessionID] = state.Clone()
	m.mu.Unlock()
	return nil
}

// AppendTurn appends a turn directly to the persisted history, creating the
// session record if needed.
func (m *MemoryStore) AppendTurn(_ context.Context, sessionID string, turn types.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[sessionID]
	if !ok {
		state = types.NewConversationState(sessionID)
		m.states[sessionID] = state
	}
	state.AppendTurn(turn, m.historyLimit)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
