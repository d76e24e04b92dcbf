package session

import "sync"

// LockTable hands out a mutex per session so the dispatch engine can hold
// exclusion across load -> dispatch -> save. Turns within one session are
// thereby applied strictly in arrival order; turns across sessions run in
// parallel.
//
// Entries are reference-counted and removed once no turn holds or awaits the
// lock, so the table does not grow with the lifetime set of session IDs.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sessionLock)}
}

// Acquire blocks until the session lock is held and returns the release
// function. Callers must release exactly once, typically via defer.
func (t *LockTable) Acquire(sessionID string) func() {
	t.mu.Lock()
	entry, ok := t.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		t.locks[sessionID] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, sessionID)
		}
		t.mu.Unlock()
	}
}
