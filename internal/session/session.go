// Package session tracks the set of connections bound to a session, the
// way room.go tracks clients bound to a Room: a capacity-bounded map guarded
// by one mutex, with a reverse index so lookups run either direction.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyRegistered is returned by TryCreateSession when the
	// connection already has a session bound.
	ErrAlreadyRegistered = errors.New("session: connection already registered")
	// ErrServerFull is returned by TryCreateSession when capacity would be
	// exceeded.
	ErrServerFull = errors.New("session: server full")
)

// Record is a snapshot of one session's state. Records returned by this
// package are always copies — callers cannot mutate manager state through
// them.
type Record struct {
	SessionID    uuid.UUID
	ConnectionID uuid.UUID
	PlayerName   string
}

// Manager is a capacity-bounded SessionId -> Record map with a reverse
// ConnectionId -> SessionId index. All mutating operations serialize under
// a single mutex.
type Manager struct {
	mu       sync.Mutex
	capacity int
	byID     map[uuid.UUID]Record
	byConn   map[uuid.UUID]uuid.UUID
}

// New creates a Manager that rejects TryCreateSession once capacity
// sessions are registered. capacity <= 0 means unbounded.
func New(capacity int) *Manager {
	return &Manager{
		capacity: capacity,
		byID:     make(map[uuid.UUID]Record),
		byConn:   make(map[uuid.UUID]uuid.UUID),
	}
}

// TryCreateSession registers a new session bound to connID, returning a
// fresh SessionId. It fails with ErrAlreadyRegistered if the connection is
// already bound to a session, or ErrServerFull if capacity would be
// exceeded.
func (m *Manager) TryCreateSession(connID uuid.UUID, playerName string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byConn[connID]; exists {
		return uuid.Nil, ErrAlreadyRegistered
	}
	if m.capacity > 0 && len(m.byID) >= m.capacity {
		return uuid.Nil, ErrServerFull
	}

	sid := uuid.New()
	m.byID[sid] = Record{SessionID: sid, ConnectionID: connID, PlayerName: playerName}
	m.byConn[connID] = sid
	return sid, nil
}

// Remove drops a session by id. It is idempotent: removing an id that is
// not present is not an error.
func (m *Manager) Remove(sid uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[sid]
	if !ok {
		return
	}
	delete(m.byID, sid)
	delete(m.byConn, rec.ConnectionID)
}

// RemoveByConnection drops the session bound to connID, if any. Idempotent.
func (m *Manager) RemoveByConnection(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.byConn[connID]
	if !ok {
		return
	}
	delete(m.byID, sid)
	delete(m.byConn, connID)
}

// Lookup returns a copy of the session record for sid.
func (m *Manager) Lookup(sid uuid.UUID) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[sid]
	return rec, ok
}

// LookupByConnection returns a copy of the session record bound to connID.
func (m *Manager) LookupByConnection(connID uuid.UUID) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.byConn[connID]
	if !ok {
		return Record{}, false
	}
	return m.byID[sid], true
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Snapshot returns a copy of every registered session record. The order is
// unspecified.
func (m *Manager) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.byID))
	for _, rec := range m.byID {
		out = append(out, rec)
	}
	return out
}
