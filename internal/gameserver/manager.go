package gameserver

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// controlRateLimit and controlRateBurst bound how many control-message
// (JSON envelope) frames a single connection may dispatch per second,
// upgrading the teacher's manual per-second counter-and-reset
// (Room.CheckControlRate) to a real token bucket.
const (
	controlRateLimit = rate.Limit(20)
	controlRateBurst = 40
)

// ConnectionManager separates connections that have not yet completed the
// handshake (pending) from authenticated ones, and keeps a reverse index
// from persistent PlayerId to the current ConnectionId so a reconnecting
// player's old connection can be identified and replaced. It also owns a
// per-connection control-message rate limiter, alive for the connection's
// whole lifetime regardless of authentication state.
type ConnectionManager struct {
	mu            sync.RWMutex
	pending       map[uuid.UUID]Connection
	authenticated map[uuid.UUID]Connection
	byPlayer      map[uuid.UUID]uuid.UUID // playerID -> connectionID
	playerOf      map[uuid.UUID]uuid.UUID // connectionID -> playerID
	limiters      map[uuid.UUID]*rate.Limiter
}

// NewConnectionManager creates an empty manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		pending:       make(map[uuid.UUID]Connection),
		authenticated: make(map[uuid.UUID]Connection),
		byPlayer:      make(map[uuid.UUID]uuid.UUID),
		playerOf:      make(map[uuid.UUID]uuid.UUID),
		limiters:      make(map[uuid.UUID]*rate.Limiter),
	}
}

// AddPending registers a newly-accepted, not-yet-authenticated connection.
func (m *ConnectionManager) AddPending(c Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[c.Id()] = c
	m.limiters[c.Id()] = rate.NewLimiter(controlRateLimit, controlRateBurst)
}

// AllowControlMessage reports whether connID may dispatch another
// control-message frame right now, consuming one token if so. An untracked
// connection (already removed) is denied.
func (m *ConnectionManager) AllowControlMessage(connID uuid.UUID) bool {
	m.mu.RLock()
	l, ok := m.limiters[connID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return l.Allow()
}

// Authenticate promotes a pending connection to authenticated, associating
// it with playerID. If another connection already holds playerID, its
// ConnectionId is returned so the caller can disconnect the stale one.
func (m *ConnectionManager) Authenticate(connID, playerID uuid.UUID) (staleConnID uuid.UUID, hadStale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.pending[connID]
	if !ok {
		return uuid.Nil, false
	}
	delete(m.pending, connID)
	m.authenticated[connID] = c

	if prevConnID, exists := m.byPlayer[playerID]; exists && prevConnID != connID {
		staleConnID, hadStale = prevConnID, true
		delete(m.authenticated, prevConnID)
		delete(m.playerOf, prevConnID)
	}
	m.byPlayer[playerID] = connID
	m.playerOf[connID] = playerID
	return staleConnID, hadStale
}

// Remove drops a connection from whichever set it is in and clears its
// player index entry, if any. Safe to call for a connection ID that is not
// tracked.
func (m *ConnectionManager) Remove(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, connID)
	delete(m.authenticated, connID)
	delete(m.limiters, connID)
	if playerID, ok := m.playerOf[connID]; ok {
		delete(m.playerOf, connID)
		if m.byPlayer[playerID] == connID {
			delete(m.byPlayer, playerID)
		}
	}
}

// ByConnection returns an authenticated connection's handle, if tracked.
func (m *ConnectionManager) ByConnection(connID uuid.UUID) (Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.authenticated[connID]
	return c, ok
}

// ByPlayer resolves an authenticated player's current connection.
func (m *ConnectionManager) ByPlayer(playerID uuid.UUID) (Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	connID, ok := m.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	c, ok := m.authenticated[connID]
	return c, ok
}

// PlayerOf resolves the persistent PlayerId behind an authenticated
// connection.
func (m *ConnectionManager) PlayerOf(connID uuid.UUID) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	playerID, ok := m.playerOf[connID]
	return playerID, ok
}

// ToAll sends data to every authenticated connection on channel.
func (m *ConnectionManager) ToAll(data []byte, channel Channel) {
	m.mu.RLock()
	conns := m.snapshotAuthenticatedLocked()
	m.mu.RUnlock()

	for _, c := range conns {
		_ = c.Send(data, channel)
	}
}

// ToAllExcept sends to every authenticated connection other than connID.
func (m *ConnectionManager) ToAllExcept(connID uuid.UUID, data []byte, channel Channel) {
	m.mu.RLock()
	conns := m.snapshotAuthenticatedLocked()
	m.mu.RUnlock()

	for _, c := range conns {
		if c.Id() == connID {
			continue
		}
		_ = c.Send(data, channel)
	}
}

// ToAllExceptPlayer sends to every authenticated connection other than the
// one currently associated with playerID.
func (m *ConnectionManager) ToAllExceptPlayer(playerID uuid.UUID, data []byte, channel Channel) {
	m.mu.RLock()
	excludeConnID := m.byPlayer[playerID]
	conns := m.snapshotAuthenticatedLocked()
	m.mu.RUnlock()

	for _, c := range conns {
		if c.Id() == excludeConnID {
			continue
		}
		_ = c.Send(data, channel)
	}
}

// snapshotAuthenticatedLocked must be called with m.mu held (read or write).
func (m *ConnectionManager) snapshotAuthenticatedLocked() []Connection {
	out := make([]Connection, 0, len(m.authenticated))
	for _, c := range m.authenticated {
		out = append(out, c)
	}
	return out
}

// AuthenticatedCount reports how many connections are authenticated.
func (m *ConnectionManager) AuthenticatedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.authenticated)
}
