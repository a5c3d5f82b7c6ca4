// Package relay implements the session-multiplexed UDP fallback used when
// NAT hole-punching (internal/punch) cannot establish a direct path: a host
// and a client each register into one relay session, and the relay forwards
// opaque payloads between whichever two endpoints hold that session's slots.
//
// Two wire dialects share this bookkeeping: dialect A is a raw UDP framing
// served by Listener, dialect B is framed over a WebTransport session served
// by WTRelay. A session records no dialect; a frame reaches its destination
// only when both slots were registered through the same dialect, since each
// listener can send only to endpoints of its own kind.
package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// InactivityTTL garbage-collects a session after this long without any
// Data/Heartbeat/register traffic.
const InactivityTTL = 30 * time.Minute

// MinFrameSize is the smallest legal dialect-A frame: 1 opcode byte + a
// 16-byte session id.
const MinFrameSize = 17

// Slot identifies which side of a session an endpoint occupies.
type Slot int

const (
	SlotHost Slot = iota
	SlotClient
)

// Endpoint is dialect-agnostic: dialect A stores a UDP address string,
// dialect B stores a WebTransport session's opaque stream/session key.
type Endpoint string

type session struct {
	lobbyID      uuid.UUID
	host         Endpoint
	client       Endpoint
	hasHost      bool
	hasClient    bool
	lastActivity time.Time
	packets      uint64
	bytes        uint64
}

func (s *session) empty() bool { return !s.hasHost && !s.hasClient }

func (s *session) endpointFor(slot Slot) (Endpoint, bool) {
	if slot == SlotHost {
		return s.host, s.hasHost
	}
	return s.client, s.hasClient
}

// opposite returns the other slot in a session.
func opposite(slot Slot) Slot {
	if slot == SlotHost {
		return SlotClient
	}
	return SlotHost
}

// slotOf reports which slot, if any, ep currently occupies.
func (s *session) slotOf(ep Endpoint) (Slot, bool) {
	if s.hasHost && s.host == ep {
		return SlotHost, true
	}
	if s.hasClient && s.client == ep {
		return SlotClient, true
	}
	return 0, false
}

// Stats is the counter snapshot served by GET /api/relay/stats.
type Stats struct {
	ActiveSessions int
	PacketsRelayed uint64
	BytesRelayed   uint64
}

// Registry owns the session table. One Registry can back both dialect
// listeners (cmd/backplane passes the same one to each), so
// allocation/stats/GC logic is shared; it does not record which dialect
// registered a slot.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	byLobby  map[uuid.UUID]uuid.UUID // lobbyID -> sessionID, for idempotent allocation
}

// NewRegistry creates an empty session table.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*session),
		byLobby:  make(map[uuid.UUID]uuid.UUID),
	}
}

// Allocate creates a relay session for lobbyID, or returns the existing one
// if lobbyID already has a session.
func (r *Registry) Allocate(lobbyID uuid.UUID) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sid, ok := r.byLobby[lobbyID]; ok {
		return sid
	}
	sid := uuid.New()
	r.sessions[sid] = &session{lobbyID: lobbyID, lastActivity: time.Now()}
	r.byLobby[lobbyID] = sid
	return sid
}

// Release tears down a session by id. Returns whether it existed.
func (r *Registry) Release(sessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(r.sessions, sessionID)
	delete(r.byLobby, s.lobbyID)
	return true
}

// Stats returns the current aggregate counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{ActiveSessions: len(r.sessions)}
	for _, s := range r.sessions {
		st.PacketsRelayed += s.packets
		st.BytesRelayed += s.bytes
	}
	return st
}

// Register claims slot for sessionID at ep, returning whether the other slot
// is already filled (the caller should emit PeerConnected to both sides when
// true) and whether the session exists at all.
func (r *Registry) Register(sessionID uuid.UUID, slot Slot, ep Endpoint) (peerConnected bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.sessions[sessionID]
	if !found {
		return false, false
	}
	switch slot {
	case SlotHost:
		s.host, s.hasHost = ep, true
	case SlotClient:
		s.client, s.hasClient = ep, true
	}
	s.lastActivity = time.Now()
	_, otherFilled := s.endpointFor(opposite(slot))
	return otherFilled, true
}

// Unregister releases whichever slot ep occupies in sessionID. Returns the
// slot the disconnecting peer held and whether the session is now destroyed
// (both slots empty).
func (r *Registry) Unregister(sessionID uuid.UUID, ep Endpoint) (slot Slot, destroyed bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.sessions[sessionID]
	if !found {
		return 0, false, false
	}
	slot, found = s.slotOf(ep)
	if !found {
		return 0, false, false
	}
	switch slot {
	case SlotHost:
		s.host, s.hasHost = "", false
	case SlotClient:
		s.client, s.hasClient = "", false
	}
	s.lastActivity = time.Now()
	if s.empty() {
		delete(r.sessions, sessionID)
		delete(r.byLobby, s.lobbyID)
		return slot, true, true
	}
	return slot, false, true
}

// Forward looks up the destination endpoint for a packet arriving from src
// in sessionID. It authorizes by exact source-endpoint match per the
// forwarding invariant, and records traffic counters. The lock is released
// before the caller performs the actual send.
func (r *Registry) Forward(sessionID uuid.UUID, src Endpoint, payloadLen int) (dest Endpoint, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.sessions[sessionID]
	if !found {
		return "", false
	}
	slot, found := s.slotOf(src)
	if !found {
		return "", false // unauthorized source endpoint
	}
	dest, destSet := s.endpointFor(opposite(slot))
	if !destSet {
		return "", false
	}
	s.lastActivity = time.Now()
	s.packets++
	s.bytes += uint64(payloadLen)
	return dest, true
}

// Touch refreshes a session's activity clock without forwarding anything
// (used for Heartbeat opcodes).
func (r *Registry) Touch(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.lastActivity = time.Now()
	}
}

// GC drops sessions inactive for longer than InactivityTTL. Returns the ids
// of sessions it removed, so the caller can notify any still-connected peer.
func (r *Registry) GC(now time.Time) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []uuid.UUID
	for sid, s := range r.sessions {
		if now.Sub(s.lastActivity) > InactivityTTL {
			removed = append(removed, sid)
			delete(r.sessions, sid)
			delete(r.byLobby, s.lobbyID)
		}
	}
	return removed
}
