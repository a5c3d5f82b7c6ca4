// Package lobby implements the central per-room FSM: membership, readiness,
// song selection, and the countdown that gates gameplay start. Mutations
// commit under a lock, release it, then publish the resulting events — the
// same shape as channel_state.go's Add/Remove/JoinVoice methods, generalized
// from voice-channel presence to a four-state gameplay-readiness machine.
package lobby

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("lobby: player not found")
	ErrSpectator         = errors.New("lobby: operation not valid for a spectator")
	ErrWrongStatus       = errors.New("lobby: not valid in the current status")
	ErrCountdownInactive = errors.New("lobby: no countdown in progress")
)

// Assignment is a player's chosen instrument/difficulty for the current
// song selection.
type Assignment struct {
	Instrument string
	Difficulty uint8
}

// Player is one member of a lobby.
type Player struct {
	ID          uuid.UUID
	Name        string
	IsSpectator bool
	Ready       bool
	Assignment  Assignment
}

type playerState struct {
	Player
}

// Snapshot is a read-only, ordered view of lobby state: host first, then
// members sorted by name case-insensitively, then spectators.
type Snapshot struct {
	LobbyID    uuid.UUID
	Status     Status
	HostID     uuid.UUID
	SongID     string
	Members    []Player
	Spectators []Player
}

// Listener receives the events produced by a single mutation, called after
// the lock has been released (commit-then-emit).
type Listener func(lobbyID uuid.UUID, events []Event)

// Lobby is one room's FSM and membership state.
type Lobby struct {
	id uuid.UUID

	mu              sync.RWMutex
	status          Status
	hostID          uuid.UUID
	songID          string
	players         map[uuid.UUID]*playerState
	countdownActive bool
	countdownSecs   int

	listener Listener
	log      *slog.Logger
}

// New creates an empty lobby with no host; the first non-spectator to Join
// becomes host.
func New(id uuid.UUID, listener Listener) *Lobby {
	if listener == nil {
		listener = func(uuid.UUID, []Event) {}
	}
	return &Lobby{
		id:       id,
		players:  make(map[uuid.UUID]*playerState),
		listener: listener,
		log:      slog.Default().With("lobby_id", id),
	}
}

// ID returns the lobby's identifier.
func (l *Lobby) ID() uuid.UUID { return l.id }

// Join adds a player to the lobby. The first joining non-spectator becomes
// host if there is no host yet.
func (l *Lobby) Join(playerID uuid.UUID, name string, isSpectator bool) {
	var events []Event

	l.mu.Lock()
	prevStatus := l.status
	l.players[playerID] = &playerState{Player: Player{
		ID:          playerID,
		Name:        name,
		IsSpectator: isSpectator,
	}}
	if l.hostID == uuid.Nil && !isSpectator {
		l.hostID = playerID
	}
	events = append(events, PlayerJoined{PlayerID: playerID})
	events = append(events, l.recomputeStatusLocked(prevStatus)...)
	l.mu.Unlock()

	l.log.Info("player joined", "player_id", playerID, "spectator", isSpectator)
	l.listener(l.id, events)
}

// Leave removes a player. If the host leaves, the first remaining member
// (non-spectator) is promoted. Leaving while the countdown is active cancels
// it.
func (l *Lobby) Leave(playerID uuid.UUID) {
	var events []Event

	l.mu.Lock()
	if _, ok := l.players[playerID]; !ok {
		l.mu.Unlock()
		return
	}
	prevStatus := l.status
	wasHost := l.hostID == playerID
	delete(l.players, playerID)
	events = append(events, PlayerLeft{PlayerID: playerID})

	if wasHost {
		l.hostID = l.firstRemainingMemberLocked()
	}
	if l.countdownActive {
		l.countdownActive = false
		events = append(events, CountdownCancelled{})
	}
	events = append(events, l.recomputeStatusLocked(prevStatus)...)
	l.mu.Unlock()

	l.log.Info("player left", "player_id", playerID, "was_host", wasHost)
	l.listener(l.id, events)
}

func (l *Lobby) firstRemainingMemberLocked() uuid.UUID {
	var candidates []*playerState
	for _, p := range l.players {
		if !p.IsSpectator {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return uuid.Nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return strings.ToLower(candidates[i].Name) < strings.ToLower(candidates[j].Name)
	})
	return candidates[0].ID
}

// TrySetRole toggles a player between member and spectator. If the host
// becomes a spectator, a new host is promoted.
func (l *Lobby) TrySetRole(playerID uuid.UUID, isSpectator bool) error {
	var events []Event

	l.mu.Lock()
	p, ok := l.players[playerID]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.IsSpectator == isSpectator {
		l.mu.Unlock()
		return nil
	}
	prevStatus := l.status
	p.IsSpectator = isSpectator
	if isSpectator {
		p.Ready = false
		if l.hostID == playerID {
			l.hostID = l.firstRemainingMemberLocked()
		}
	}
	events = append(events, RoleChanged{PlayerID: playerID, IsSpectator: isSpectator})
	if l.countdownActive && isSpectator {
		l.countdownActive = false
		events = append(events, CountdownCancelled{})
	}
	events = append(events, l.recomputeStatusLocked(prevStatus)...)
	l.mu.Unlock()

	l.listener(l.id, events)
	return nil
}

// TryApplySongSelection normalizes songID and filters assignments down to
// non-spectator, distinct players with both fields set. A successful change
// resets every non-spectator's ready flag.
func (l *Lobby) TryApplySongSelection(songID string, assignments map[uuid.UUID]Assignment) error {
	songID = strings.TrimSpace(songID)

	var events []Event

	l.mu.Lock()
	prevStatus := l.status
	changed := l.songID != songID

	filtered := make(map[uuid.UUID]Assignment, len(assignments))
	for pid, a := range assignments {
		p, ok := l.players[pid]
		if !ok || p.IsSpectator {
			continue
		}
		if strings.TrimSpace(a.Instrument) == "" || a.Difficulty == 0 {
			continue
		}
		if _, dup := filtered[pid]; dup {
			continue
		}
		filtered[pid] = a
	}

	l.songID = songID
	for pid, p := range l.players {
		if p.IsSpectator {
			continue
		}
		if a, ok := filtered[pid]; ok {
			if p.Assignment != a {
				changed = true
			}
			p.Assignment = a
		} else if p.Assignment != (Assignment{}) {
			p.Assignment = Assignment{}
			changed = true
		}
	}

	if changed {
		for _, p := range l.players {
			if !p.IsSpectator {
				p.Ready = false
			}
		}
		events = append(events, SongSelectionChanged{SongID: songID})
		if l.countdownActive {
			l.countdownActive = false
			events = append(events, CountdownCancelled{})
		}
	}
	events = append(events, l.recomputeStatusLocked(prevStatus)...)
	l.mu.Unlock()

	l.listener(l.id, events)
	return nil
}

// TrySetReady sets a non-spectator's ready flag. Becoming unready while the
// countdown is active cancels it.
func (l *Lobby) TrySetReady(playerID uuid.UUID, ready bool) error {
	var events []Event

	l.mu.Lock()
	p, ok := l.players[playerID]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.IsSpectator {
		l.mu.Unlock()
		return ErrSpectator
	}
	if p.Ready == ready {
		l.mu.Unlock()
		return nil
	}
	prevStatus := l.status
	p.Ready = ready
	events = append(events, ReadyChanged{PlayerID: playerID, Ready: ready})

	if !ready && l.countdownActive {
		l.countdownActive = false
		events = append(events, CountdownCancelled{})
	}
	events = append(events, l.recomputeStatusLocked(prevStatus)...)
	l.mu.Unlock()

	l.listener(l.id, events)
	return nil
}

// TryStartCountdown transitions ReadyToPlay -> InCountdown and emits
// CountdownStarted. It fails outside ReadyToPlay.
func (l *Lobby) TryStartCountdown(seconds int) error {
	var events []Event

	l.mu.Lock()
	if l.status != ReadyToPlay {
		l.mu.Unlock()
		return ErrWrongStatus
	}
	prev := l.status
	l.status = InCountdown
	l.countdownActive = true
	l.countdownSecs = seconds
	events = append(events, CountdownStarted{Seconds: seconds})
	events = append(events, StatusChanged{Prev: prev, Cur: l.status})
	l.mu.Unlock()

	l.listener(l.id, events)
	return nil
}

// CompleteCountdown signals that gameplay should start. It is valid only
// while InCountdown and is idempotent — a second call returns
// ErrCountdownInactive.
func (l *Lobby) CompleteCountdown() error {
	var events []Event

	l.mu.Lock()
	if l.status != InCountdown || !l.countdownActive {
		l.mu.Unlock()
		return ErrCountdownInactive
	}
	l.countdownActive = false
	events = append(events, GameplayStart{})
	prevStatus := l.status
	events = append(events, l.recomputeStatusLocked(prevStatus)...)
	l.mu.Unlock()

	l.listener(l.id, events)
	return nil
}

// recomputeStatusLocked must be called with l.mu held. It applies §4.4's
// recomputation rule and returns a StatusChanged event if the status moved.
func (l *Lobby) recomputeStatusLocked(prev Status) []Event {
	next := l.computeStatusLocked()
	l.status = next
	if next == prev {
		return nil
	}
	return []Event{StatusChanged{Prev: prev, Cur: next}}
}

func (l *Lobby) computeStatusLocked() Status {
	if l.countdownActive {
		return InCountdown
	}
	if l.songID == "" {
		return Idle
	}

	eligible := 0
	allReady := true
	for _, p := range l.players {
		if p.IsSpectator {
			continue
		}
		eligible++
		if !p.Ready {
			allReady = false
		}
	}
	if eligible >= 1 && allReady {
		return ReadyToPlay
	}
	return SelectingSong
}

// Snapshot returns an ordered copy of the lobby's current state: host
// first, then members sorted by name case-insensitively, then spectators.
func (l *Lobby) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var host *Player
	var members, spectators []Player

	for _, p := range l.players {
		cp := p.Player
		if p.IsSpectator {
			spectators = append(spectators, cp)
			continue
		}
		if p.ID == l.hostID {
			host = &cp
			continue
		}
		members = append(members, cp)
	}

	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Name) < strings.ToLower(members[j].Name)
	})
	sort.Slice(spectators, func(i, j int) bool {
		return strings.ToLower(spectators[i].Name) < strings.ToLower(spectators[j].Name)
	})

	out := Snapshot{
		LobbyID:    l.id,
		Status:     l.status,
		HostID:     l.hostID,
		SongID:     l.songID,
		Spectators: spectators,
	}
	if host != nil {
		out.Members = append([]Player{*host}, members...)
	} else {
		out.Members = members
	}
	return out
}

// PlayerCount returns the number of members (host + regular members, not
// spectators).
func (l *Lobby) PlayerCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, p := range l.players {
		if !p.IsSpectator {
			n++
		}
	}
	return n
}
