package lobby

import "github.com/google/uuid"

// Status is one state of the lobby FSM.
type Status int

const (
	Idle Status = iota
	SelectingSong
	ReadyToPlay
	InCountdown
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SelectingSong:
		return "SelectingSong"
	case ReadyToPlay:
		return "ReadyToPlay"
	case InCountdown:
		return "InCountdown"
	default:
		return "Unknown"
	}
}

// Event is one outcome of a lobby mutation. Concrete types below. A single
// mutation emits at most the events its outcome actually warrants — e.g.
// TrySetReady that changes nothing emits none.
type Event interface{ isLobbyEvent() }

type PlayerJoined struct{ PlayerID uuid.UUID }
type PlayerLeft struct{ PlayerID uuid.UUID }
type ReadyChanged struct {
	PlayerID uuid.UUID
	Ready    bool
}
type RoleChanged struct {
	PlayerID    uuid.UUID
	IsSpectator bool
}
type SongSelectionChanged struct{ SongID string }
type StatusChanged struct {
	Prev Status
	Cur  Status
}
type CountdownStarted struct{ Seconds int }
type CountdownCancelled struct{}
type GameplayStart struct{}

func (PlayerJoined) isLobbyEvent()         {}
func (PlayerLeft) isLobbyEvent()           {}
func (ReadyChanged) isLobbyEvent()         {}
func (RoleChanged) isLobbyEvent()          {}
func (SongSelectionChanged) isLobbyEvent() {}
func (StatusChanged) isLobbyEvent()        {}
func (CountdownStarted) isLobbyEvent()     {}
func (CountdownCancelled) isLobbyEvent()   {}
func (GameplayStart) isLobbyEvent()        {}
