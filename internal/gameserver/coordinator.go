package gameserver

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/yarg-net/backplane/internal/lobby"
	"github.com/yarg-net/backplane/internal/wireproto"
)

// ServerLobbyCoordinator bridges handshake outcomes and lobby-state
// mutations to connection broadcasts: the lobby package knows nothing about
// connections, and the connection manager knows nothing about lobby
// semantics. This is the only place that wires the two together, the same
// way main.go's room.SetOnRename/SetOnCreateChannel callbacks are the only
// place the teacher wires Room mutations to its store.
type ServerLobbyCoordinator struct {
	lobby *lobby.Lobby
	conns *ConnectionManager
}

// NewServerLobbyCoordinator wires a coordinator around an already-created
// lobby and connection manager. Callers must pass HandleEvents as lb's
// Listener (lobby.New's second argument) so mutations reach this
// coordinator.
func NewServerLobbyCoordinator(lb *lobby.Lobby, conns *ConnectionManager) *ServerLobbyCoordinator {
	return &ServerLobbyCoordinator{lobby: lb, conns: conns}
}

// HandleEvents is installed as the lobby's event listener: it broadcasts a
// GameplayCountdown envelope first when a countdown just started, then
// always broadcasts the resulting LobbyState, per §4.12.
func (c *ServerLobbyCoordinator) HandleEvents(lobbyID uuid.UUID, events []lobby.Event) {
	for _, ev := range events {
		if cs, ok := ev.(lobby.CountdownStarted); ok {
			c.broadcastCountdown(cs.Seconds)
		}
	}
	c.broadcastState()
}

func (c *ServerLobbyCoordinator) broadcastState() {
	data, err := json.Marshal(c.lobby.Snapshot())
	if err != nil {
		log.Printf("[gameserver] marshal lobby state: %v", err)
		return
	}
	c.broadcastEnvelope(wireproto.LobbyState, data)
}

func (c *ServerLobbyCoordinator) broadcastCountdown(seconds int) {
	data, err := json.Marshal(struct {
		Seconds int `json:"seconds"`
	}{seconds})
	if err != nil {
		log.Printf("[gameserver] marshal countdown: %v", err)
		return
	}
	c.broadcastEnvelope(wireproto.GameplayCountdown, data)
}

func (c *ServerLobbyCoordinator) broadcastEnvelope(t wireproto.PacketType, data []byte) {
	raw, err := wireproto.Serialize(wireproto.Envelope{Type: t, Payload: data})
	if err != nil {
		log.Printf("[gameserver] serialize %s: %v", t, err)
		return
	}
	c.conns.ToAll(raw, ReliableOrdered)
}

// Join admits a handshake-accepted session into the lobby as a member (or
// spectator) and broadcasts the resulting state via the installed listener.
func (c *ServerLobbyCoordinator) Join(playerID uuid.UUID, name string, isSpectator bool) {
	c.lobby.Join(playerID, name, isSpectator)
}

// Leave removes a disconnecting session from the lobby.
func (c *ServerLobbyCoordinator) Leave(playerID uuid.UUID) {
	c.lobby.Leave(playerID)
}
