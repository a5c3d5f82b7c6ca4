package relay

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/webtransport-go"
)

// Opcodes for dialect B, framed over a WebTransport session's datagrams.
// Re-assigned relative to dialect A: register/data/registered/peer-connected/
// peer-disconnected/error.
const (
	OpBRegister         byte = 1
	OpBData             byte = 2
	OpBRegistered       byte = 10
	OpBPeerConnected    byte = 11
	OpBPeerDisconnected byte = 12
	OpBError            byte = 20
)

// wtPeer adapts a *webtransport.Session to the Endpoint bookkeeping in
// Registry: Endpoint strings double as lookup keys into this map so Forward
// doesn't need a WebTransport-specific Registry variant.
type wtPeer struct {
	session *webtransport.Session
	id      string
}

// WTRelay serves dialect B: session-keyed datagram forwarding across
// WebTransport sessions sharing one reg, the same way readDatagrams/
// room.Broadcast fan traffic out in the voice-chat transport this is
// adapted from, but session-scoped instead of room-wide.
type WTRelay struct {
	reg *Registry

	mu    sync.Mutex
	peers map[string]*wtPeer
}

// NewWTRelay wraps reg with WebTransport-session bookkeeping.
func NewWTRelay(reg *Registry) *WTRelay {
	return &WTRelay{reg: reg, peers: make(map[string]*wtPeer)}
}

// HandleSession reads datagrams from sess until it closes, dispatching
// register and data frames over WebTransport datagrams instead of raw UDP.
// Dialect B has no heartbeat or disconnect frame; when sess closes its peer
// entry is dropped, but the Registry slot it registered stays filled until
// Unregister, Release or GC clears it.
func (w *WTRelay) HandleSession(ctx context.Context, sess *webtransport.Session) {
	peerID := uuid.New().String()
	ep := Endpoint(peerID)

	w.mu.Lock()
	w.peers[peerID] = &wtPeer{session: sess, id: peerID}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.peers, peerID)
		w.mu.Unlock()
	}()

	for {
		data, err := sess.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[relay] webtransport datagram read error: %v", err)
			}
			return
		}
		w.handleFrame(data, ep)
	}
}

func (w *WTRelay) handleFrame(frame []byte, ep Endpoint) {
	if len(frame) < 1 {
		return
	}
	opcode := frame[0]
	switch opcode {
	case OpBRegister:
		if len(frame) < 18 {
			return
		}
		sessionID, err := uuid.FromBytes(frame[1:17])
		if err != nil {
			return
		}
		isHost := frame[17] != 0
		slot := SlotClient
		if isHost {
			slot = SlotHost
		}
		w.register(sessionID, slot, ep)

	case OpBData:
		if len(frame) < 17 {
			return
		}
		sessionID, err := uuid.FromBytes(frame[1:17])
		if err != nil {
			return
		}
		w.forward(sessionID, ep, frame[17:])

	default:
		log.Printf("[relay] unrecognized webtransport opcode %d", opcode)
	}
}

func (w *WTRelay) register(sessionID uuid.UUID, slot Slot, ep Endpoint) {
	peerConnected, ok := w.reg.Register(sessionID, slot, ep)
	if !ok {
		w.send(ep, w.frame(OpBError, sessionID, []byte("unknown session")))
		return
	}
	w.send(ep, w.frame(OpBRegistered, sessionID, nil))
	if peerConnected {
		for _, s := range []Slot{SlotHost, SlotClient} {
			if peerEP, ok := w.reg.endpointForSession(sessionID, s); ok {
				w.send(peerEP, w.frame(OpBPeerConnected, sessionID, nil))
			}
		}
	}
}

func (w *WTRelay) forward(sessionID uuid.UUID, src Endpoint, payload []byte) {
	dest, ok := w.reg.Forward(sessionID, src, len(payload))
	if !ok {
		return
	}
	w.send(dest, w.frame(OpBData, sessionID, payload))
}

func (w *WTRelay) frame(opcode byte, sessionID uuid.UUID, payload []byte) []byte {
	out := make([]byte, 17+len(payload))
	out[0] = opcode
	copy(out[1:17], sessionID[:])
	copy(out[17:], payload)
	return out
}

func (w *WTRelay) send(ep Endpoint, frame []byte) {
	w.mu.Lock()
	peer, ok := w.peers[string(ep)]
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := peer.session.SendDatagram(frame); err != nil {
		log.Printf("[relay] send to %s: %v", ep, err)
	}
}
