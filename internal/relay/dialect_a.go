package relay

import (
	"fmt"
	"log"
	"net"

	"github.com/google/uuid"
)

// Opcodes for dialect A: raw `[opcode:1][sessionId:16][payload...]` framing.
const (
	OpHostRegister     byte = 1
	OpClientRegister   byte = 2
	OpData             byte = 3
	OpHeartbeat        byte = 4
	OpDisconnect       byte = 5
	OpAck              byte = 10
	OpPeerConnected    byte = 11
	OpPeerDisconnected byte = 12
)

// Listener serves dialect A over a single UDP socket.
type Listener struct {
	conn *net.UDPConn
	reg  *Registry
}

// ListenA opens the dialect-A UDP socket and binds it to reg.
func ListenA(addr string, reg *Registry) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("relay: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("relay: listen %q: %w", addr, err)
	}
	return &Listener{conn: conn, reg: reg}, nil
}

// LocalPort returns the bound UDP port.
func (l *Listener) LocalPort() int {
	if l.conn == nil {
		return 0
	}
	return l.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the UDP socket.
func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

// Run reads frames until the socket closes, alternating read and dispatch in
// one goroutine per the single-task relay-loop model.
func (l *Listener) Run() {
	buf := make([]byte, 65535)
	for {
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		l.handleFrame(buf[:n], Endpoint(src.String()), src)
	}
}

func (l *Listener) handleFrame(frame []byte, ep Endpoint, src *net.UDPAddr) {
	if len(frame) < MinFrameSize {
		return // silently dropped per the minimum-frame invariant
	}
	opcode := frame[0]
	sessionID, err := uuid.FromBytes(frame[1:17])
	if err != nil {
		return
	}
	payload := frame[17:]

	switch opcode {
	case OpHostRegister:
		l.register(sessionID, SlotHost, ep, src)
	case OpClientRegister:
		l.register(sessionID, SlotClient, ep, src)
	case OpData:
		l.forward(sessionID, ep, payload)
	case OpHeartbeat:
		l.reg.Touch(sessionID)
	case OpDisconnect:
		l.disconnect(sessionID, ep)
	default:
		log.Printf("[relay] unrecognized opcode %d from %s", opcode, src)
	}
}

func (l *Listener) register(sessionID uuid.UUID, slot Slot, ep Endpoint, src *net.UDPAddr) {
	peerConnected, ok := l.reg.Register(sessionID, slot, ep)
	if !ok {
		l.sendAck(src, false, "unknown session")
		return
	}
	l.sendAck(src, true, "registered")
	if peerConnected {
		l.notifyBothPeerConnected(sessionID)
	}
}

func (l *Listener) disconnect(sessionID uuid.UUID, ep Endpoint) {
	slot, destroyed, ok := l.reg.Unregister(sessionID, ep)
	if !ok || destroyed {
		return
	}
	// Notify whichever peer remains in the other slot.
	l.notifyPeerDisconnected(sessionID, opposite(slot))
}

func (l *Listener) forward(sessionID uuid.UUID, src Endpoint, payload []byte) {
	dest, ok := l.reg.Forward(sessionID, src, len(payload))
	if !ok {
		return // unauthorized source or no peer registered yet
	}
	l.sendData(sessionID, dest, payload)
}

func (l *Listener) sendData(sessionID uuid.UUID, dest Endpoint, payload []byte) {
	addr, err := net.ResolveUDPAddr("udp", string(dest))
	if err != nil {
		return
	}
	frame := make([]byte, 17+len(payload))
	frame[0] = OpData
	copy(frame[1:17], sessionID[:])
	copy(frame[17:], payload)
	_, _ = l.conn.WriteToUDP(frame, addr)
}

func (l *Listener) sendAck(dest *net.UDPAddr, success bool, message string) {
	if l.conn == nil || dest == nil {
		return
	}
	frame := make([]byte, 2+len(message))
	frame[0] = OpAck
	if success {
		frame[1] = 1
	}
	copy(frame[2:], message)
	_, _ = l.conn.WriteToUDP(frame, dest)
}

func (l *Listener) notifyBothPeerConnected(sessionID uuid.UUID) {
	for _, slot := range []Slot{SlotHost, SlotClient} {
		l.notifySlot(sessionID, slot, OpPeerConnected)
	}
}

func (l *Listener) notifyPeerDisconnected(sessionID uuid.UUID, remainingSlot Slot) {
	l.notifySlot(sessionID, remainingSlot, OpPeerDisconnected)
}

func (l *Listener) notifySlot(sessionID uuid.UUID, slot Slot, opcode byte) {
	ep, ok := l.reg.endpointForSession(sessionID, slot)
	if !ok {
		return
	}
	addr, err := net.ResolveUDPAddr("udp", string(ep))
	if err != nil {
		return
	}
	frame := make([]byte, 17)
	frame[0] = opcode
	copy(frame[1:17], sessionID[:])
	_, _ = l.conn.WriteToUDP(frame, addr)
}

// endpointForSession is a narrow read used only for post-event notification;
// it does not count as relay traffic.
func (r *Registry) endpointForSession(sessionID uuid.UUID, slot Slot) (Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	return s.endpointFor(slot)
}
