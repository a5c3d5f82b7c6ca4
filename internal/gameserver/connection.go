// Package gameserver owns the runtime glue around a reference game process:
// a transport-agnostic connection abstraction, a connection manager
// separating pending from authenticated sessions, the 15ms poll loop, the
// binary relay table, and the coordinator bridging lobby events to
// broadcasts. The actual transport (WebTransport, or anything else) is
// pluggable behind the Connection/Transport interfaces; see
// internal/transport/wt for the reference implementation.
package gameserver

import "github.com/google/uuid"

// Channel selects delivery semantics for Connection.Send, mirroring the
// reliable-ordered-vs-unreliable split a reliable-datagram transport offers.
type Channel int

const (
	// ReliableOrdered delivers FIFO and is used for lobby/setlist/song
	// library state and anything the dispatcher must not reorder.
	ReliableOrdered Channel = iota
	// Unreliable is the fire-and-forget datagram channel. RelayTable does
	// not use it: it forwards gameplay, replay and unison frames on
	// ReliableOrdered.
	Unreliable
)

// Connection is the transport-agnostic per-session handle the rest of this
// package and internal/dispatch operate against.
type Connection interface {
	Id() uuid.UUID
	Send(data []byte, channel Channel) error
	Disconnect(reason string) error
}

// Transport is advanced once per poll tick; concrete implementations drain
// whatever I/O their underlying library needs and invoke the callbacks
// registered on them.
type Transport interface {
	Poll() error
}
