// Package dispatch routes inbound packets to typed handlers by PacketType,
// generalizing the teacher's single hardcoded processControl switch into a
// registry so each component registers its own handlers independently.
package dispatch

import (
	"fmt"
	"log"
	"sync"

	"github.com/yarg-net/backplane/internal/wireproto"
)

// Role identifies which side of a connection is delivering a packet.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Context carries the metadata a handler needs alongside the decoded
// payload: which connection the packet arrived on, the channel (lobby) it
// belongs to, and which role sent it.
type Context struct {
	ConnectionID interface{}
	ChannelID    interface{}
	Role         Role
}

// Handler processes one decoded envelope payload. env.Payload is the raw
// JSON payload for the packet's type; handlers unmarshal it themselves.
type Handler func(ctx Context, env wireproto.Envelope) error

// Dispatcher routes decoded JSON envelopes to the handler registered for
// their PacketType. It does not itself handle binary frames — those are
// routed by the relay table in internal/gameserver instead (§4.12).
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[wireproto.PacketType]Handler
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[wireproto.PacketType]Handler)}
}

// RegisterHandler installs h for t. Registering a second handler for the
// same type is an error — each packet type has exactly one owner.
func (d *Dispatcher) RegisterHandler(t wireproto.PacketType, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[t]; exists {
		return fmt.Errorf("dispatch: handler already registered for %s", t)
	}
	d.handlers[t] = h
	return nil
}

// Dispatch peeks the first byte of raw to decide framing: a JSON envelope
// ('{' or '[') is decoded and routed to its type's handler; anything else
// is treated as a binary frame and is not this dispatcher's concern (the
// caller should route it through the binary relay table instead).
//
// It returns true if a JSON envelope was decoded and delivered to a
// registered handler. An unknown type is reported as (false, nil) — it is
// not an error, just a non-event. A handler's own error is logged and
// isolated from the caller; Dispatch still returns (true, nil) because the
// envelope was successfully routed.
func (d *Dispatcher) Dispatch(ctx Context, raw []byte) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}
	if !wireproto.IsJSONEnvelope(raw[0]) {
		return false, nil
	}

	env, err := wireproto.Deserialize(raw)
	if err != nil {
		return false, fmt.Errorf("dispatch: decode envelope: %w", err)
	}

	d.mu.RLock()
	h, ok := d.handlers[env.Type]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[dispatch] handler for %s panicked: %v", env.Type, r)
			}
		}()
		if err := h(ctx, env); err != nil {
			log.Printf("[dispatch] handler for %s returned error: %v", env.Type, err)
		}
	}()

	return true, nil
}
