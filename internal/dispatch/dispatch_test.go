package dispatch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/yarg-net/backplane/internal/wireproto"
)

func envelopeBytes(t *testing.T, typ wireproto.PacketType, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	frame, err := wireproto.Serialize(wireproto.Envelope{Type: typ, Payload: raw})
	if err != nil {
		t.Fatalf("serialize envelope: %v", err)
	}
	return frame
}

func TestDispatchRoutesByType(t *testing.T) {
	d := New()
	var got wireproto.Envelope
	err := d.RegisterHandler(wireproto.LobbyState, func(ctx Context, env wireproto.Envelope) error {
		got = env
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	frame := envelopeBytes(t, wireproto.LobbyState, map[string]string{"foo": "bar"})
	handled, err := d.Dispatch(Context{Role: RoleClient}, frame)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !handled {
		t.Fatal("expected Dispatch to report handled=true")
	}
	if got.Type != wireproto.LobbyState {
		t.Fatalf("handler saw type %v, want %v", got.Type, wireproto.LobbyState)
	}
}

func TestDispatchSecondRegistrationFails(t *testing.T) {
	d := New()
	noop := func(Context, wireproto.Envelope) error { return nil }
	if err := d.RegisterHandler(wireproto.Heartbeat, noop); err != nil {
		t.Fatalf("first RegisterHandler: %v", err)
	}
	if err := d.RegisterHandler(wireproto.Heartbeat, noop); err == nil {
		t.Fatal("expected error registering a second handler for the same type")
	}
}

func TestDispatchUnknownTypeIsNotError(t *testing.T) {
	d := New()
	frame := envelopeBytes(t, wireproto.LobbyState, map[string]string{})
	handled, err := d.Dispatch(Context{}, frame)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if handled {
		t.Fatal("expected handled=false for an unregistered type")
	}
}

func TestDispatchIgnoresBinaryFrames(t *testing.T) {
	d := New()
	registered := false
	_ = d.RegisterHandler(wireproto.LobbyState, func(Context, wireproto.Envelope) error {
		registered = true
		return nil
	})

	binary := wireproto.BuildHeartbeat()
	handled, err := d.Dispatch(Context{}, binary)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if handled || registered {
		t.Fatal("expected binary frame to be ignored by the JSON dispatcher")
	}
}

func TestDispatchMalformedEnvelopeErrors(t *testing.T) {
	d := New()
	_, err := d.Dispatch(Context{}, []byte(`{"data":{}}`))
	if err == nil {
		t.Fatal("expected decode error for an envelope missing type")
	}
}

func TestDispatchHandlerErrorIsIsolated(t *testing.T) {
	d := New()
	_ = d.RegisterHandler(wireproto.LobbyState, func(Context, wireproto.Envelope) error {
		return errors.New("boom")
	})
	frame := envelopeBytes(t, wireproto.LobbyState, map[string]string{})
	handled, err := d.Dispatch(Context{}, frame)
	if err != nil {
		t.Fatalf("Dispatch should not propagate handler errors, got: %v", err)
	}
	if !handled {
		t.Fatal("expected handled=true even though the handler returned an error")
	}
}

func TestDispatchHandlerPanicIsIsolated(t *testing.T) {
	d := New()
	_ = d.RegisterHandler(wireproto.LobbyState, func(Context, wireproto.Envelope) error {
		panic("handler exploded")
	})
	frame := envelopeBytes(t, wireproto.LobbyState, map[string]string{})
	handled, err := d.Dispatch(Context{}, frame)
	if err != nil {
		t.Fatalf("Dispatch should not propagate a handler panic as an error, got: %v", err)
	}
	if !handled {
		t.Fatal("expected handled=true even though the handler panicked")
	}
}

func TestDispatchEmptyPayload(t *testing.T) {
	d := New()
	handled, err := d.Dispatch(Context{}, nil)
	if err != nil || handled {
		t.Fatalf("expected (false, nil) for empty payload, got (%v, %v)", handled, err)
	}
}
