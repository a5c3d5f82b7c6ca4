package relay

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAllocateIsIdempotentPerLobby(t *testing.T) {
	r := NewRegistry()
	lobby := uuid.New()

	s1 := r.Allocate(lobby)
	s2 := r.Allocate(lobby)
	if s1 != s2 {
		t.Fatalf("expected idempotent allocation, got %v then %v", s1, s2)
	}
}

func TestRegisterReportsPeerConnectedOnSecondSlot(t *testing.T) {
	r := NewRegistry()
	sid := r.Allocate(uuid.New())

	if connected, ok := r.Register(sid, SlotHost, "host:1"); !ok || connected {
		t.Fatalf("expected host-only registration, got connected=%v ok=%v", connected, ok)
	}
	connected, ok := r.Register(sid, SlotClient, "client:1")
	if !ok || !connected {
		t.Fatalf("expected peer-connected once both slots filled, got connected=%v ok=%v", connected, ok)
	}
}

func TestForwardRequiresExactSourceMatch(t *testing.T) {
	r := NewRegistry()
	sid := r.Allocate(uuid.New())
	r.Register(sid, SlotHost, "host:1")
	r.Register(sid, SlotClient, "client:1")

	dest, ok := r.Forward(sid, "host:1", 5)
	if !ok || dest != "client:1" {
		t.Fatalf("expected forward from host to client, got %v %v", dest, ok)
	}

	if _, ok := r.Forward(sid, "stranger:9", 5); ok {
		t.Fatal("expected forwarding from an unregistered endpoint to be rejected")
	}
}

func TestUnregisterDestroysEmptySession(t *testing.T) {
	r := NewRegistry()
	lobby := uuid.New()
	sid := r.Allocate(lobby)
	r.Register(sid, SlotHost, "host:1")

	slot, destroyed, ok := r.Unregister(sid, "host:1")
	if !ok || slot != SlotHost || !destroyed {
		t.Fatalf("expected host slot destroyed, got slot=%v destroyed=%v ok=%v", slot, destroyed, ok)
	}
	if _, ok := r.Forward(sid, "host:1", 1); ok {
		t.Fatal("expected forwarding against a destroyed session to fail")
	}
	// Re-allocating the same lobby should yield a fresh session id.
	if r.Allocate(lobby) == sid {
		t.Fatal("expected a new session id after the prior one was destroyed")
	}
}

func TestUnregisterKeepsSessionWithRemainingPeer(t *testing.T) {
	r := NewRegistry()
	sid := r.Allocate(uuid.New())
	r.Register(sid, SlotHost, "host:1")
	r.Register(sid, SlotClient, "client:1")

	_, destroyed, ok := r.Unregister(sid, "host:1")
	if !ok || destroyed {
		t.Fatal("expected session to survive with client slot still filled")
	}
}

func TestStatsCountsForwardedTraffic(t *testing.T) {
	r := NewRegistry()
	sid := r.Allocate(uuid.New())
	r.Register(sid, SlotHost, "host:1")
	r.Register(sid, SlotClient, "client:1")

	r.Forward(sid, "host:1", 10)
	r.Forward(sid, "client:1", 20)

	st := r.Stats()
	if st.ActiveSessions != 1 || st.PacketsRelayed != 2 || st.BytesRelayed != 30 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestGCDropsInactiveSessions(t *testing.T) {
	r := NewRegistry()
	sid := r.Allocate(uuid.New())
	r.Register(sid, SlotHost, "host:1")

	r.mu.Lock()
	r.sessions[sid].lastActivity = time.Now().Add(-InactivityTTL - time.Second)
	r.mu.Unlock()

	removed := r.GC(time.Now())
	if len(removed) != 1 || removed[0] != sid {
		t.Fatalf("expected GC to remove %v, got %v", sid, removed)
	}
}

func TestHandleFrameDropsShortFrames(t *testing.T) {
	l := &Listener{reg: NewRegistry()}
	sid := l.reg.Allocate(uuid.New())
	l.reg.Register(sid, SlotHost, "host:1")

	// One byte short of MinFrameSize must be silently dropped, not panic.
	short := make([]byte, MinFrameSize-1)
	l.handleFrame(short, "host:1", nil)
}
