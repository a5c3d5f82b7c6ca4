package handshake

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yarg-net/backplane/internal/session"
)

func newValidator() *Validator {
	return &Validator{
		ExpectedVersion: "1.0.0",
		Sessions:        session.New(0),
	}
}

func TestValidateRejectsWrongVersion(t *testing.T) {
	v := newValidator()
	resp, rec := v.Validate(uuid.New(), Request{ClientVersion: "0.9.0", PlayerName: "alice"})
	if resp.Accepted || rec != nil {
		t.Fatalf("expected rejection for version mismatch, got %+v", resp)
	}
	want := "Protocol mismatch. Server requires 1.0.0."
	if resp.Reason != want {
		t.Fatalf("Reason = %q, want %q", resp.Reason, want)
	}
}

func TestValidateRejectsNameOutOfBounds(t *testing.T) {
	v := newValidator()
	resp, _ := v.Validate(uuid.New(), Request{ClientVersion: "1.0.0", PlayerName: "a"})
	if resp.Accepted {
		t.Fatal("expected rejection for too-short name")
	}
}

func TestValidateRejectsNonPrintableName(t *testing.T) {
	v := newValidator()
	resp, _ := v.Validate(uuid.New(), Request{ClientVersion: "1.0.0", PlayerName: "bad\x01name"})
	if resp.Accepted {
		t.Fatal("expected rejection for non-printable-ASCII name")
	}
}

func TestValidateRejectsPredicateFailure(t *testing.T) {
	v := newValidator()
	v.NamePredicate = func(name string) bool { return name != "banned" }
	resp, _ := v.Validate(uuid.New(), Request{ClientVersion: "1.0.0", PlayerName: "banned"})
	if resp.Accepted {
		t.Fatal("expected rejection from the name predicate")
	}
}

func TestValidateRejectsWrongPassword(t *testing.T) {
	v := newValidator()
	v.Password = "secret"
	resp, _ := v.Validate(uuid.New(), Request{ClientVersion: "1.0.0", PlayerName: "alice", Password: "wrong"})
	if resp.Accepted {
		t.Fatal("expected rejection for wrong password")
	}
}

func TestValidateAcceptsAndCreatesSession(t *testing.T) {
	v := newValidator()
	v.Password = "secret"
	conn := uuid.New()
	resp, rec := v.Validate(conn, Request{ClientVersion: "1.0.0", PlayerName: "  alice  ", Password: "secret"})
	if !resp.Accepted || rec == nil {
		t.Fatalf("expected acceptance, got %+v", resp)
	}
	if rec.PlayerName != "alice" {
		t.Fatalf("expected trimmed name persisted, got %q", rec.PlayerName)
	}
	if resp.SessionID != rec.SessionID {
		t.Fatalf("response SessionID %v != record SessionID %v", resp.SessionID, rec.SessionID)
	}
}

func TestValidateRejectsDuplicateConnection(t *testing.T) {
	v := newValidator()
	conn := uuid.New()
	if resp, _ := v.Validate(conn, Request{ClientVersion: "1.0.0", PlayerName: "alice"}); !resp.Accepted {
		t.Fatalf("expected first handshake to accept, got %+v", resp)
	}
	resp, rec := v.Validate(conn, Request{ClientVersion: "1.0.0", PlayerName: "alice-again"})
	if resp.Accepted || rec != nil {
		t.Fatal("expected second handshake on the same connection to fail session creation")
	}
}
