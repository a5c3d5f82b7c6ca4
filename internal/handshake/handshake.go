// Package handshake validates the initial HandshakeRequest/HandshakeResponse
// exchange and binds the connection to a new session on success. Validation
// order mirrors a single first-failure-wins chain, the same "trim, check
// bounds, reject" shape as channel_state.go's Add.
package handshake

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yarg-net/backplane/internal/session"
)

const (
	MinPlayerNameLength = 2
	MaxPlayerNameLength = 32
)

// Request is a decoded HandshakeRequest.
type Request struct {
	ClientVersion string
	PlayerName    string
	Password      string
}

// Response is the outcome to send back to the connecting client.
type Response struct {
	Accepted  bool
	Reason    string
	SessionID uuid.UUID
}

// NamePredicate optionally vets a trimmed player name beyond length/charset
// checks (e.g. a profanity filter). A nil predicate always accepts.
type NamePredicate func(name string) bool

// Validator runs the four-step handshake validation chain against a
// configured expected protocol version and (optional) password.
type Validator struct {
	ExpectedVersion string
	Password        string // empty means no password required
	NamePredicate   NamePredicate
	Sessions        *session.Manager
}

// Validate runs req through the validation chain for connID, returning the
// response to send and, on success, the created session record.
func (v *Validator) Validate(connID uuid.UUID, req Request) (Response, *session.Record) {
	if req.ClientVersion != v.ExpectedVersion {
		return Response{Reason: fmt.Sprintf("Protocol mismatch. Server requires %s.", v.ExpectedVersion)}, nil
	}

	name := strings.TrimSpace(req.PlayerName)
	if len(name) < MinPlayerNameLength || len(name) > MaxPlayerNameLength {
		return Response{Reason: "player name out of bounds"}, nil
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7E {
			return Response{Reason: "player name must be printable ASCII"}, nil
		}
	}
	if v.NamePredicate != nil && !v.NamePredicate(name) {
		return Response{Reason: "player name rejected"}, nil
	}

	if v.Password != "" && req.Password != v.Password {
		return Response{Reason: "invalid password"}, nil
	}

	sid, err := v.Sessions.TryCreateSession(connID, name)
	if err != nil {
		return Response{Reason: err.Error()}, nil
	}

	rec, _ := v.Sessions.Lookup(sid)
	return Response{Accepted: true, SessionID: sid}, &rec
}

// Identity is one local profile in the richer binary handshake variant: a
// persistent PlayerId plus a display name. IdentityRequest carries the list
// of them offered over one transport connection.
type Identity struct {
	PlayerID    uuid.UUID
	DisplayName string
}

// IdentityRequest is the binary handshake variant carrying multiple local
// identities over one transport connection.
type IdentityRequest struct {
	ClientVersion string
	Identities    []Identity
}
