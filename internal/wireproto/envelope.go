package wireproto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the wire protocol version stamped onto outgoing
// envelopes whose Envelope.Version is left blank.
const ProtocolVersion = "yarg-net/1"

// Envelope is the JSON framing used for control/lobby traffic:
// {type, payload, version} on the wire. Type accepts either a string
// (case-insensitive enum name) or a numeric ordinal; Payload carries the
// type-specific body as raw JSON so callers can unmarshal it into their own
// struct once the type is known; Version is the protocol string a
// cross-language peer uses to detect a mismatch before the handshake even
// runs.
type Envelope struct {
	Type    PacketType
	Payload json.RawMessage
	Version string
}

// wireEnvelope mirrors the JSON shape on the wire. Type is left as
// json.RawMessage so UnmarshalJSON can accept either a quoted name or a bare
// number before resolving it to a PacketType.
type wireEnvelope struct {
	Type    json.RawMessage `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Version string          `json:"version,omitempty"`
}

// Serialize encodes an envelope using the string form of its type, which is
// the canonical form this package emits (inbound peers may still send
// numeric types; see Deserialize). A blank Version is stamped with
// ProtocolVersion.
func Serialize(e Envelope) ([]byte, error) {
	name, err := json.Marshal(e.Type.String())
	if err != nil {
		return nil, err
	}
	version := e.Version
	if version == "" {
		version = ProtocolVersion
	}
	w := wireEnvelope{Type: name, Payload: e.Payload, Version: version}
	return json.Marshal(w)
}

// Deserialize decodes a JSON envelope, resolving `type` whether it arrived
// as a quoted enum name or a bare numeric ordinal. A missing or unresolvable
// type is a decode failure.
func Deserialize(raw []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(w.Type) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}

	t, err := resolveType(w.Type)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{Type: t, Payload: w.Payload, Version: w.Version}, nil
}

func resolveType(raw json.RawMessage) (PacketType, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("decode envelope: empty type")
	}

	if trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return 0, fmt.Errorf("decode envelope: invalid type string: %w", err)
		}
		t, ok := LookupName(name)
		if !ok {
			return 0, fmt.Errorf("decode envelope: unknown type %q", name)
		}
		return t, nil
	}

	var ord int
	if err := json.Unmarshal(trimmed, &ord); err != nil {
		return 0, fmt.Errorf("decode envelope: invalid type ordinal: %w", err)
	}
	if ord < 0 || ord > 255 {
		return 0, fmt.Errorf("decode envelope: type ordinal %d out of range", ord)
	}
	return PacketType(ord), nil
}

// IsJSONEnvelope reports whether the first byte of a frame marks it as JSON
// rather than binary. Binary PacketType ordinals never overlap these bytes.
func IsJSONEnvelope(firstByte byte) bool {
	return firstByte == '{' || firstByte == '['
}
