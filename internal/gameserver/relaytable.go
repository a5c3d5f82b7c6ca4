package gameserver

import (
	"log"

	"github.com/google/uuid"

	"github.com/yarg-net/backplane/internal/scorereplay"
	"github.com/yarg-net/backplane/internal/wireproto"
)

// replayTailOnSeek bounds how many buffered frames a ReplaySeek request
// replays back to the requester in one batch.
const replayTailOnSeek = 64

// forwardToOthers lists the binary packet types relayed to every other
// authenticated client on the sender's reliable-sequenced channel.
var forwardToOthers = map[wireproto.PacketType]bool{
	wireproto.GameplayState:    true,
	wireproto.UnisonPhraseHit:  true,
	wireproto.ScoreResults:     true,
	wireproto.LobbyReadyState:  true,
	wireproto.PlayerPresetSync: true,
	wireproto.BandScoreUpdate:  true,
}

// broadcastToAll lists the binary packet types relayed to every
// authenticated client, including the sender.
var broadcastToAll = map[wireproto.PacketType]bool{
	wireproto.UnisonBonusAward: true,
}

// RelayTable forwards raw binary frames (as opposed to JSON envelopes,
// which the dispatcher routes to registered handlers instead). A frame
// whose packet type is in neither table, and isn't one of the replay-sync
// ordinals handled directly, is dropped.
//
// replay is optional: a nil replay disables replay-sync handling and those
// ordinals are simply dropped, same as any other unrecognized type.
type RelayTable struct {
	conns  *ConnectionManager
	replay *scorereplay.Collector
}

// NewRelayTable binds a RelayTable to the connection manager it forwards
// through.
func NewRelayTable(conns *ConnectionManager) *RelayTable {
	return &RelayTable{conns: conns}
}

// WithReplay enables replay-sync handling (ReplayFrame/ReplaySeek) against
// the given collector and returns the table for chaining.
func (t *RelayTable) WithReplay(c *scorereplay.Collector) *RelayTable {
	t.replay = c
	return t
}

// Forward inspects frame's leading packet-type ordinal and relays it
// according to the binary relay table. fromConnID identifies the sender so
// forwardToOthers packets are not echoed back to it, and so replay-sync
// frames are recorded/replayed against the right session.
func (t *RelayTable) Forward(fromConnID uuid.UUID, frame []byte) {
	pt, ok := wireproto.ReadPacketType(frame)
	if !ok {
		return
	}
	switch {
	case forwardToOthers[pt]:
		if pt == wireproto.GameplayState && t.replay != nil {
			t.replay.FeedFrame(fromConnID, frame[1:])
		}
		if pt == wireproto.ScoreResults && t.replay != nil {
			t.recordScoreResult(fromConnID, frame[1:])
		}
		t.conns.ToAllExcept(fromConnID, frame, ReliableOrdered)
	case broadcastToAll[pt]:
		t.conns.ToAll(frame, ReliableOrdered)
	case pt == wireproto.ReplayFrame:
		if t.replay != nil {
			t.replay.FeedFrame(fromConnID, frame[1:])
		}
	case pt == wireproto.ReplaySeek:
		t.handleReplaySeek(fromConnID)
	}
}

// recordScoreResult decodes a ScoreResults frame's body and files it into the
// sender's replay collector. The binary packet carries no song identifier or
// star rating (those live in the higher-level setlist/songlibrary state, not
// in this fixed-width wire struct), so songHash is recorded empty and stars
// is derived from accuracy with the same rough tiering rhythm games commonly
// use for a post-song star count.
func (t *RelayTable) recordScoreResult(fromConnID uuid.UUID, body []byte) {
	p, err := wireproto.ParseScoreResults(body)
	if err != nil {
		return
	}
	t.replay.RecordScore(fromConnID, "", int64(p.Score), starsFromAccuracy(p.Accuracy))
}

// starsFromAccuracy buckets a 0.0-1.0 accuracy into a 0-5 star count.
func starsFromAccuracy(accuracy float32) int {
	switch {
	case accuracy >= 1.0:
		return 5
	case accuracy >= 0.95:
		return 4
	case accuracy >= 0.85:
		return 3
	case accuracy >= 0.70:
		return 2
	case accuracy >= 0.50:
		return 1
	default:
		return 0
	}
}

// handleReplaySeek replays the requester's own buffered tail back to them,
// each frame re-wrapped as a GameplayState packet so the receiving client's
// normal gameplay-state handling applies unchanged.
func (t *RelayTable) handleReplaySeek(fromConnID uuid.UUID) {
	if t.replay == nil {
		return
	}
	conn, ok := t.conns.ByConnection(fromConnID)
	if !ok {
		return
	}
	for _, f := range t.replay.Tail(fromConnID, replayTailOnSeek) {
		// Re-wrap as a plain GameplayState frame, matching the exact
		// [type:1][payload...] shape forwardToOthers relays live, so the
		// receiving client's ordinary gameplay-state handling applies
		// unchanged to replayed frames.
		out := make([]byte, 1+len(f.Payload))
		out[0] = byte(wireproto.GameplayState)
		copy(out[1:], f.Payload)
		if err := conn.Send(out, ReliableOrdered); err != nil {
			log.Printf("[gameserver] replay seek send to %s: %v", fromConnID, err)
			return
		}
	}
}
