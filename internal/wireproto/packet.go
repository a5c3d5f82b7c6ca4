package wireproto

import (
	"fmt"

	"github.com/google/uuid"
)

// HeartbeatPacket is the periodic keepalive sent on the connection's
// reliable channel; it carries no payload beyond its ordinal.
type HeartbeatPacket struct{}

func BuildHeartbeat() []byte {
	return NewWriter(Heartbeat).Bytes()
}

func ParseHeartbeat(body []byte) (HeartbeatPacket, error) {
	return HeartbeatPacket{}, nil
}

// HostDisconnectPacket announces that the lobby host has dropped and, when
// set, who the new host is.
type HostDisconnectPacket struct {
	FormerHostId uuid.UUID
	NewHostId    uuid.UUID
	HasNewHost   bool
}

func BuildHostDisconnect(p HostDisconnectPacket) []byte {
	w := NewWriter(HostDisconnect)
	w.PutGUID(p.FormerHostId)
	w.PutBool(p.HasNewHost)
	if p.HasNewHost {
		w.PutGUID(p.NewHostId)
	}
	return w.Bytes()
}

func ParseHostDisconnect(body []byte) (HostDisconnectPacket, error) {
	r := NewReader(body)
	var p HostDisconnectPacket
	var err error
	if p.FormerHostId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.HasNewHost, err = r.Bool(); err != nil {
		return p, err
	}
	if p.HasNewHost {
		if p.NewHostId, err = r.GUID(); err != nil {
			return p, err
		}
	}
	return p, nil
}

// GameplayStatePacket is the per-frame input/position update a client sends
// while a song is playing, relayed verbatim to the rest of the band.
type GameplayStatePacket struct {
	PlayerId     uuid.UUID
	SongTimeSecs float64
	TrackMask    uint32
	LaneState    uint32
	Streak       uint32
}

func BuildGameplayState(p GameplayStatePacket) []byte {
	w := NewWriter(GameplayState)
	w.PutGUID(p.PlayerId)
	w.PutFloat64(p.SongTimeSecs)
	w.PutUint32(p.TrackMask)
	w.PutUint32(p.LaneState)
	w.PutUint32(p.Streak)
	return w.Bytes()
}

func ParseGameplayState(body []byte) (GameplayStatePacket, error) {
	r := NewReader(body)
	var p GameplayStatePacket
	var err error
	if p.PlayerId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.SongTimeSecs, err = r.Float64(); err != nil {
		return p, err
	}
	if p.TrackMask, err = r.Uint32(); err != nil {
		return p, err
	}
	if p.LaneState, err = r.Uint32(); err != nil {
		return p, err
	}
	if p.Streak, err = r.Uint32(); err != nil {
		return p, err
	}
	return p, nil
}

// SharedLibraryUploadChunkPacket carries one chunk of a client's local song
// hash list (20-byte hashes, concatenated) uploaded into the shared-library
// intersector. Final marks the last chunk of the upload.
type SharedLibraryUploadChunkPacket struct {
	SessionId uuid.UUID
	Sequence  uint16
	Final     bool
	Hashes    []byte // multiple of 20 bytes; a trailing partial record is tolerated
}

func BuildSharedLibraryUploadChunk(p SharedLibraryUploadChunkPacket) []byte {
	w := NewWriter(SharedLibraryUploadChunk)
	w.PutGUID(p.SessionId)
	w.PutUint16(p.Sequence)
	w.PutBool(p.Final)
	w.PutBytes(p.Hashes)
	return w.Bytes()
}

func ParseSharedLibraryUploadChunk(body []byte) (SharedLibraryUploadChunkPacket, error) {
	r := NewReader(body)
	var p SharedLibraryUploadChunkPacket
	var err error
	if p.SessionId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.Sequence, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.Final, err = r.Bool(); err != nil {
		return p, err
	}
	if p.Hashes, err = r.Bytes(); err != nil {
		return p, err
	}
	return p, nil
}

// UnisonPhraseHitPacket reports that a player completed a unison phrase
// window; the coordinator buckets these by (bandId, phraseKey).
type UnisonPhraseHitPacket struct {
	BandId     uuid.UUID
	PlayerId   uuid.UUID
	PhraseTime float64
}

func BuildUnisonPhraseHit(p UnisonPhraseHitPacket) []byte {
	w := NewWriter(UnisonPhraseHit)
	w.PutGUID(p.BandId)
	w.PutGUID(p.PlayerId)
	w.PutFloat64(p.PhraseTime)
	return w.Bytes()
}

func ParseUnisonPhraseHit(body []byte) (UnisonPhraseHitPacket, error) {
	r := NewReader(body)
	var p UnisonPhraseHitPacket
	var err error
	if p.BandId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.PlayerId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.PhraseTime, err = r.Float64(); err != nil {
		return p, err
	}
	return p, nil
}

// ScoreResultsPacket reports one player's final tally for a song.
type ScoreResultsPacket struct {
	PlayerId   uuid.UUID
	Score      uint32
	MaxStreak  uint32
	Accuracy   float32
	FullCombo  bool
}

func BuildScoreResults(p ScoreResultsPacket) []byte {
	w := NewWriter(ScoreResults)
	w.PutGUID(p.PlayerId)
	w.PutUint32(p.Score)
	w.PutUint32(p.MaxStreak)
	w.PutFloat32(p.Accuracy)
	w.PutBool(p.FullCombo)
	return w.Bytes()
}

func ParseScoreResults(body []byte) (ScoreResultsPacket, error) {
	r := NewReader(body)
	var p ScoreResultsPacket
	var err error
	if p.PlayerId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.Score, err = r.Uint32(); err != nil {
		return p, err
	}
	if p.MaxStreak, err = r.Uint32(); err != nil {
		return p, err
	}
	if p.Accuracy, err = r.Float32(); err != nil {
		return p, err
	}
	if p.FullCombo, err = r.Bool(); err != nil {
		return p, err
	}
	return p, nil
}

// PlayerPresetSyncPacket shares a player's instrument/difficulty preset with
// the rest of the lobby so remote clients can render the right track.
type PlayerPresetSyncPacket struct {
	PlayerId   uuid.UUID
	Instrument string
	Difficulty uint8
}

func BuildPlayerPresetSync(p PlayerPresetSyncPacket) []byte {
	w := NewWriter(PlayerPresetSync)
	w.PutGUID(p.PlayerId)
	w.PutString(p.Instrument)
	w.PutUint8(p.Difficulty)
	return w.Bytes()
}

func ParsePlayerPresetSync(body []byte) (PlayerPresetSyncPacket, error) {
	r := NewReader(body)
	var p PlayerPresetSyncPacket
	var err error
	if p.PlayerId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.Instrument, err = r.String(); err != nil {
		return p, err
	}
	if p.Difficulty, err = r.Uint8(); err != nil {
		return p, err
	}
	return p, nil
}

// BandScoreUpdatePacket is the server-computed aggregate score for the whole
// band, pushed after each player's contribution changes.
type BandScoreUpdatePacket struct {
	BandId      uuid.UUID
	TotalScore  uint32
	UnisonBonus uint32
}

func BuildBandScoreUpdate(p BandScoreUpdatePacket) []byte {
	w := NewWriter(BandScoreUpdate)
	w.PutGUID(p.BandId)
	w.PutUint32(p.TotalScore)
	w.PutUint32(p.UnisonBonus)
	return w.Bytes()
}

func ParseBandScoreUpdate(body []byte) (BandScoreUpdatePacket, error) {
	r := NewReader(body)
	var p BandScoreUpdatePacket
	var err error
	if p.BandId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.TotalScore, err = r.Uint32(); err != nil {
		return p, err
	}
	if p.UnisonBonus, err = r.Uint32(); err != nil {
		return p, err
	}
	return p, nil
}

// ReplayFramePacket is one recorded input frame pushed to the replay/spectate
// ring buffer.
type ReplayFramePacket struct {
	PlayerId     uuid.UUID
	SongTimeSecs float64
	InputMask    uint32
}

func BuildReplayFrame(p ReplayFramePacket) []byte {
	w := NewWriter(ReplayFrame)
	w.PutGUID(p.PlayerId)
	w.PutFloat64(p.SongTimeSecs)
	w.PutUint32(p.InputMask)
	return w.Bytes()
}

func ParseReplayFrame(body []byte) (ReplayFramePacket, error) {
	r := NewReader(body)
	var p ReplayFramePacket
	var err error
	if p.PlayerId, err = r.GUID(); err != nil {
		return p, err
	}
	if p.SongTimeSecs, err = r.Float64(); err != nil {
		return p, err
	}
	if p.InputMask, err = r.Uint32(); err != nil {
		return p, err
	}
	return p, nil
}

// ParseError wraps a body too short or otherwise malformed for its declared
// PacketType, keeping the offending ordinal attached for logging.
type ParseError struct {
	Type PacketType
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wireproto: parse %s: %v", e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
