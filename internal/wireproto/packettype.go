// Package wireproto implements the two framings the game protocol speaks on
// one channel: a JSON envelope for control/lobby traffic and a big-endian
// binary framing for hot-path gameplay and large blobs. The first byte on
// the wire tells them apart — '{' (0x7B) or '[' (0x5B) is always JSON,
// any other byte is read as a binary PacketType ordinal.
package wireproto

// PacketType is the one-byte ordinal that opens every binary packet and
// labels every JSON envelope. Ordinals are stable across protocol versions;
// the assigned ones (1..61) all sit below the two bytes that open a JSON
// envelope ('[' = 0x5B = 91, '{' = 0x7B = 123).
type PacketType uint8

const (
	// Handshake (1-2)
	HandshakeRequest  PacketType = 1
	HandshakeResponse PacketType = 2

	// Heartbeat (3), host-disconnect (4)
	Heartbeat      PacketType = 3
	HostDisconnect PacketType = 4

	// Auth (5-6) — richer binary handshake carrying a persistent PlayerId.
	IdentityAuthRequest  PacketType = 5
	IdentityAuthResponse PacketType = 6

	// Lobby (10-16)
	LobbyState         PacketType = 10
	CountdownStarted   PacketType = 11
	CountdownCancelled PacketType = 12
	GameplayCountdown  PacketType = 13
	LobbyReadyState    PacketType = 14
	PlayerRoleChanged  PacketType = 15
	GameplayStart      PacketType = 16

	// Song / setlist (20-27)
	SongSelectionChanged     PacketType = 20
	SetlistSynced            PacketType = 21
	SharedLibraryUploadChunk PacketType = 22
	SharedSongsChunk         PacketType = 23
	SharedSongsChanged       PacketType = 24
	SyncStateChanged         PacketType = 25
	SetlistSongAdded         PacketType = 26
	SetlistSongRemoved       PacketType = 27

	// Gameplay (30-39)
	GameplayState    PacketType = 30
	PlayerPresetSync PacketType = 31
	BandScoreUpdate  PacketType = 32

	// Replay sync (40-42)
	ReplayFrame PacketType = 40
	ReplaySeek  PacketType = 41
	ReplayAck   PacketType = 42

	// Score (50-51)
	ScoreResults PacketType = 50
	ScoreSummary PacketType = 51

	// Unison (60-61)
	UnisonPhraseHit   PacketType = 60
	UnisonBonusAward  PacketType = 61
)

// maxBinaryOrdinal is the top of the PacketType ordinal range. Nothing checks
// incoming bytes against it, and the range 1..99 includes '[' (91), so only
// ordinals below 91 cannot be mistaken for the start of a JSON envelope.
const maxBinaryOrdinal = 99

// names maps ordinals to their case-insensitive enum name, used for the
// JSON envelope's string `type` field and for log messages.
var names = map[PacketType]string{
	HandshakeRequest:         "HandshakeRequest",
	HandshakeResponse:        "HandshakeResponse",
	Heartbeat:                "Heartbeat",
	HostDisconnect:           "HostDisconnect",
	IdentityAuthRequest:      "IdentityAuthRequest",
	IdentityAuthResponse:     "IdentityAuthResponse",
	LobbyState:               "LobbyState",
	CountdownStarted:         "CountdownStarted",
	CountdownCancelled:       "CountdownCancelled",
	GameplayCountdown:        "GameplayCountdown",
	LobbyReadyState:          "LobbyReadyState",
	PlayerRoleChanged:        "PlayerRoleChanged",
	GameplayStart:            "GameplayStart",
	SongSelectionChanged:     "SongSelectionChanged",
	SetlistSynced:            "SetlistSynced",
	SharedLibraryUploadChunk: "SharedLibraryUploadChunk",
	SharedSongsChunk:         "SharedSongsChunk",
	SharedSongsChanged:       "SharedSongsChanged",
	SyncStateChanged:         "SyncStateChanged",
	SetlistSongAdded:         "SetlistSongAdded",
	SetlistSongRemoved:       "SetlistSongRemoved",
	GameplayState:            "GameplayState",
	PlayerPresetSync:         "PlayerPresetSync",
	BandScoreUpdate:          "BandScoreUpdate",
	ReplayFrame:              "ReplayFrame",
	ReplaySeek:               "ReplaySeek",
	ReplayAck:                "ReplayAck",
	ScoreResults:             "ScoreResults",
	ScoreSummary:             "ScoreSummary",
	UnisonPhraseHit:          "UnisonPhraseHit",
	UnisonBonusAward:         "UnisonBonusAward",
}

var byName map[string]PacketType

func init() {
	byName = make(map[string]PacketType, len(names))
	for t, n := range names {
		byName[lower(n)] = t
	}
}

// String returns the enum name, or a numeric fallback for unknown ordinals.
func (t PacketType) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return "Unknown(" + itoa(uint8(t)) + ")"
}

// LookupName resolves a case-insensitive enum name to its PacketType.
func LookupName(name string) (PacketType, bool) {
	t, ok := byName[lower(name)]
	return t, ok
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func itoa(n uint8) string {
	if n == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
