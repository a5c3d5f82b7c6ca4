// Package scorereplay is the in-memory score/replay collector mentioned in
// spec.md §1 as part of the protocol core ("score/replay collector") and
// surfaced on the wire as packet ordinals replay-sync 40-42 and score
// 50-51. It is the same ring-buffer-and-finalize shape as recording.go's
// ChannelRecorder, repurposed from OGG/Opus audio bytes to replay frames
// and score results — there is no disk I/O here, persistence is out of
// scope.
package scorereplay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// frameCap bounds each session's replay ring buffer, per the expanded
// spec's "bounded per-session ring buffer (cap 256 frames)".
const frameCap = 256

// ReplayFrame is one recorded tick of gameplay-state payload for a session,
// kept only so a late-joining spectator or a reconnecting player can be
// replayed the tail of a song.
type ReplayFrame struct {
	SessionId  uuid.UUID
	SeqNum     uint32
	Payload    []byte
	RecordedAt time.Time
}

// ScoreResult is a finalized score for one player's session on one song.
type ScoreResult struct {
	SessionId  uuid.UUID
	SongHash   string
	Score      int64
	Stars      int
	RecordedAt time.Time
}

type sessionBuf struct {
	frames []ReplayFrame // ring buffer, oldest overwritten first
	next   int           // write cursor
	filled bool          // true once the ring has wrapped at least once
	seq    uint32
	scores []ScoreResult
}

// Collector accumulates replay frames and score results per session. One
// Collector instance serves an entire gameserver process, the same scope
// ChannelRecorder has over one voice channel.
type Collector struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionBuf
	now      func() time.Time
}

// New constructs an empty Collector.
func New() *Collector {
	return &Collector{
		sessions: make(map[uuid.UUID]*sessionBuf),
		now:      time.Now,
	}
}

func (c *Collector) bufFor(sessionID uuid.UUID) *sessionBuf {
	b, ok := c.sessions[sessionID]
	if !ok {
		b = &sessionBuf{frames: make([]ReplayFrame, frameCap)}
		c.sessions[sessionID] = b
	}
	return b
}

// FeedFrame records one gameplay-state payload into sessionID's ring
// buffer, overwriting the oldest frame once the buffer is full. Mirrors
// ChannelRecorder.FeedDatagram's "write and move on" shape, minus the OGG
// encoding.
func (c *Collector) FeedFrame(sessionID uuid.UUID, payload []byte) ReplayFrame {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bufFor(sessionID)
	frame := ReplayFrame{
		SessionId:  sessionID,
		SeqNum:     b.seq,
		Payload:    append([]byte(nil), payload...),
		RecordedAt: c.now(),
	}
	b.frames[b.next] = frame
	b.next = (b.next + 1) % frameCap
	if b.next == 0 {
		b.filled = true
	}
	b.seq++
	return frame
}

// Tail returns up to n of the most recently recorded frames for sessionID,
// oldest first, for replaying to a late-joining spectator or a reconnecting
// player. n is clamped to the ring's capacity.
func (c *Collector) Tail(sessionID uuid.UUID, n int) []ReplayFrame {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}
	count := b.next
	if b.filled {
		count = frameCap
	}
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}

	out := make([]ReplayFrame, n)
	// Walk backward from the most recently written slot, then reverse so
	// the result is oldest-first.
	idx := b.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + frameCap) % frameCap
		out[n-1-i] = b.frames[idx]
	}
	return out
}

// RecordScore appends a finalized score result for sessionID.
func (c *Collector) RecordScore(sessionID uuid.UUID, songHash string, score int64, stars int) ScoreResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bufFor(sessionID)
	result := ScoreResult{
		SessionId:  sessionID,
		SongHash:   songHash,
		Score:      score,
		Stars:      stars,
		RecordedAt: c.now(),
	}
	b.scores = append(b.scores, result)
	return result
}

// Scores returns every recorded score result for sessionID, in the order
// they were recorded.
func (c *Collector) Scores(sessionID uuid.UUID) []ScoreResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}
	return append([]ScoreResult(nil), b.scores...)
}

// Forget drops a session's buffered frames and scores, e.g. once a lobby
// tears down.
func (c *Collector) Forget(sessionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}
