// Package unison accounts for per-band "unison phrase" completions: every
// band member must land a coordinated hit within the same 0.1s-bucketed
// phrase window to earn the band's bonus, awarded exactly once per window.
package unison

import (
	"math"
	"sync"

	"github.com/google/uuid"
)

// bucketWidth is the phrase-time quantization used to key phrase windows.
const bucketWidth = 0.1

// phraseKey identifies one band's phrase window.
type phraseKey struct {
	bandID uuid.UUID
	bucket int64
}

func bucketOf(phraseTime float64) int64 {
	return int64(math.Round(phraseTime / bucketWidth))
}

// Coordinator tracks phrase-hit completion sets per band and which phrase
// windows have already been awarded.
type Coordinator struct {
	mu             sync.Mutex
	expectedCount  map[uuid.UUID]int // per band; band uuid.Nil is the global default
	hits           map[phraseKey]map[uuid.UUID]struct{}
	awarded        map[phraseKey]struct{}
}

// New creates an empty coordinator. defaultExpected is the expected player
// count applied to band uuid.Nil (the global default).
func New(defaultExpected int) *Coordinator {
	c := &Coordinator{
		expectedCount: make(map[uuid.UUID]int),
		hits:          make(map[phraseKey]map[uuid.UUID]struct{}),
		awarded:       make(map[phraseKey]struct{}),
	}
	c.expectedCount[uuid.Nil] = defaultExpected
	return c
}

// SetExpectedCount records how many players must complete a phrase for
// bandID's award to trigger. Called at gameplay start.
func (c *Coordinator) SetExpectedCount(bandID uuid.UUID, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expectedCount[bandID] = count
}

// RecordPhraseHit adds playerID to bandID's completion set for the phrase
// window containing phraseTime (phraseEndTime is accepted for parity with
// the wire contract but the bucket is derived from phraseTime alone). It
// returns true the first time the window's completion set reaches the
// band's expected count — a second hit against an already-awarded window
// returns false.
func (c *Coordinator) RecordPhraseHit(playerKey, bandID uuid.UUID, phraseTime, phraseEndTime float64) bool {
	key := phraseKey{bandID: bandID, bucket: bucketOf(phraseTime)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, already := c.awarded[key]; already {
		return false
	}

	set, ok := c.hits[key]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		c.hits[key] = set
	}
	set[playerKey] = struct{}{}

	expected, ok := c.expectedCount[bandID]
	if !ok {
		expected = c.expectedCount[uuid.Nil]
	}
	if expected <= 0 || len(set) < expected {
		return false
	}

	c.awarded[key] = struct{}{}
	return true
}

// Reset clears all phrase-hit and award state but keeps per-band expected
// counts, for starting the next song in the same lobby.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = make(map[phraseKey]map[uuid.UUID]struct{})
	c.awarded = make(map[phraseKey]struct{})
}

// FullReset clears phrase-hit/award state and all per-band expected counts,
// for lobby teardown.
func (c *Coordinator) FullReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	def := c.expectedCount[uuid.Nil]
	c.expectedCount = map[uuid.UUID]int{uuid.Nil: def}
	c.hits = make(map[phraseKey]map[uuid.UUID]struct{})
	c.awarded = make(map[phraseKey]struct{})
}
