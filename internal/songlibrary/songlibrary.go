// Package songlibrary intersects the per-player local song-hash libraries
// uploaded in chunks, tracking who has what and recomputing the shared set
// live as players join, upload, and leave. Chunk bookkeeping is modeled on
// internal/blob/store.go's first/final-chunk upload shape from the teacher
// pack, repurposed from opaque binary blobs to 20-byte song hashes.
package songlibrary

import (
	"sync"

	"github.com/google/uuid"
)

// HashSize is the width of one song-hash record.
const HashSize = 20

// Hash is one song's fixed-width content hash.
type Hash [HashSize]byte

// HashesPerChunk bounds how many hashes the server pushes per
// SharedSongsChunk packet.
const HashesPerChunk = 2048

// Event is one outcome of an upload or membership change.
type Event interface{ isLibraryEvent() }

type SharedSongsChanged struct{ Count int }
type SyncStateChanged struct{ Complete bool }

func (SharedSongsChanged) isLibraryEvent() {}
func (SyncStateChanged) isLibraryEvent()   {}

// Listener receives the events produced by one mutation.
type Listener func(events []Event)

// Intersector tracks one player's hash set per session and the live
// intersection across all of them.
type Intersector struct {
	mu        sync.Mutex
	libraries map[uuid.UUID]map[Hash]struct{}
	shared    []Hash
	listener  Listener
}

// New creates an empty intersector.
func New(listener Listener) *Intersector {
	if listener == nil {
		listener = func([]Event) {}
	}
	return &Intersector{
		libraries: make(map[uuid.UUID]map[Hash]struct{}),
		listener:  listener,
	}
}

// ApplyChunk ingests one upload chunk for sessionID. On isFirstChunk it
// clears any prior library for that session. Hashes are parsed as
// fixed-width HashSize records; a trailing partial record is ignored. On
// isFinalChunk the shared intersection is recomputed and SharedSongsChanged
// (and, if the pending set became empty, SyncStateChanged(true)) is
// emitted.
func (in *Intersector) ApplyChunk(sessionID uuid.UUID, raw []byte, isFirstChunk, isFinalChunk bool) {
	in.mu.Lock()
	if isFirstChunk || in.libraries[sessionID] == nil {
		in.libraries[sessionID] = make(map[Hash]struct{})
	}
	lib := in.libraries[sessionID]

	n := len(raw) / HashSize
	for i := 0; i < n; i++ {
		var h Hash
		copy(h[:], raw[i*HashSize:(i+1)*HashSize])
		lib[h] = struct{}{}
	}

	var events []Event
	if isFinalChunk {
		count := in.recomputeLocked()
		events = append(events, SharedSongsChanged{Count: count})
		if count == 0 {
			events = append(events, SyncStateChanged{Complete: true})
		}
	}
	in.mu.Unlock()

	if len(events) > 0 {
		in.listener(events)
	}
}

// RemovePlayer erases a session's library and recomputes the intersection.
func (in *Intersector) RemovePlayer(sessionID uuid.UUID) {
	in.mu.Lock()
	if _, ok := in.libraries[sessionID]; !ok {
		in.mu.Unlock()
		return
	}
	delete(in.libraries, sessionID)
	count := in.recomputeLocked()
	in.mu.Unlock()

	in.listener([]Event{SharedSongsChanged{Count: count}})
}

// recomputeLocked refreshes the cached intersection and returns its size.
// Must be called with in.mu held.
func (in *Intersector) recomputeLocked() int {
	in.shared = in.intersectLocked()
	return len(in.shared)
}

func (in *Intersector) intersectLocked() []Hash {
	if len(in.libraries) == 0 {
		return nil
	}
	var smallest map[Hash]struct{}
	for _, lib := range in.libraries {
		if smallest == nil || len(lib) < len(smallest) {
			smallest = lib
		}
	}

	out := make([]Hash, 0, len(smallest))
	for h := range smallest {
		inAll := true
		for sid, lib := range in.libraries {
			_ = sid
			if lib == nil {
				continue
			}
			if _, ok := lib[h]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, h)
		}
	}
	return out
}

// Shared returns a copy of the current shared-hash set.
func (in *Intersector) Shared() []Hash {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Hash(nil), in.shared...)
}

// Chunks splits the current shared set into HashesPerChunk-sized raw byte
// chunks, ready to send as SharedSongsChunk packets. The chunks carry no
// first/final tag: the first element is the first chunk and the last element
// the final one. An empty intersection still produces a single chunk of
// length 0.
func (in *Intersector) Chunks() [][]byte {
	in.mu.Lock()
	shared := append([]Hash(nil), in.shared...)
	in.mu.Unlock()

	if len(shared) == 0 {
		return [][]byte{{}}
	}

	var chunks [][]byte
	for i := 0; i < len(shared); i += HashesPerChunk {
		end := i + HashesPerChunk
		if end > len(shared) {
			end = len(shared)
		}
		buf := make([]byte, 0, (end-i)*HashSize)
		for _, h := range shared[i:end] {
			buf = append(buf, h[:]...)
		}
		chunks = append(chunks, buf)
	}
	return chunks
}
