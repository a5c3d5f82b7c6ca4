package songlibrary

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func hashBytes(tags ...byte) []byte {
	var buf bytes.Buffer
	for _, tag := range tags {
		buf.Write(bytes.Repeat([]byte{tag}, HashSize))
	}
	return buf.Bytes()
}

func TestIntersectionAcrossTwoPlayers(t *testing.T) {
	var events []Event
	in := New(func(e []Event) { events = append(events, e...) })

	s1 := uuid.New()
	s2 := uuid.New()

	in.ApplyChunk(s1, hashBytes(1, 2, 3), true, true)
	in.ApplyChunk(s2, hashBytes(2, 3, 4), true, true)

	shared := in.Shared()
	if len(shared) != 2 {
		t.Fatalf("expected intersection of size 2, got %d: %+v", len(shared), shared)
	}
}

func TestApplyChunkToleratesTrailingPartialRecord(t *testing.T) {
	in := New(nil)
	s1 := uuid.New()
	raw := append(hashBytes(1), 0xAA, 0xBB) // trailing 2 bytes, not a full record
	in.ApplyChunk(s1, raw, true, true)

	shared := in.Shared()
	if len(shared) != 1 {
		t.Fatalf("expected the partial trailing record to be ignored, got %+v", shared)
	}
}

func TestFirstChunkClearsPriorLibrary(t *testing.T) {
	in := New(nil)
	s1 := uuid.New()
	in.ApplyChunk(s1, hashBytes(1, 2), true, true)
	in.ApplyChunk(s1, hashBytes(9), true, true) // new upload, isFirstChunk again

	shared := in.Shared()
	if len(shared) != 1 {
		t.Fatalf("expected only the second upload's hash, got %+v", shared)
	}
}

func TestRemovePlayerRecomputesIntersection(t *testing.T) {
	in := New(nil)
	s1 := uuid.New()
	s2 := uuid.New()
	in.ApplyChunk(s1, hashBytes(1, 2), true, true)
	in.ApplyChunk(s2, hashBytes(2, 3), true, true)

	if len(in.Shared()) != 1 {
		t.Fatalf("expected intersection of size 1 before removal")
	}

	in.RemovePlayer(s2)
	shared := in.Shared()
	if len(shared) != 2 {
		t.Fatalf("expected remaining player's full library after removal, got %+v", shared)
	}
}

func TestEmptyIntersectionProducesSingleFinalEmptyChunk(t *testing.T) {
	in := New(nil)
	s1 := uuid.New()
	s2 := uuid.New()
	in.ApplyChunk(s1, hashBytes(1), true, true)
	in.ApplyChunk(s2, hashBytes(2), true, true)

	chunks := in.Chunks()
	if len(chunks) != 1 || len(chunks[0]) != 0 {
		t.Fatalf("expected a single empty chunk, got %+v", chunks)
	}
}

func TestChunksSplitAtHashesPerChunk(t *testing.T) {
	in := New(nil)
	s1 := uuid.New()
	var buf bytes.Buffer
	for i := 0; i < HashesPerChunk+10; i++ {
		buf.Write(bytes.Repeat([]byte{byte(i % 256), byte(i / 256)}, HashSize/2))
	}
	in.ApplyChunk(s1, buf.Bytes(), true, true)

	chunks := in.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks for %d hashes, got %d", HashesPerChunk+10, len(chunks))
	}
	if len(chunks[0])/HashSize != HashesPerChunk {
		t.Fatalf("expected first chunk to be full, got %d hashes", len(chunks[0])/HashSize)
	}
	if len(chunks[1])/HashSize != 10 {
		t.Fatalf("expected second chunk to hold the remaining 10 hashes, got %d", len(chunks[1])/HashSize)
	}
}
