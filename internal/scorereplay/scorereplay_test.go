package scorereplay

import (
	"testing"

	"github.com/google/uuid"
)

func TestFeedFrameAssignsIncreasingSeqNums(t *testing.T) {
	c := New()
	sessionID := uuid.New()

	f0 := c.FeedFrame(sessionID, []byte("a"))
	f1 := c.FeedFrame(sessionID, []byte("b"))

	if f0.SeqNum != 0 || f1.SeqNum != 1 {
		t.Fatalf("expected seq nums 0,1, got %d,%d", f0.SeqNum, f1.SeqNum)
	}
}

func TestTailReturnsOldestFirstWithinCapacity(t *testing.T) {
	c := New()
	sessionID := uuid.New()

	for i := 0; i < 5; i++ {
		c.FeedFrame(sessionID, []byte{byte(i)})
	}

	tail := c.Tail(sessionID, 3)
	if len(tail) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(tail))
	}
	for i, frame := range tail {
		want := byte(2 + i) // frames 2,3,4 are the 3 most recent, oldest first
		if frame.Payload[0] != want {
			t.Fatalf("tail[%d] payload = %d, want %d", i, frame.Payload[0], want)
		}
	}
}

func TestTailWrapsAroundRingCapacity(t *testing.T) {
	c := New()
	sessionID := uuid.New()

	for i := 0; i < frameCap+10; i++ {
		c.FeedFrame(sessionID, []byte{byte(i % 256)})
	}

	tail := c.Tail(sessionID, frameCap)
	if len(tail) != frameCap {
		t.Fatalf("expected a full ring of %d frames, got %d", frameCap, len(tail))
	}
	// The oldest surviving frame should be seq 10 (frames 0-9 were overwritten).
	if tail[0].SeqNum != 10 {
		t.Fatalf("oldest surviving frame seq = %d, want 10", tail[0].SeqNum)
	}
	if tail[len(tail)-1].SeqNum != uint32(frameCap+9) {
		t.Fatalf("newest frame seq = %d, want %d", tail[len(tail)-1].SeqNum, frameCap+9)
	}
}

func TestTailOnUnknownSessionReturnsNil(t *testing.T) {
	c := New()
	if tail := c.Tail(uuid.New(), 10); tail != nil {
		t.Fatalf("expected nil tail for unknown session, got %v", tail)
	}
}

func TestRecordScoreAccumulatesPerSession(t *testing.T) {
	c := New()
	sessionID := uuid.New()

	c.RecordScore(sessionID, "songhash-1", 1000, 3)
	c.RecordScore(sessionID, "songhash-1", 1500, 4)

	scores := c.Scores(sessionID)
	if len(scores) != 2 {
		t.Fatalf("expected 2 recorded scores, got %d", len(scores))
	}
	if scores[1].Score != 1500 || scores[1].Stars != 4 {
		t.Fatalf("unexpected second score: %+v", scores[1])
	}
}

func TestForgetDropsSessionState(t *testing.T) {
	c := New()
	sessionID := uuid.New()
	c.FeedFrame(sessionID, []byte("x"))
	c.RecordScore(sessionID, "song", 1, 1)

	c.Forget(sessionID)

	if tail := c.Tail(sessionID, 10); tail != nil {
		t.Fatal("expected frames to be forgotten")
	}
	if scores := c.Scores(sessionID); scores != nil {
		t.Fatal("expected scores to be forgotten")
	}
}
