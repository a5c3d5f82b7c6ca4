package unison

import (
	"testing"

	"github.com/google/uuid"
)

func TestRecordPhraseHitAwardsOnceCompletionSetReachesExpected(t *testing.T) {
	c := New(0)
	band := uuid.New()
	c.SetExpectedCount(band, 2)

	p1, p2 := uuid.New(), uuid.New()
	if c.RecordPhraseHit(p1, band, 10.0, 10.5) {
		t.Fatal("expected no award with only 1 of 2 players hit")
	}
	if !c.RecordPhraseHit(p2, band, 10.02, 10.5) {
		t.Fatal("expected award once the 2nd player completes the same bucket")
	}
}

func TestRecordPhraseHitIsIdempotentAfterAward(t *testing.T) {
	c := New(0)
	band := uuid.New()
	c.SetExpectedCount(band, 1)
	p1 := uuid.New()

	if !c.RecordPhraseHit(p1, band, 5.0, 5.5) {
		t.Fatal("expected first hit to award immediately with expected=1")
	}
	if c.RecordPhraseHit(p1, band, 5.0, 5.5) {
		t.Fatal("expected second hit against an already-awarded window to return false")
	}
}

func TestPhraseTimeBucketingQuantizesToPointOneSeconds(t *testing.T) {
	c := New(0)
	band := uuid.New()
	c.SetExpectedCount(band, 2)
	p1, p2 := uuid.New(), uuid.New()

	c.RecordPhraseHit(p1, band, 10.01, 10.5)
	if !c.RecordPhraseHit(p2, band, 10.04, 10.5) {
		t.Fatal("expected hits within the same 0.1s bucket to count together")
	}
}

func TestDistinctBucketsDoNotShareCompletionSets(t *testing.T) {
	c := New(0)
	band := uuid.New()
	c.SetExpectedCount(band, 2)
	p1, p2 := uuid.New(), uuid.New()

	c.RecordPhraseHit(p1, band, 10.0, 10.5)
	if c.RecordPhraseHit(p2, band, 20.0, 20.5) {
		t.Fatal("expected a hit in a different bucket not to trigger an award")
	}
}

func TestGlobalDefaultAppliesToNilBand(t *testing.T) {
	c := New(2)
	p1, p2 := uuid.New(), uuid.New()

	c.RecordPhraseHit(p1, uuid.Nil, 1.0, 1.5)
	if !c.RecordPhraseHit(p2, uuid.Nil, 1.0, 1.5) {
		t.Fatal("expected band uuid.Nil to use the global default expected count")
	}
}

func TestResetKeepsExpectedCounts(t *testing.T) {
	c := New(0)
	band := uuid.New()
	c.SetExpectedCount(band, 1)
	p1 := uuid.New()
	c.RecordPhraseHit(p1, band, 1.0, 1.5)

	c.Reset()
	if !c.RecordPhraseHit(p1, band, 1.0, 1.5) {
		t.Fatal("expected Reset to clear award state while keeping expected count at 1")
	}
}

func TestFullResetClearsExpectedCounts(t *testing.T) {
	c := New(0)
	band := uuid.New()
	c.SetExpectedCount(band, 1)
	c.FullReset()

	p1, p2 := uuid.New(), uuid.New()
	if c.RecordPhraseHit(p1, band, 1.0, 1.5) {
		t.Fatal("expected FullReset to drop the expected count back to the default (0)")
	}
	_ = p2
}
