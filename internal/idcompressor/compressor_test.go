package idcompressor_test

import (
	"errors"
	"testing"

	"github.com/arkose-id/idalloc/internal/idcompressor"
	"github.com/arkose-id/idalloc/internal/idtypes"
)

// sessionID gives each test session its own high word, so distinct test
// sessions are far apart in stable space and never collide.
func sessionID(n uint64) idtypes.SessionId {
	return idtypes.StableId{Hi: n, Lo: 1}
}

func TestGenerateNextIDFirstIsLocalMinusOne(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	id := c.GenerateNextID()
	local, ok := id.ToSpace().AsLocal()
	if !ok || local != idtypes.FirstLocalId {
		t.Fatalf("got %v, want local %v", id, idtypes.FirstLocalId)
	}
}

func TestTakeNextRangeEmptySecondCall(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	c.GenerateNextID()

	first := c.TakeNextRange()
	if first.Range == nil {
		t.Fatal("expected a non-nil range after generating an id")
	}

	second := c.TakeNextRange()
	if second.Range != nil {
		t.Fatalf("expected nil range on second call with no new ids, got %+v", second.Range)
	}
}

func TestFinalizeRangeRequiresFirstLocalToStartChain(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	bad := idtypes.IdRange{
		SessionID: sessionID(2),
		Range:     &idtypes.IdRangeSpan{BaseGenerationCount: 5, Count: 1},
	}
	if err := c.FinalizeRange(bad); !errors.Is(err, idcompressor.ErrRangeFinalizedOutOfOrder) {
		t.Fatalf("got %v, want ErrRangeFinalizedOutOfOrder", err)
	}
}

func TestFinalizeRangeZeroCountIsMalformed(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	bad := idtypes.IdRange{
		SessionID: sessionID(1),
		Range:     &idtypes.IdRangeSpan{BaseGenerationCount: 1, Count: 0},
	}
	if err := c.FinalizeRange(bad); !errors.Is(err, idcompressor.ErrMalformedIdRange) {
		t.Fatalf("got %v, want ErrMalformedIdRange", err)
	}
}

func TestFinalizeRangeNilIsNoOp(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	if err := c.FinalizeRange(idtypes.IdRange{SessionID: sessionID(1), Range: nil}); err != nil {
		t.Fatalf("unexpected error on nil range: %v", err)
	}
}

func TestFinalizeRangeOutOfOrderWithinSession(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	sid := sessionID(2)

	first := idtypes.IdRange{SessionID: sid, Range: &idtypes.IdRangeSpan{BaseGenerationCount: 1, Count: 2}}
	if err := c.FinalizeRange(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Skips generation 3, jumps to 4: should be rejected.
	gap := idtypes.IdRange{SessionID: sid, Range: &idtypes.IdRangeSpan{BaseGenerationCount: 4, Count: 1}}
	if err := c.FinalizeRange(gap); !errors.Is(err, idcompressor.ErrRangeFinalizedOutOfOrder) {
		t.Fatalf("got %v, want ErrRangeFinalizedOutOfOrder", err)
	}
}

// TestTwoSessionScenario walks the worked two-session example: sessions A
// and B each generate ids, finalize in an interleaved order, and must
// converge on the same stable/final mapping regardless of generation
// order, with new-cluster creation for a session that is not the
// global tail exercised.
func TestTwoSessionScenario(t *testing.T) {
	t.Parallel()

	const clusterCapacity = 5
	sidA := sessionID(0xA)
	sidB := sessionID(0xB)

	a := idcompressor.New(sidA)
	if err := a.SetClusterCapacity(clusterCapacity); err != nil {
		t.Fatalf("SetClusterCapacity(a): %v", err)
	}
	b := idcompressor.New(sidB)
	if err := b.SetClusterCapacity(clusterCapacity); err != nil {
		t.Fatalf("SetClusterCapacity(b): %v", err)
	}

	// A generates 2 ids, takes its range.
	aID1 := a.GenerateNextID()
	aID2 := a.GenerateNextID()
	aRange := a.TakeNextRange()

	// B generates 3 ids, takes its range.
	bID1 := b.GenerateNextID()
	bID2 := b.GenerateNextID()
	bID3 := b.GenerateNextID()
	bRange := b.TakeNextRange()

	// Deliver in the same (total) order to both compressors: A's range
	// first, then B's.
	for _, c := range []*idcompressor.IdCompressor{a, b} {
		if err := c.FinalizeRange(aRange); err != nil {
			t.Fatalf("finalize A's range: %v", err)
		}
		if err := c.FinalizeRange(bRange); err != nil {
			t.Fatalf("finalize B's range: %v", err)
		}
	}

	if !a.FinalizedEqual(b) {
		t.Fatal("expected A and B to converge on identical finalized state")
	}

	// Every id either compressor generated must decompress identically
	// from both sides, and recompress back to an equivalent.
	for _, pair := range []struct {
		name string
		id   idtypes.SessionSpaceId
		from *idcompressor.IdCompressor
	}{
		{"aID1", aID1, a},
		{"aID2", aID2, a},
		{"bID1", bID1, b},
		{"bID2", bID2, b},
		{"bID3", bID3, b},
	} {
		stable, err := pair.from.Decompress(pair.id)
		if err != nil {
			t.Fatalf("%s: Decompress on originator: %v", pair.name, err)
		}

		recompressedOnOriginator, err := pair.from.Recompress(stable)
		if err != nil {
			t.Fatalf("%s: Recompress on originator: %v", pair.name, err)
		}
		if recompressedOnOriginator != pair.id {
			t.Errorf("%s: recompress(decompress(id)) = %v, want %v", pair.name, recompressedOnOriginator, pair.id)
		}
	}

	// A further range from A that overflows its first cluster must
	// either expand the tail (if A's cluster is the global tail) or
	// spawn a new cluster otherwise. A was finalized first, then B, so
	// B's cluster is the global tail; a fresh A id should get its own
	// new cluster once A's original capacity is exhausted. A's first
	// cluster holds 7 slots (5 + 2), so 6 more ids overflow it by one.
	for range 6 {
		a.GenerateNextID()
	}
	aRange2 := a.TakeNextRange()
	for _, c := range []*idcompressor.IdCompressor{a, b} {
		if err := c.FinalizeRange(aRange2); err != nil {
			t.Fatalf("finalize A's second range: %v", err)
		}
	}
	if !a.FinalizedEqual(b) {
		t.Fatal("expected A and B to remain converged after A's second range")
	}
}

func TestRecompressUnknownStableIdFails(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	unknown := idtypes.StableId{Hi: 0xff, Lo: 0xff}
	if _, err := c.Recompress(unknown); !errors.Is(err, idcompressor.ErrInvalidStableId) {
		t.Fatalf("got %v, want ErrInvalidStableId", err)
	}
}

func TestNormalizeToOpSpaceUnknownLocalFails(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	bogus := idtypes.SessionSpaceIdFromLocal(idtypes.LocalIdFromGenerationCount(99))
	if _, err := c.NormalizeToOpSpace(bogus); !errors.Is(err, idcompressor.ErrInvalidSessionSpaceId) {
		t.Fatalf("got %v, want ErrInvalidSessionSpaceId", err)
	}
}

func TestClusterCollisionDetected(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	if err := c.SetClusterCapacity(5); err != nil {
		t.Fatalf("SetClusterCapacity: %v", err)
	}

	sidA := sessionID(0x100)
	first := idtypes.IdRange{SessionID: sidA, Range: &idtypes.IdRangeSpan{BaseGenerationCount: 1, Count: 1}}
	if err := c.FinalizeRange(first); err != nil {
		t.Fatalf("finalize first: %v", err)
	}

	// sidB's base stable id lands inside sidA's 6-slot (5 + 1) cluster reservation.
	sidB := sidA.AddOffset(2)
	collide := idtypes.IdRange{SessionID: sidB, Range: &idtypes.IdRangeSpan{BaseGenerationCount: 1, Count: 1}}
	if err := c.FinalizeRange(collide); !errors.Is(err, idcompressor.ErrClusterCollision) {
		t.Fatalf("got %v, want ErrClusterCollision", err)
	}
}

func TestSetClusterCapacityRejectsZero(t *testing.T) {
	t.Parallel()

	c := idcompressor.New(sessionID(1))
	if err := c.SetClusterCapacity(0); !errors.Is(err, idcompressor.ErrInvalidClusterCapacity) {
		t.Fatalf("got %v, want ErrInvalidClusterCapacity", err)
	}
}
