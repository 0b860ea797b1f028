package idtypes_test

import (
	"testing"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

func TestCompressedIdLocalFinalRoundTrip(t *testing.T) {
	t.Parallel()

	local := idtypes.Local(idtypes.LocalIdFromGenerationCount(1))
	if local.Kind() != idtypes.KindLocal {
		t.Fatal("expected KindLocal")
	}
	if _, ok := local.AsFinal(); ok {
		t.Fatal("expected AsFinal to fail on a Local")
	}
	got, ok := local.AsLocal()
	if !ok || got != idtypes.FirstLocalId {
		t.Fatalf("got %v, %v; want %v, true", got, ok, idtypes.FirstLocalId)
	}

	final := idtypes.Final(idtypes.FinalId(42))
	if final.Kind() != idtypes.KindFinal {
		t.Fatal("expected KindFinal")
	}
	if _, ok := final.AsLocal(); ok {
		t.Fatal("expected AsLocal to fail on a Final")
	}
	gotFinal, ok := final.AsFinal()
	if !ok || gotFinal != 42 {
		t.Fatalf("got %v, %v; want 42, true", gotFinal, ok)
	}
}

func TestSessionSpaceIdSignEncodesKind(t *testing.T) {
	t.Parallel()

	localID := idtypes.SessionSpaceIdFromLocal(idtypes.FirstLocalId)
	if !localID.IsLocal() {
		t.Error("expected local session-space id to report IsLocal")
	}
	if _, ok := localID.ToSpace().AsLocal(); !ok {
		t.Error("expected ToSpace to round trip as Local")
	}

	finalID := idtypes.SessionSpaceIdFromFinal(idtypes.FinalId(7))
	if finalID.IsLocal() {
		t.Error("expected final session-space id not to report IsLocal")
	}
	if _, ok := finalID.ToSpace().AsFinal(); !ok {
		t.Error("expected ToSpace to round trip as Final")
	}
}

func TestOpSpaceSessionSpaceRelabeling(t *testing.T) {
	t.Parallel()

	sessionSpace := idtypes.SessionSpaceIdFromFinal(idtypes.FinalId(9))
	opSpace := idtypes.OpSpaceIdFromSessionSpaceId(sessionSpace)
	back := opSpace.ToSessionSpaceId()
	if back != sessionSpace {
		t.Fatalf("got %v, want %v", back, sessionSpace)
	}
}
