package broadcaster_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arkose-id/idalloc/internal/broadcaster"
	"github.com/arkose-id/idalloc/internal/idtypes"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRange(base uint64) idtypes.IdRange {
	return idtypes.IdRange{
		SessionID: idtypes.StableId{Hi: 1, Lo: 1},
		Range:     &idtypes.IdRangeSpan{BaseGenerationCount: base, Count: 1},
	}
}

func TestLocalAssignsMonotonicSequence(t *testing.T) {
	t.Parallel()

	l := broadcaster.NewLocal(silentLogger())
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := l.Ranges(ctx)

	const n = 20
	for i := uint64(0); i < n; i++ {
		if err := l.Submit(ctx, idtypes.SessionId{}, testRange(i)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	var got []uint64
	for len(got) < n {
		select {
		case env := <-ch:
			got = append(got, env.Sequence)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after receiving %d/%d envelopes", len(got), n)
		}
	}

	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("sequence not strictly increasing at index %d: %v", i, got)
		}
	}
}

func TestLocalDeliversSameOrderToAllSubscribers(t *testing.T) {
	t.Parallel()

	l := broadcaster.NewLocal(silentLogger())
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA := l.Ranges(ctx)
	chB := l.Ranges(ctx)

	const n = 10
	for i := uint64(0); i < n; i++ {
		if err := l.Submit(ctx, idtypes.SessionId{}, testRange(i)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	collect := func(ch <-chan broadcaster.Envelope) []uint64 {
		var seqs []uint64
		for len(seqs) < n {
			select {
			case env := <-ch:
				seqs = append(seqs, env.Sequence)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out collecting from subscriber")
			}
		}
		return seqs
	}

	var wg sync.WaitGroup
	var seqsA, seqsB []uint64
	wg.Add(2)
	go func() { defer wg.Done(); seqsA = collect(chA) }()
	go func() { defer wg.Done(); seqsB = collect(chB) }()
	wg.Wait()

	if len(seqsA) != len(seqsB) {
		t.Fatalf("subscribers saw different counts: %d vs %d", len(seqsA), len(seqsB))
	}
	for i := range seqsA {
		if seqsA[i] != seqsB[i] {
			t.Fatalf("subscribers diverged at index %d: %d vs %d", i, seqsA[i], seqsB[i])
		}
	}
}

func TestLocalSubmitAfterCloseFails(t *testing.T) {
	t.Parallel()

	l := broadcaster.NewLocal(silentLogger())
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := l.Submit(context.Background(), idtypes.SessionId{}, testRange(1)); err == nil {
		t.Fatal("expected Submit after Close to fail")
	}
}

func TestLocalRangesClosedOnContextCancel(t *testing.T) {
	t.Parallel()

	l := broadcaster.NewLocal(silentLogger())
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := l.Ranges(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed, not yield a value")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber channel to close")
	}
}
