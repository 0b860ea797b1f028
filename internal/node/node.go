// Package node wires an idcompressor.IdCompressor to a broadcaster and a
// metrics collector behind a single serialized goroutine, so the
// compressor's single-threaded mutation requirement is upheld even
// though callers invoke Node concurrently from many goroutines.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arkose-id/idalloc/internal/broadcaster"
	"github.com/arkose-id/idalloc/internal/idcompressor"
	"github.com/arkose-id/idalloc/internal/idtypes"
	"github.com/arkose-id/idalloc/internal/metrics"
)

// ErrClosed indicates a call was made after the node's Run loop stopped.
var ErrClosed = errors.New("node: closed")

const commandChSize = 256

type command struct {
	kind   commandKind
	respCh chan commandResult
}

type commandKind uint8

const (
	cmdGenerate commandKind = iota
	cmdTakeAndSubmit
)

type commandResult struct {
	id  idtypes.SessionSpaceId
	err error
}

// Node composes a compressor, a broadcaster, and a metrics collector.
// Every mutating call (GenerateID, TakeAndSubmitRange) and the
// broadcaster drain loop are serialized onto a single internal
// goroutine; read-only mapping calls (Decompress, Recompress,
// NormalizeToOpSpace, NormalizeToSessionSpace) are forwarded directly,
// since the compressor documents those as safe to call concurrently
// with each other once no mutation is in flight.
type Node struct {
	compressor  *idcompressor.IdCompressor
	broadcaster broadcaster.Broadcaster
	metrics     *metrics.Collector
	logger      *slog.Logger

	cmdCh chan command
	done  chan struct{}
}

// New constructs a Node without starting any goroutine. Run must be
// called to begin processing; New alone only allocates state.
func New(compressor *idcompressor.IdCompressor, b broadcaster.Broadcaster, coll *metrics.Collector, logger *slog.Logger) *Node {
	n := &Node{
		compressor:  compressor,
		broadcaster: b,
		metrics:     coll,
		logger:      logger.With(slog.String("component", "node")),
		cmdCh:       make(chan command, commandChSize),
		done:        make(chan struct{}),
	}
	coll.SetSessionCount(1)
	return n
}

// Run serializes all compressor mutation onto the calling goroutine: it
// processes GenerateID/TakeAndSubmitRange commands and drains the
// broadcaster's Ranges channel, calling FinalizeRange for every envelope
// in delivery order. It blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	defer close(n.done)

	ranges := n.broadcaster.Ranges(ctx)
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("node stopped")
			return

		case cmd := <-n.cmdCh:
			n.handleCommand(ctx, cmd)

		case env, ok := <-ranges:
			if !ok {
				ranges = nil
				continue
			}
			n.handleEnvelope(env)
		}
	}
}

func (n *Node) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdGenerate:
		id := n.compressor.GenerateNextID()
		stats := n.compressor.GetTelemetryStats()
		n.metrics.ObserveGenerate(stats)
		cmd.respCh <- commandResult{id: id}

	case cmdTakeAndSubmit:
		r := n.compressor.TakeNextRange()
		if r.Range != nil {
			if err := n.broadcaster.Submit(ctx, n.compressor.GetLocalSessionID(), r); err != nil {
				n.metrics.ObserveFinalizeError("submit")
				cmd.respCh <- commandResult{err: fmt.Errorf("submit range: %w", err)}
				return
			}
		}
		cmd.respCh <- commandResult{}
	}
}

func (n *Node) handleEnvelope(env broadcaster.Envelope) {
	if err := n.compressor.FinalizeRange(env.Range); err != nil {
		n.metrics.ObserveFinalizeError(finalizeErrorKind(err))
		n.logger.Warn("finalize range failed",
			slog.Uint64("sequence", env.Sequence),
			slog.String("error", err.Error()),
		)
		return
	}
	stats := n.compressor.GetTelemetryStats()
	n.metrics.ObserveFinalize(stats)
	n.metrics.SetFinalIDLimit(uint64(n.compressor.FinalIDLimit()))
}

func finalizeErrorKind(err error) string {
	switch {
	case errors.Is(err, idcompressor.ErrRangeFinalizedOutOfOrder):
		return "out_of_order"
	case errors.Is(err, idcompressor.ErrClusterCollision):
		return "collision"
	case errors.Is(err, idcompressor.ErrMalformedIdRange):
		return "malformed"
	default:
		return "other"
	}
}

func (n *Node) submit(ctx context.Context, kind commandKind) (idtypes.SessionSpaceId, error) {
	respCh := make(chan commandResult, 1)
	select {
	case n.cmdCh <- command{kind: kind, respCh: respCh}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-n.done:
		return 0, ErrClosed
	}

	select {
	case res := <-respCh:
		return res.id, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-n.done:
		return 0, ErrClosed
	}
}

// GenerateID generates and returns the next session-space id, serialized
// against every other mutating call on this node.
func (n *Node) GenerateID(ctx context.Context) (idtypes.SessionSpaceId, error) {
	return n.submit(ctx, cmdGenerate)
}

// TakeAndSubmitRange takes this node's pending generated range (if any)
// and submits it to the broadcaster for finalization.
func (n *Node) TakeAndSubmitRange(ctx context.Context) error {
	_, err := n.submit(ctx, cmdTakeAndSubmit)
	return err
}

// Decompress resolves a session-space id to its stable id equivalent.
// Safe to call concurrently with other read-only mapping calls.
func (n *Node) Decompress(id idtypes.SessionSpaceId) (idtypes.StableId, error) {
	return n.compressor.Decompress(id)
}

// Recompress resolves a stable id to its session-space id equivalent.
func (n *Node) Recompress(id idtypes.StableId) (idtypes.SessionSpaceId, error) {
	return n.compressor.Recompress(id)
}

// NormalizeToOpSpace normalizes a session-space id for transmission.
func (n *Node) NormalizeToOpSpace(id idtypes.SessionSpaceId) (idtypes.OpSpaceId, error) {
	return n.compressor.NormalizeToOpSpace(id)
}

// NormalizeToSessionSpace normalizes a received op-space id into this
// node's session space.
func (n *Node) NormalizeToSessionSpace(id idtypes.OpSpaceId, originator idtypes.SessionId) (idtypes.SessionSpaceId, error) {
	return n.compressor.NormalizeToSessionSpace(id, originator)
}
