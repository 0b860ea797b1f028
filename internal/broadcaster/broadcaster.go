// Package broadcaster provides the external-collaborator interface an
// idcompressor.IdCompressor relies on: delivery of every participating
// session's finalize ranges to every participating session, in a single
// total order. This package's Local implementation is a single-process
// stand-in useful for tests and single-node operation; it is not a
// production total-order broadcast service.
package broadcaster

import (
	"context"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

// Envelope pairs a finalize range with the order it was assigned.
// Sequence is monotonically increasing across all sessions and is the
// same for every subscriber, which is what makes delivery order total.
type Envelope struct {
	Sequence uint64
	Range    idtypes.IdRange
}

// Broadcaster delivers id ranges to every subscribed session in a single
// global order. Submit may be called concurrently by different sessions;
// the order two concurrent Submits are assigned is implementation
// defined, but every subscriber observes the same resulting order.
type Broadcaster interface {
	// Submit enqueues r for delivery. sessionID identifies the
	// submitting session for diagnostics; it does not affect ordering
	// beyond whatever per-session order the caller already submitted in.
	Submit(ctx context.Context, sessionID idtypes.SessionId, r idtypes.IdRange) error

	// Ranges returns a channel of envelopes in global delivery order,
	// starting from the point Ranges was called. Each subscriber gets
	// its own channel and its own copy of every envelope submitted
	// after subscription.
	Ranges(ctx context.Context) <-chan Envelope

	// Close stops accepting submissions and closes every subscriber
	// channel.
	Close() error
}
