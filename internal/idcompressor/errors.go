package idcompressor

import "errors"

// Sentinel errors for IdCompressor operations. Callers should compare
// with errors.Is; wrapped context is added with fmt.Errorf("%w: ...").
var (
	// ErrInvalidClusterCapacity indicates a zero cluster capacity was requested.
	ErrInvalidClusterCapacity = errors.New("idcompressor: cluster capacity must be nonzero")

	// ErrNoTokenForSession indicates no known session matches the given session id.
	ErrNoTokenForSession = errors.New("idcompressor: no token for session")

	// ErrMalformedIdRange indicates an id range with a present but zero-length body.
	ErrMalformedIdRange = errors.New("idcompressor: malformed id range")

	// ErrRangeFinalizedOutOfOrder indicates the first local of a finalized
	// range does not equal the next expected local in that session's chain.
	ErrRangeFinalizedOutOfOrder = errors.New("idcompressor: range finalized out of order")

	// ErrClusterCollision indicates the range would allocate stable ids
	// overlapping a different session's existing cluster extent.
	ErrClusterCollision = errors.New("idcompressor: cluster collision")

	// ErrInvalidSessionSpaceId indicates a session-space id could not be resolved.
	ErrInvalidSessionSpaceId = errors.New("idcompressor: invalid session-space id")

	// ErrInvalidOpSpaceId indicates an op-space id could not be resolved.
	ErrInvalidOpSpaceId = errors.New("idcompressor: invalid op-space id")

	// ErrInvalidStableId indicates a stable id could not be recompressed.
	ErrInvalidStableId = errors.New("idcompressor: invalid stable id")

	// ErrDeserialization indicates malformed or version-incompatible
	// serialized bytes.
	ErrDeserialization = errors.New("idcompressor: deserialization error")
)
