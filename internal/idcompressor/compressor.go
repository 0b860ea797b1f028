// Package idcompressor implements the core of a distributed
// compressed-ID allocator: a single-owner, single-threaded state
// machine that maps per-session local allocations onto a globally
// agreed dense numbering, subject to externally-ordered finalize calls.
//
// See the design notes in the repository root for the full background;
// in short, every id returned by GenerateNextID is eventually, via
// FinalizeRange, interchangeable with a 128-bit StableId and a compact
// non-negative FinalId that every session converges on regardless of
// generation order.
package idcompressor

import (
	"fmt"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

// DefaultClusterCapacity is the cluster size used when a compressor is
// constructed without an explicit override.
const DefaultClusterCapacity uint64 = 512

// NilToken is the reserved session-token value meaning "no session".
const NilToken int64 = -1

// TelemetryStats accumulates counters describing a compressor's
// behavior since the last call to GetTelemetryStats, intended for logging
// and metrics export rather than correctness decisions.
type TelemetryStats struct {
	// EagerFinalCount counts ids returned by GenerateNextID that landed
	// in already-reserved cluster capacity.
	EagerFinalCount uint64
	// LocalIDCount counts ids returned by GenerateNextID with no
	// reserved capacity available, i.e. brand-new locals.
	LocalIDCount uint64
	// ExpansionCount counts finalize_range calls that grew the tail
	// cluster in place.
	ExpansionCount uint64
	// ClusterCreationCount counts finalize_range calls that created a
	// new cluster (including each session's first).
	ClusterCreationCount uint64
}

// IdCompressor is a distributed ID allocator: it generates
// session-local ids cheaply, and maps them (via an externally ordered
// finalize_range protocol) onto a dense, globally agreed numbering.
//
// An IdCompressor is not safe for concurrent use: all of GenerateNextID,
// TakeNextRange, FinalizeRange, SetClusterCapacity, and the
// Deserialize constructor require exclusive access, though the pure
// mapping operations (NormalizeToOpSpace, NormalizeToSessionSpace,
// Decompress, Recompress) may be called concurrently with each other
// once no mutation is in flight.
type IdCompressor struct {
	sessionID                idtypes.SessionId
	localSessionRef          SessionSpaceRef
	generatedIDCount         uint64
	nextRangeBaseGenCount    uint64
	finalIDLimit             idtypes.FinalId
	clusterCapacity          uint64
	telemetry                TelemetryStats
	sessions                 *Sessions
	finalSpace               *FinalSpace
	sessionSpaceNormalizer   *SessionSpaceNormalizer
}

// New constructs an IdCompressor owned by sessionID, with empty chains
// and the default cluster capacity.
func New(sessionID idtypes.SessionId) *IdCompressor {
	sessions := NewSessions()
	localRef := sessions.GetOrCreate(sessionID)
	return &IdCompressor{
		sessionID:              sessionID,
		localSessionRef:        localRef,
		generatedIDCount:       0,
		nextRangeBaseGenCount:  idtypes.FirstLocalId.GenerationCount(),
		finalIDLimit:           0,
		clusterCapacity:        DefaultClusterCapacity,
		sessions:               sessions,
		finalSpace:             NewFinalSpace(),
		sessionSpaceNormalizer: NewSessionSpaceNormalizer(),
	}
}

// GetDefaultClusterCapacity returns the library-wide default cluster size.
func GetDefaultClusterCapacity() uint64 { return DefaultClusterCapacity }

// GetLocalSessionID returns the owning session's 128-bit identifier.
func (c *IdCompressor) GetLocalSessionID() idtypes.SessionId { return c.sessionID }

func (c *IdCompressor) localSessionSpace() *SessionSpace {
	return c.sessions.DerefSessionSpace(c.localSessionRef)
}

// GetSessionTokenFromSessionID returns the stable token for a known
// session, or ErrNoTokenForSession if the session has never been seen.
func (c *IdCompressor) GetSessionTokenFromSessionID(sessionID idtypes.SessionId) (int64, error) {
	space, ok := c.sessions.Get(sessionID)
	if !ok {
		return 0, ErrNoTokenForSession
	}
	return space.self.Token(), nil
}

// GetClusterCapacity returns the sizing currently used for new clusters.
func (c *IdCompressor) GetClusterCapacity() uint64 { return c.clusterCapacity }

// SetClusterCapacity updates the sizing used for new cluster creation.
// This must only be changed by ordered consensus (e.g. driven by a
// finalized config-change operation), or sessions will diverge on
// cluster boundaries.
func (c *IdCompressor) SetClusterCapacity(newCapacity uint64) error {
	if newCapacity < 1 {
		return ErrInvalidClusterCapacity
	}
	c.clusterCapacity = newCapacity
	return nil
}

// GetTelemetryStats returns the counters accumulated since the last
// call, resetting them to zero.
func (c *IdCompressor) GetTelemetryStats() TelemetryStats {
	stats := c.telemetry
	c.telemetry = TelemetryStats{}
	return stats
}

// GenerateNextID generates and returns this compressor's next session
// space id. Returned values are strictly monotonic in allocation
// order (locals strictly decrease, eager finals strictly increase) and
// never repeat.
func (c *IdCompressor) GenerateNextID() idtypes.SessionSpaceId {
	c.generatedIDCount++
	tail, ok := c.localSessionSpace().TailCluster()
	if !ok {
		return idtypes.SessionSpaceIdFromLocal(c.generateNextLocalID())
	}
	clusterOffset := c.generatedIDCount - tail.baseGen()
	if tail.Capacity > clusterOffset {
		c.telemetry.EagerFinalCount++
		return idtypes.SessionSpaceIdFromFinal(tail.BaseFinalId.Plus(clusterOffset))
	}
	return idtypes.SessionSpaceIdFromLocal(c.generateNextLocalID())
}

func (c *IdCompressor) generateNextLocalID() idtypes.LocalId {
	c.telemetry.LocalIDCount++
	newLocal := idtypes.LocalIdFromGenerationCount(c.generatedIDCount)
	c.sessionSpaceNormalizer.AddLocalRange(newLocal, 1)
	return newLocal
}

// TakeNextRange returns the range of ids (if any) generated by this
// session since the last call, for relay through a total-order
// broadcast service to every session's FinalizeRange.
func (c *IdCompressor) TakeNextRange() idtypes.IdRange {
	count := c.generatedIDCount - (c.nextRangeBaseGenCount - 1)
	if count == 0 {
		return idtypes.IdRange{SessionID: c.sessionID, Range: nil}
	}
	span := &idtypes.IdRangeSpan{BaseGenerationCount: c.nextRangeBaseGenCount, Count: count}
	c.nextRangeBaseGenCount = c.generatedIDCount + 1
	return idtypes.IdRange{SessionID: c.sessionID, Range: span}
}

// FinalizeRange finalizes the supplied range of ids, which may
// originate from this session or a remote one. Callers must deliver
// calls in total-order-broadcast order across all sessions, and in
// TakeNextRange order within a session; see the package doc comment.
func (c *IdCompressor) FinalizeRange(r idtypes.IdRange) error {
	if r.Range == nil {
		return nil
	}
	if r.Range.Count == 0 {
		return ErrMalformedIdRange
	}
	rangeBaseLocal := idtypes.LocalIdFromGenerationCount(r.Range.BaseGenerationCount)
	rangeBaseStable := r.SessionID.Add(rangeBaseLocal)

	rangeMaxStable := rangeBaseStable.AddOffset(r.Range.Count + c.clusterCapacity)
	if c.sessions.RangeCollides(r.SessionID, rangeBaseStable, rangeMaxStable) {
		return ErrClusterCollision
	}

	sessionRef := c.sessions.GetOrCreate(r.SessionID)
	sessionSpace := c.sessions.DerefSessionSpace(sessionRef)

	if sessionSpace.ClusterChainIsEmpty() {
		if rangeBaseLocal != idtypes.FirstLocalId {
			return ErrRangeFinalizedOutOfOrder
		}
		c.telemetry.ClusterCreationCount++
		c.addEmptyCluster(sessionRef, rangeBaseLocal, c.clusterCapacity+r.Range.Count)
	}

	tail, _ := sessionSpace.TailCluster()
	if tail.BaseLocalId.Minus(tail.Count) != rangeBaseLocal {
		return ErrRangeFinalizedOutOfOrder
	}

	remaining := tail.RemainingCapacity()
	switch {
	case remaining >= r.Range.Count:
		tail.Count += r.Range.Count
	default:
		overflow := r.Range.Count - remaining
		newClaimed := overflow + c.clusterCapacity
		tailRef := ClusterRef{SessionRef: sessionRef, Index: len(sessionSpace.clusters) - 1}
		if c.finalSpace.IsLast(tailRef) {
			c.telemetry.ExpansionCount++
			tail.Capacity += newClaimed
			tail.Count += r.Range.Count
		} else {
			c.telemetry.ClusterCreationCount++
			tail.Count = tail.Capacity
			newRef := c.addEmptyCluster(sessionRef, rangeBaseLocal.Minus(remaining), newClaimed)
			c.sessions.DerefCluster(newRef).Count = overflow
		}
	}

	if lastCluster, ok := c.finalSpace.GetTailCluster(c.sessions); ok {
		c.finalIDLimit = lastCluster.BaseFinalId.Plus(lastCluster.Count)
	}
	return nil
}

// addEmptyCluster creates a new empty cluster in sessionRef's chain,
// sized capacity, starting at baseLocal, and registers it with both
// FinalSpace and the stable-space index.
func (c *IdCompressor) addEmptyCluster(sessionRef SessionSpaceRef, baseLocal idtypes.LocalId, capacity uint64) ClusterRef {
	nextBaseFinal := idtypes.FinalId(0)
	if tail, ok := c.finalSpace.GetTailCluster(c.sessions); ok {
		nextBaseFinal = tail.BaseFinalId.Plus(tail.Capacity)
	}
	ref := c.sessions.AddEmptyCluster(sessionRef, nextBaseFinal, baseLocal, capacity)
	c.finalSpace.AddCluster(ref)
	return ref
}

// NormalizeToOpSpace normalizes a session-space id to op space: a
// local id that has already been finalized is transmitted as its
// final form, a local id not yet acknowledged is transmitted as itself.
func (c *IdCompressor) NormalizeToOpSpace(id idtypes.SessionSpaceId) (idtypes.OpSpaceId, error) {
	compressed := id.ToSpace()
	if final, ok := compressed.AsFinal(); ok {
		return idtypes.OpSpaceIdFromFinal(final), nil
	}
	local, _ := compressed.AsLocal()
	if !c.sessionSpaceNormalizer.Contains(local) {
		return 0, ErrInvalidSessionSpaceId
	}
	if final, ok := c.localSessionSpace().TryConvertToFinal(local, true); ok {
		return idtypes.OpSpaceIdFromFinal(final), nil
	}
	return idtypes.OpSpaceIdFromLocal(local), nil
}

// NormalizeToSessionSpace normalizes an op-space id, sent by
// originator, into this compressor's session space.
func (c *IdCompressor) NormalizeToSessionSpace(id idtypes.OpSpaceId, originator idtypes.SessionId) (idtypes.SessionSpaceId, error) {
	token, err := c.GetSessionTokenFromSessionID(originator)
	if err != nil {
		if id.IsLocal() {
			return 0, err
		}
		token = NilToken
	}
	return c.NormalizeToSessionSpaceWithToken(id, token)
}

// NormalizeToSessionSpaceWithToken is NormalizeToSessionSpace without
// the session-id-to-token lookup, for callers that already hold the
// originator's token.
func (c *IdCompressor) NormalizeToSessionSpaceWithToken(id idtypes.OpSpaceId, originatorToken int64) (idtypes.SessionSpaceId, error) {
	compressed := id.ToSpace()
	if local, ok := compressed.AsLocal(); ok {
		originatorRef := SessionSpaceRefFromToken(originatorToken)
		if originatorRef == c.localSessionRef {
			if c.sessionSpaceNormalizer.Contains(local) {
				return idtypes.SessionSpaceIdFromLocal(local), nil
			}
			if local.GenerationCount() <= c.generatedIDCount {
				final, ok := c.localSessionSpace().TryConvertToFinal(local, true)
				if !ok {
					return 0, ErrInvalidOpSpaceId
				}
				return idtypes.SessionSpaceIdFromFinal(final), nil
			}
			return 0, ErrInvalidOpSpaceId
		}
		foreign := c.sessions.DerefSessionSpace(originatorRef)
		final, ok := foreign.TryConvertToFinal(local, false)
		if !ok {
			return 0, ErrInvalidOpSpaceId
		}
		return idtypes.SessionSpaceIdFromFinal(final), nil
	}

	final, _ := compressed.AsFinal()
	if containing, ok := c.localSessionSpace().GetClusterByAllocatedFinal(final); ok {
		alignedLocal, ok := containing.AlignedLocal(final)
		if !ok {
			return 0, ErrInvalidOpSpaceId
		}
		if c.sessionSpaceNormalizer.Contains(alignedLocal) {
			return idtypes.SessionSpaceIdFromLocal(alignedLocal), nil
		}
		if alignedLocal.GenerationCount() <= c.generatedIDCount {
			return idtypes.SessionSpaceIdFromFinal(final), nil
		}
		return 0, ErrInvalidOpSpaceId
	}
	if final >= c.finalIDLimit {
		return 0, ErrInvalidOpSpaceId
	}
	return idtypes.SessionSpaceIdFromFinal(final), nil
}

// Decompress resolves a session-space id to its stable id equivalent.
func (c *IdCompressor) Decompress(id idtypes.SessionSpaceId) (idtypes.StableId, error) {
	compressed := id.ToSpace()
	if final, ok := compressed.AsFinal(); ok {
		cluster, ok := c.finalSpace.Search(final, c.sessions)
		if !ok {
			return idtypes.StableId{}, ErrInvalidSessionSpaceId
		}
		containingSessionRef := cluster.SessionCreator
		alignedLocal, ok := cluster.AlignedLocal(final)
		if !ok {
			return idtypes.StableId{}, ErrInvalidSessionSpaceId
		}
		if alignedLocal.GenerationCount() >= cluster.baseGen()+cluster.Count {
			if containingSessionRef == c.localSessionRef {
				if c.sessionSpaceNormalizer.Contains(alignedLocal) {
					return idtypes.StableId{}, ErrInvalidSessionSpaceId
				}
				if alignedLocal.GenerationCount() > c.generatedIDCount {
					return idtypes.StableId{}, ErrInvalidSessionSpaceId
				}
			} else {
				return idtypes.StableId{}, ErrInvalidSessionSpaceId
			}
		}
		return c.sessions.GetSessionID(containingSessionRef).Add(alignedLocal), nil
	}

	local, _ := compressed.AsLocal()
	if !c.sessionSpaceNormalizer.Contains(local) {
		return idtypes.StableId{}, ErrInvalidSessionSpaceId
	}
	return c.sessionID.Add(local), nil
}

// Recompress resolves a stable id to its session-space id equivalent.
func (c *IdCompressor) Recompress(id idtypes.StableId) (idtypes.SessionSpaceId, error) {
	cluster, sessionRef, local, ok := c.sessions.GetContainingCluster(id)
	if !ok {
		sessionAsStable := c.sessionID
		if id.Less(sessionAsStable) || !id.Less(sessionAsStable.AddOffset(c.generatedIDCount)) {
			return 0, ErrInvalidStableId
		}
		genCountEquivalent := id.Sub(sessionAsStable) + 1
		if genCountEquivalent <= c.generatedIDCount {
			localEquivalent := idtypes.LocalIdFromGenerationCount(genCountEquivalent)
			if c.sessionSpaceNormalizer.Contains(localEquivalent) {
				return idtypes.SessionSpaceIdFromLocal(localEquivalent), nil
			}
		}
		return 0, ErrInvalidStableId
	}

	if sessionRef == c.localSessionRef {
		if c.sessionSpaceNormalizer.Contains(local) {
			return idtypes.SessionSpaceIdFromLocal(local), nil
		}
		if local.GenerationCount() <= c.generatedIDCount {
			final, ok := cluster.AllocatedFinal(local)
			if !ok {
				return 0, ErrInvalidStableId
			}
			return idtypes.SessionSpaceIdFromFinal(final), nil
		}
		return 0, ErrInvalidStableId
	}

	if local.GenerationCount() < cluster.baseGen()+cluster.Count {
		final, ok := cluster.AllocatedFinal(local)
		if !ok {
			return 0, ErrInvalidStableId
		}
		return idtypes.SessionSpaceIdFromFinal(final), nil
	}
	return 0, ErrInvalidStableId
}

// FinalIDLimit returns one past the largest finalized final id, or 0
// if no cluster has ever been finalized. Exposed for metrics/tests.
func (c *IdCompressor) FinalIDLimit() idtypes.FinalId { return c.finalIDLimit }

// GeneratedIDCount returns the number of ids GenerateNextID has
// returned so far. Exposed for metrics/tests.
func (c *IdCompressor) GeneratedIDCount() uint64 { return c.generatedIDCount }

func (c *IdCompressor) String() string {
	return fmt.Sprintf("IdCompressor{session=%s, generated=%d, sessions=%d, finalLimit=%d}",
		c.sessionID, c.generatedIDCount, c.sessions.Len(), c.finalIDLimit)
}
