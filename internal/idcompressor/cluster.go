package idcompressor

import "github.com/arkose-id/idalloc/internal/idtypes"

// SessionSpaceRef is a stable, array-backed index into the session
// table. It is the allocator's internal handle for a session and is
// exposed publicly (cast to int64) as a session token; NilSessionRef
// casts to NIL_TOKEN.
type SessionSpaceRef int32

// NilSessionRef is the reserved "no session" reference, corresponding
// to the public NIL_TOKEN (-1).
const NilSessionRef SessionSpaceRef = -1

// Token returns the public int64 token for a session reference.
func (r SessionSpaceRef) Token() int64 { return int64(r) }

// SessionSpaceRefFromToken resolves a public int64 token back to a
// SessionSpaceRef by a plain cast; the token is not checked against the
// session table.
func SessionSpaceRefFromToken(token int64) SessionSpaceRef {
	return SessionSpaceRef(token)
}

// ClusterRef is an arena-and-index handle to a cluster: the owning
// session's reference, plus the cluster's position in that session's
// chain. Clusters never move once appended, so ClusterRefs are stable
// for the compressor's lifetime.
type ClusterRef struct {
	SessionRef SessionSpaceRef
	Index      int
}

// Cluster is a contiguous reservation of local-ID and final-ID space
// owned by one session. BaseLocalId is the least-negative (earliest
// generation) local in the cluster; the reservation covers generation
// counts [BaseLocalId.GenerationCount(), BaseLocalId.GenerationCount()+Capacity).
// Count of those slots (the earliest Count of them) have been finalized.
type Cluster struct {
	SessionCreator SessionSpaceRef
	BaseLocalId    idtypes.LocalId
	BaseFinalId    idtypes.FinalId
	Capacity       uint64
	Count          uint64
}

// baseGen is the generation count of the cluster's first (least
// negative) local id.
func (c *Cluster) baseGen() uint64 { return c.BaseLocalId.GenerationCount() }

// ContainsGeneration reports whether the given 1-based generation
// count falls anywhere within the cluster's reserved capacity,
// finalized or not.
func (c *Cluster) ContainsGeneration(gen uint64) bool {
	base := c.baseGen()
	return gen >= base && gen < base+c.Capacity
}

// FinalizedContainsGeneration reports whether the given generation
// count falls within the cluster's already-finalized region.
func (c *Cluster) FinalizedContainsGeneration(gen uint64) bool {
	base := c.baseGen()
	return gen >= base && gen < base+c.Count
}

// AlignedLocal returns the LocalId in this cluster's reserved capacity
// corresponding to final, and true, or ok=false if final falls outside
// the cluster's capacity.
func (c *Cluster) AlignedLocal(final idtypes.FinalId) (idtypes.LocalId, bool) {
	if final < c.BaseFinalId {
		return 0, false
	}
	offset := uint64(final - c.BaseFinalId)
	if offset >= c.Capacity {
		return 0, false
	}
	return idtypes.LocalIdFromGenerationCount(c.baseGen() + offset), true
}

// AllocatedFinal returns the FinalId corresponding to local within this
// cluster's reserved capacity, and true, or ok=false if local falls
// outside the cluster's capacity.
func (c *Cluster) AllocatedFinal(local idtypes.LocalId) (idtypes.FinalId, bool) {
	gen := local.GenerationCount()
	base := c.baseGen()
	if gen < base || gen >= base+c.Capacity {
		return 0, false
	}
	return c.BaseFinalId.Plus(gen - base), true
}

// NextLocalToFinalize is the generation-ordered next local awaiting
// finalization in this cluster: the first local past the finalized
// region.
func (c *Cluster) NextLocalToFinalize() idtypes.LocalId {
	return idtypes.LocalIdFromGenerationCount(c.baseGen() + c.Count)
}

// RemainingCapacity is the number of reserved-but-unfinalized slots.
func (c *Cluster) RemainingCapacity() uint64 { return c.Capacity - c.Count }
