package idcompressor

import (
	"sort"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

// uuidSpaceEntry is one row of the stable-space index: the base stable
// id of a cluster, and a reference back to it.
type uuidSpaceEntry struct {
	baseStable idtypes.StableId
	ref        ClusterRef
}

// UuidSpace is a sorted index keyed by each cluster's base stable id,
// supporting "which cluster (if any) contains this stable id" and
// range-overlap queries used for collision detection. It is kept as a
// slice sorted by key, searched with sort.Search: no ordered-map
// container appears anywhere in the reference corpus, and a slice plus
// binary search is the direct idiomatic substitute for a BTreeMap at
// the scale this allocator operates at (thousands, not millions, of
// clusters per process).
type UuidSpace struct {
	entries []uuidSpaceEntry
}

// NewUuidSpace returns an empty UuidSpace.
func NewUuidSpace() *UuidSpace {
	return &UuidSpace{}
}

// AddCluster registers a newly created cluster under its base stable
// id, derived from the owning session's id plus the cluster's base
// local id.
func (u *UuidSpace) AddCluster(sessionID idtypes.SessionId, ref ClusterRef, sessions *Sessions) {
	cluster := sessions.DerefCluster(ref)
	baseStable := sessionID.Add(cluster.BaseLocalId)
	idx := sort.Search(len(u.entries), func(i int) bool {
		return !u.entries[i].baseStable.Less(baseStable)
	})
	u.entries = append(u.entries, uuidSpaceEntry{})
	copy(u.entries[idx+1:], u.entries[idx:])
	u.entries[idx] = uuidSpaceEntry{baseStable: baseStable, ref: ref}
}

// predecessor returns the index of the entry with the greatest
// baseStable <= query, or -1 if none (query sorts below every entry,
// equivalently below the open NilStableId lower bound).
func (u *UuidSpace) predecessor(query idtypes.StableId) int {
	idx := sort.Search(len(u.entries), func(i int) bool {
		return query.Less(u.entries[i].baseStable)
	})
	return idx - 1
}

// Search returns the cluster whose stable-id extent contains query,
// along with the session reference that created it and the local id
// the query aligns to within that session, or ok=false if no cluster's
// extent contains query.
func (u *UuidSpace) Search(query idtypes.StableId, sessions *Sessions) (cluster *Cluster, sessionRef SessionSpaceRef, originatorLocal idtypes.LocalId, ok bool) {
	i := u.predecessor(query)
	if i < 0 {
		return nil, NilSessionRef, 0, false
	}
	entry := u.entries[i]
	c := sessions.DerefCluster(entry.ref)
	creatorSessionID := sessions.DerefSessionSpace(c.SessionCreator).SessionID
	clusterMin := creatorSessionID.Add(c.BaseLocalId)
	clusterMax := clusterMin.AddOffset(c.Capacity)
	if query.Less(clusterMin) || clusterMax.Less(query) {
		return nil, NilSessionRef, 0, false
	}
	offset := query.Sub(creatorSessionID)
	originatorLocal = idtypes.LocalId(-int64(offset) - 1)
	return c, c.SessionCreator, originatorLocal, true
}

// RangeCollides reports whether the inclusive stable-id range
// [rangeBase, rangeMax] would overlap a cluster created by a session
// other than originator. Only the single predecessor-of-rangeMax
// candidate needs checking: clusters from distinct sessions never
// overlap in stable space once finalized, so if the nearest-below
// cluster doesn't reach into the range, no earlier one could either.
func (u *UuidSpace) RangeCollides(originator idtypes.SessionId, sessions *Sessions, rangeBase, rangeMax idtypes.StableId) bool {
	i := u.predecessor(rangeMax)
	if i < 0 {
		return false
	}
	entry := u.entries[i]
	c := sessions.DerefCluster(entry.ref)
	creatorSessionID := sessions.DerefSessionSpace(c.SessionCreator).SessionID
	clusterMaxStable := creatorSessionID.Add(c.BaseLocalId).AddOffset(c.Capacity)
	return creatorSessionID != originator && rangeBase.LessEqual(clusterMaxStable)
}
