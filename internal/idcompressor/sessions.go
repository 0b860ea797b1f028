package idcompressor

import "github.com/arkose-id/idalloc/internal/idtypes"

// SessionSpace is one session's 128-bit identifier plus the ordered,
// gapless chain of clusters it owns.
type SessionSpace struct {
	SessionID idtypes.SessionId
	clusters  []Cluster
	self      SessionSpaceRef
}

// TailCluster returns the session's most recently created cluster, or
// ok=false if the session owns no clusters yet.
func (s *SessionSpace) TailCluster() (*Cluster, bool) {
	if len(s.clusters) == 0 {
		return nil, false
	}
	return &s.clusters[len(s.clusters)-1], true
}

// ClusterChainIsEmpty reports whether the session owns any clusters.
func (s *SessionSpace) ClusterChainIsEmpty() bool { return len(s.clusters) == 0 }

// TryConvertToFinal attempts to express local as a final id via this
// session's cluster chain: it succeeds iff some cluster's reservation
// contains local's generation. requireFinalized additionally requires
// the slot to have been finalized (not merely reserved) within that
// cluster.
func (s *SessionSpace) TryConvertToFinal(local idtypes.LocalId, requireFinalized bool) (idtypes.FinalId, bool) {
	gen := local.GenerationCount()
	for i := range s.clusters {
		c := &s.clusters[i]
		if requireFinalized {
			if !c.FinalizedContainsGeneration(gen) {
				continue
			}
		} else if !c.ContainsGeneration(gen) {
			continue
		}
		final, ok := c.AllocatedFinal(local)
		if ok {
			return final, true
		}
	}
	return 0, false
}

// GetClusterByAllocatedFinal returns the cluster in this session's
// chain whose reservation contains final, or ok=false if none does.
func (s *SessionSpace) GetClusterByAllocatedFinal(final idtypes.FinalId) (*Cluster, bool) {
	for i := range s.clusters {
		c := &s.clusters[i]
		if final >= c.BaseFinalId && uint64(final-c.BaseFinalId) < c.Capacity {
			return c, true
		}
	}
	return nil, false
}

// Sessions is the array-backed table of all known sessions, indexable
// by session id or by the compact SessionSpaceRef token. It also owns
// the stable-space index (UuidSpace), since every cluster a session
// creates must be registered there.
type Sessions struct {
	list      []*SessionSpace
	byID      map[idtypes.SessionId]SessionSpaceRef
	uuidSpace *UuidSpace
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{
		byID:      make(map[idtypes.SessionId]SessionSpaceRef),
		uuidSpace: NewUuidSpace(),
	}
}

// GetOrCreate returns the existing SessionSpaceRef for sessionID,
// creating a new empty SessionSpace if none exists yet. The returned
// ref is stable for the compressor's lifetime.
func (s *Sessions) GetOrCreate(sessionID idtypes.SessionId) SessionSpaceRef {
	if ref, ok := s.byID[sessionID]; ok {
		return ref
	}
	ref := SessionSpaceRef(len(s.list))
	s.list = append(s.list, &SessionSpace{SessionID: sessionID, self: ref})
	s.byID[sessionID] = ref
	return ref
}

// Get returns the SessionSpace for sessionID, or ok=false if the
// session is not yet known.
func (s *Sessions) Get(sessionID idtypes.SessionId) (*SessionSpace, bool) {
	ref, ok := s.byID[sessionID]
	if !ok {
		return nil, false
	}
	return s.list[ref], true
}

// DerefSessionSpace returns the SessionSpace for ref. The caller must
// only pass refs obtained from this table.
func (s *Sessions) DerefSessionSpace(ref SessionSpaceRef) *SessionSpace {
	return s.list[ref]
}

// DerefCluster returns the cluster identified by ref.
func (s *Sessions) DerefCluster(ref ClusterRef) *Cluster {
	return &s.list[ref.SessionRef].clusters[ref.Index]
}

// GetSessionID returns the 128-bit identifier of the session at ref.
func (s *Sessions) GetSessionID(ref SessionSpaceRef) idtypes.SessionId {
	return s.list[ref].SessionID
}

// AddEmptyCluster appends a new, zero-count cluster to sessionRef's
// chain and registers it in the stable-space index. It does not touch
// FinalSpace; the caller is responsible for that registration.
func (s *Sessions) AddEmptyCluster(sessionRef SessionSpaceRef, baseFinal idtypes.FinalId, baseLocal idtypes.LocalId, capacity uint64) ClusterRef {
	session := s.list[sessionRef]
	ref := ClusterRef{SessionRef: sessionRef, Index: len(session.clusters)}
	session.clusters = append(session.clusters, Cluster{
		SessionCreator: sessionRef,
		BaseLocalId:    baseLocal,
		BaseFinalId:    baseFinal,
		Capacity:       capacity,
		Count:          0,
	})
	s.uuidSpace.AddCluster(session.SessionID, ref, s)
	return ref
}

// RangeCollides reports whether the stable-id range [rangeBase,
// rangeMax] would overlap a cluster created by a session other than
// originator.
func (s *Sessions) RangeCollides(originator idtypes.SessionId, rangeBase, rangeMax idtypes.StableId) bool {
	return s.uuidSpace.RangeCollides(originator, s, rangeBase, rangeMax)
}

// GetContainingCluster returns the cluster (if any) whose stable-id
// extent contains stable, along with the session that owns it and the
// local id stable aligns to within that session.
func (s *Sessions) GetContainingCluster(stable idtypes.StableId) (cluster *Cluster, sessionRef SessionSpaceRef, local idtypes.LocalId, ok bool) {
	return s.uuidSpace.Search(stable, s)
}

// Len returns the number of known sessions.
func (s *Sessions) Len() int { return len(s.list) }

// All returns every known SessionSpace, in table order (stable, equal
// to allocation order of SessionSpaceRef tokens).
func (s *Sessions) All() []*SessionSpace { return s.list }
