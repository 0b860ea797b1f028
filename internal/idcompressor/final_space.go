package idcompressor

import (
	"sort"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

// FinalSpace is the append-only, globally ordered list of cluster
// references sorted by base final id. Every finalize_range either
// extends the tail cluster in place or appends a new one, so appends
// always land at the end and the list is sorted by construction.
type FinalSpace struct {
	clusters []ClusterRef
}

// NewFinalSpace returns an empty FinalSpace.
func NewFinalSpace() *FinalSpace { return &FinalSpace{} }

// AddCluster appends a newly created cluster to final space. Callers
// must only call this for clusters whose base final id is >= every
// previously added cluster's, which finalize_range guarantees.
func (f *FinalSpace) AddCluster(ref ClusterRef) {
	f.clusters = append(f.clusters, ref)
}

// GetTailCluster returns the globally last cluster in final-id order,
// or ok=false if no cluster has ever been finalized.
func (f *FinalSpace) GetTailCluster(sessions *Sessions) (*Cluster, bool) {
	if len(f.clusters) == 0 {
		return nil, false
	}
	return sessions.DerefCluster(f.clusters[len(f.clusters)-1]), true
}

// IsLast reports whether ref is the globally last cluster in final
// space: the tail-cluster-expansion-vs-new-cluster decision in
// finalize_range hinges on this.
func (f *FinalSpace) IsLast(ref ClusterRef) bool {
	if len(f.clusters) == 0 {
		return false
	}
	last := f.clusters[len(f.clusters)-1]
	return last.SessionRef == ref.SessionRef && last.Index == ref.Index
}

// Search returns the cluster whose final-id extent contains id, or
// ok=false if none does.
func (f *FinalSpace) Search(id idtypes.FinalId, sessions *Sessions) (*Cluster, bool) {
	i := sort.Search(len(f.clusters), func(i int) bool {
		return id < sessions.DerefCluster(f.clusters[i]).BaseFinalId
	}) - 1
	if i < 0 {
		return nil, false
	}
	c := sessions.DerefCluster(f.clusters[i])
	if id >= c.BaseFinalId && uint64(id-c.BaseFinalId) < c.Capacity {
		return c, true
	}
	return nil, false
}

// Len reports the number of clusters registered in final space.
func (f *FinalSpace) Len() int { return len(f.clusters) }

// Clusters returns the cluster references in final-id order, for
// serialization and equality checks. The slice must not be mutated.
func (f *FinalSpace) Clusters() []ClusterRef { return f.clusters }
