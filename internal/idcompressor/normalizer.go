package idcompressor

import (
	"sort"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

// NormalizerRun is one contiguous run of locally generated local ids
// the local session has not yet mapped into a finalized cluster via
// eager-final use: the locals with generation counts in
// [Base.GenerationCount(), Base.GenerationCount()+Count).
type NormalizerRun struct {
	Base  idtypes.LocalId
	Count uint64
}

// SessionSpaceNormalizer is the local session's compact, append-only
// memory of every local id it has generated: "which ids I created as
// locals before a cluster existed to eagerly cover them." Runs are
// sorted by generation count ascending (i.e. by Base descending, since
// local ids decrease as more are allocated).
type SessionSpaceNormalizer struct {
	runs []NormalizerRun
}

// NewSessionSpaceNormalizer returns an empty normalizer.
func NewSessionSpaceNormalizer() *SessionSpaceNormalizer {
	return &SessionSpaceNormalizer{}
}

// AddLocalRange records count newly generated locals starting at base.
// If base continues the previous run contiguously (base is exactly one
// generation past the previous run's last local), the run is extended
// in place rather than appended.
func (n *SessionSpaceNormalizer) AddLocalRange(base idtypes.LocalId, count uint64) {
	if len(n.runs) > 0 {
		last := &n.runs[len(n.runs)-1]
		if base == last.Base.Minus(last.Count) {
			last.Count += count
			return
		}
	}
	n.runs = append(n.runs, NormalizerRun{Base: base, Count: count})
}

// Contains reports whether q is among the locals this normalizer has
// recorded.
func (n *SessionSpaceNormalizer) Contains(q idtypes.LocalId) bool {
	qGen := q.GenerationCount()
	// Runs are sorted by Base.GenerationCount() ascending; binary search
	// for the last run whose base gen count is <= q's.
	i := sort.Search(len(n.runs), func(i int) bool {
		return n.runs[i].Base.GenerationCount() > qGen
	}) - 1
	if i < 0 {
		return false
	}
	run := n.runs[i]
	baseGen := run.Base.GenerationCount()
	return qGen >= baseGen && qGen < baseGen+run.Count
}

// Runs returns the recorded runs in ascending generation-count order,
// for serialization and equality comparison. The slice must not be
// mutated.
func (n *SessionSpaceNormalizer) Runs() []NormalizerRun {
	out := make([]NormalizerRun, len(n.runs))
	copy(out, n.runs)
	return out
}

// PushRun appends a raw run with no contiguity coalescing, used only
// by deserialization to reconstruct exactly the runs that were
// serialized.
func (n *SessionSpaceNormalizer) PushRun(base idtypes.LocalId, count uint64) {
	n.runs = append(n.runs, NormalizerRun{Base: base, Count: count})
}

// Equal reports whether two normalizers hold identical runs.
func (n *SessionSpaceNormalizer) Equal(other *SessionSpaceNormalizer) bool {
	if len(n.runs) != len(other.runs) {
		return false
	}
	for i := range n.runs {
		if n.runs[i] != other.runs[i] {
			return false
		}
	}
	return true
}
