package idtypes

// LocalId is a strictly negative, per-session handle: -1, -2, -3, ...
// in allocation order. It has meaning only to the session that created
// it, until a finalize_range covers its slot.
type LocalId int64

// FirstLocalId is the first local id any session ever allocates.
const FirstLocalId LocalId = -1

// LocalIdFromGenerationCount returns the LocalId for a 1-based
// generation count (the count'th id the session ever allocated).
func LocalIdFromGenerationCount(genCount uint64) LocalId {
	return LocalId(-int64(genCount))
}

// GenerationCount maps a LocalId back to its 1-based generation count.
func (l LocalId) GenerationCount() uint64 {
	return uint64(-int64(l))
}

// Minus returns the local id k slots further from zero (more negative):
// the local allocated k generations after l.
func (l LocalId) Minus(k uint64) LocalId {
	return LocalId(int64(l) - int64(k))
}

// Plus returns the local id k slots closer to zero (less negative): the
// local allocated k generations before l.
func (l LocalId) Plus(k uint64) LocalId {
	return LocalId(int64(l) + int64(k))
}

// Less reports whether l was allocated after other (local ids decrease
// as more are allocated, so "less" here means "more negative").
func (l LocalId) Less(other LocalId) bool { return l < other }
