package idtypes

// FinalId is a non-negative, globally agreed dense handle. Final ids
// form a gapless sequence starting at 0, partitioned into clusters.
type FinalId uint64

// Plus returns the final id k slots after f.
func (f FinalId) Plus(k uint64) FinalId { return f + FinalId(k) }

// Less reports whether f sorts before other.
func (f FinalId) Less(other FinalId) bool { return f < other }
