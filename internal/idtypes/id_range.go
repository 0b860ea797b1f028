package idtypes

// IdRange describes a contiguous span of locally generated ids awaiting
// finalization: Range is the (1-based base generation count, count)
// pair, or nil if nothing new has been generated since the last range
// was taken.
type IdRange struct {
	SessionID SessionId
	Range     *IdRangeSpan
}

// IdRangeSpan is the non-empty body of an IdRange.
type IdRangeSpan struct {
	BaseGenerationCount uint64
	Count               uint64
}
