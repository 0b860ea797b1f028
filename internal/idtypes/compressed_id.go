package idtypes

// Kind discriminates the two cases of a CompressedId.
type Kind uint8

const (
	// KindLocal marks a CompressedId holding a LocalId.
	KindLocal Kind = iota
	// KindFinal marks a CompressedId holding a FinalId.
	KindFinal
)

// CompressedId is the tagged union {Local, Final} at the heart of the
// allocator's three coordinate systems. It is an exhaustive two-case
// variant, not an interface: callers switch on Kind() rather than rely
// on dynamic dispatch.
type CompressedId struct {
	kind  Kind
	local LocalId
	final FinalId
}

// Local constructs a CompressedId wrapping a LocalId.
func Local(l LocalId) CompressedId { return CompressedId{kind: KindLocal, local: l} }

// Final constructs a CompressedId wrapping a FinalId.
func Final(f FinalId) CompressedId { return CompressedId{kind: KindFinal, final: f} }

// Kind reports which case this CompressedId holds.
func (c CompressedId) Kind() Kind { return c.kind }

// AsLocal returns the wrapped LocalId and true, or the zero LocalId and
// false if c holds a Final.
func (c CompressedId) AsLocal() (LocalId, bool) {
	if c.kind != KindLocal {
		return 0, false
	}
	return c.local, true
}

// AsFinal returns the wrapped FinalId and true, or the zero FinalId and
// false if c holds a Local.
func (c CompressedId) AsFinal() (FinalId, bool) {
	if c.kind != KindFinal {
		return 0, false
	}
	return c.final, true
}

// encode packs a CompressedId into the signed 64-bit wire/session
// representation: negative values are Local ids (the int64 value of
// the LocalId itself), non-negative values are Final ids.
func (c CompressedId) encode() int64 {
	switch c.kind {
	case KindLocal:
		return int64(c.local)
	default:
		return int64(c.final)
	}
}

// decode unpacks the signed 64-bit wire representation back into a
// CompressedId: the sign of the integer encodes the tag.
func decode(v int64) CompressedId {
	if v < 0 {
		return Local(LocalId(v))
	}
	return Final(FinalId(v))
}
