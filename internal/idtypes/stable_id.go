// Package idtypes defines the numeric ID spaces the allocator juggles:
// stable 128-bit identifiers, per-session negative local IDs, globally
// agreed non-negative final IDs, and the two contextual wrappers
// (session-space and op-space) layered over a compressed ID.
package idtypes

import (
	"encoding/binary"
	"fmt"
)

// StableId is a 128-bit, totally ordered identifier. It is the only ID
// space with no relationship to any particular session's allocation
// order: every session and cluster base ID is itself a StableId.
//
// The zero value is the nil sentinel returned by NilStableId().
type StableId struct {
	Hi uint64
	Lo uint64
}

// NilStableId returns the reserved "no id" sentinel: the all-zero
// StableId. It sorts below every real session or cluster base id (real
// ids are session identifiers, which are never all-zero) and is used
// only as an open lower search bound in the stable-space index, never
// inserted into it.
func NilStableId() StableId {
	return StableId{Hi: 0, Lo: 0}
}

// SessionId names the 128-bit identifier of a participating session.
// It shares StableId's representation: a session's SessionId is also
// the StableId of local-ID offset 0 within that session.
type SessionId = StableId

// StableIdFromBytes decodes a 16-byte big-endian buffer into a StableId.
func StableIdFromBytes(b [16]byte) StableId {
	return StableId{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// Bytes encodes the StableId as a 16-byte big-endian buffer.
func (s StableId) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], s.Hi)
	binary.BigEndian.PutUint64(b[8:16], s.Lo)
	return b
}

// Compare returns -1, 0, or 1 as s is less than, equal to, or greater
// than other.
func (s StableId) Compare(other StableId) int {
	switch {
	case s.Hi != other.Hi:
		if s.Hi < other.Hi {
			return -1
		}
		return 1
	case s.Lo != other.Lo:
		if s.Lo < other.Lo {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Less reports whether s sorts before other.
func (s StableId) Less(other StableId) bool { return s.Compare(other) < 0 }

// LessEqual reports whether s sorts at or before other.
func (s StableId) LessEqual(other StableId) bool { return s.Compare(other) <= 0 }

// AddOffset returns the StableId whose 128-bit numeric value is s + k.
// Overflow across the 128-bit boundary is a caller error and panics;
// the allocator never constructs an offset large enough to trigger it
// in practice, since cluster capacities are bounded well below 2^64.
func (s StableId) AddOffset(k uint64) StableId {
	lo := s.Lo + k
	hi := s.Hi
	if lo < s.Lo {
		hi++
		if hi == 0 {
			panic("idtypes: StableId addition overflowed 128 bits")
		}
	}
	return StableId{Hi: hi, Lo: lo}
}

// Add returns the StableId whose offset from s is LocalId.GenerationCount()-1,
// i.e. the stable id assigned to the k-th (1-based) id generated relative
// to the session whose base is s.
func (s StableId) Add(l LocalId) StableId {
	return s.AddOffset(uint64(l.GenerationCount() - 1))
}

// Sub returns the unsigned 128-bit offset (s - other). It panics if
// s < other: a negative stable-id difference is a caller error, never
// a legitimate allocator computation.
func (s StableId) Sub(other StableId) uint64 {
	if s.Less(other) {
		panic(fmt.Sprintf("idtypes: StableId subtraction underflowed: %+v - %+v", s, other))
	}
	hi := s.Hi - other.Hi
	lo := s.Lo - other.Lo
	if s.Lo < other.Lo {
		hi--
	}
	if hi != 0 {
		panic(fmt.Sprintf("idtypes: StableId subtraction exceeds 64-bit offset: %+v - %+v", s, other))
	}
	return lo
}

// String renders the StableId as a 32-character hex string, grouped
// like a UUID for readability in logs.
func (s StableId) String() string {
	b := s.Bytes()
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
