package idtypes

// SessionSpaceId is a CompressedId meaningful only to the owning
// session: it may be Local (an id this session generated as a local,
// whether or not it has since been finalized) or Final (including
// eager finals handed out from reserved cluster capacity).
//
// It shares its encoding with OpSpaceId (sign of the integer encodes
// the tag); the two names exist to make session-space/op-space misuse
// a type error at call boundaries.
type SessionSpaceId int64

// SessionSpaceIdFromLocal wraps a LocalId as a SessionSpaceId.
func SessionSpaceIdFromLocal(l LocalId) SessionSpaceId { return SessionSpaceId(Local(l).encode()) }

// SessionSpaceIdFromFinal wraps a FinalId as a SessionSpaceId.
func SessionSpaceIdFromFinal(f FinalId) SessionSpaceId { return SessionSpaceId(Final(f).encode()) }

// ToSpace unpacks the SessionSpaceId into its tagged-union form.
func (id SessionSpaceId) ToSpace() CompressedId { return decode(int64(id)) }

// IsLocal reports whether id currently denotes a Local.
func (id SessionSpaceId) IsLocal() bool { return id < 0 }
