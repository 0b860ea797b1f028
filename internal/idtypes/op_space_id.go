package idtypes

// OpSpaceId is a CompressedId meaningful when transmitted in an ordered
// operation: a Final is globally interpretable; a Local is interpretable
// only together with the originating session's identity.
//
// See SessionSpaceId for the shared encoding.
type OpSpaceId int64

// OpSpaceIdFromLocal wraps a LocalId as an OpSpaceId.
func OpSpaceIdFromLocal(l LocalId) OpSpaceId { return OpSpaceId(Local(l).encode()) }

// OpSpaceIdFromFinal wraps a FinalId as an OpSpaceId.
func OpSpaceIdFromFinal(f FinalId) OpSpaceId { return OpSpaceId(Final(f).encode()) }

// ToSpace unpacks the OpSpaceId into its tagged-union form.
func (id OpSpaceId) ToSpace() CompressedId { return decode(int64(id)) }

// IsLocal reports whether id currently denotes a Local.
func (id OpSpaceId) IsLocal() bool { return id < 0 }

// OpSpaceIdFromSessionSpaceId reinterprets a SessionSpaceId as an
// OpSpaceId. Valid only after NormalizeToOpSpace has confirmed the
// conversion is safe to transmit; this is a plain relabeling, not a
// conversion.
func OpSpaceIdFromSessionSpaceId(id SessionSpaceId) OpSpaceId { return OpSpaceId(id) }

// ToSessionSpaceId reinterprets an OpSpaceId as a SessionSpaceId. Valid
// only after NormalizeToSessionSpace has resolved the id against the
// receiving compressor's own state.
func (id OpSpaceId) ToSessionSpaceId() SessionSpaceId { return SessionSpaceId(id) }
