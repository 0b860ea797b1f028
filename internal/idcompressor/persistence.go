package idcompressor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

// Serialization format v1: little-endian, self-describing.
//
//	magic       [4]byte  "IDAC"
//	version     uint8    1
//	flags       uint8    bit0: includes local state
//	clusterCapacity uint64
//	[if flags.local]
//	    localSessionID      [16]byte
//	    generatedIDCount    uint64
//	    nextRangeBaseGenCnt uint64
//	    normalizerRunCount  uint64
//	    normalizerRuns      [runCount](baseGenCount uint64, count uint64)
//	sessionCount uint64
//	sessions [sessionCount]:
//	    sessionID    [16]byte
//	    clusterCount uint64
//	    clusters [clusterCount]:
//	        baseLocalGenCount uint64
//	        baseFinalID       uint64
//	        capacity          uint64
//	        count             uint64
var persistenceMagic = [4]byte{'I', 'D', 'A', 'C'}

const persistenceVersion uint8 = 1

const flagIncludesLocal uint8 = 1 << 0

// Serialize returns a persistable form of the compressor's current
// state. Without local state, only finalized (globally agreed) state
// is included, suitable for summaries shared across sessions. With
// local state, the session's own identity and pending generation state
// are included too, suitable for offline suspend/resume.
func (c *IdCompressor) Serialize(includeLocalState bool) []byte {
	var buf bytes.Buffer
	buf.Write(persistenceMagic[:])
	buf.WriteByte(persistenceVersion)
	flags := uint8(0)
	if includeLocalState {
		flags |= flagIncludesLocal
	}
	buf.WriteByte(flags)

	writeU64(&buf, c.clusterCapacity)

	if includeLocalState {
		idBytes := c.sessionID.Bytes()
		buf.Write(idBytes[:])
		writeU64(&buf, c.generatedIDCount)
		writeU64(&buf, c.nextRangeBaseGenCount)
		runs := c.sessionSpaceNormalizer.Runs()
		writeU64(&buf, uint64(len(runs)))
		for _, run := range runs {
			writeU64(&buf, run.Base.GenerationCount())
			writeU64(&buf, run.Count)
		}
	}

	sessions := c.sessions.All()
	writeU64(&buf, uint64(len(sessions)))
	for _, session := range sessions {
		idBytes := session.SessionID.Bytes()
		buf.Write(idBytes[:])
		writeU64(&buf, uint64(len(session.clusters)))
		for _, cluster := range session.clusters {
			writeU64(&buf, cluster.BaseLocalId.GenerationCount())
			writeU64(&buf, uint64(cluster.BaseFinalId))
			writeU64(&buf, cluster.Capacity)
			writeU64(&buf, cluster.Count)
		}
	}

	return buf.Bytes()
}

// Deserialize rehydrates a compressor from bytes produced by Serialize.
// makeSessionID is consulted to supply a session identifier when the
// bytes do not carry local state (a finalized-only snapshot); it is
// never called when the bytes include local state.
func Deserialize(data []byte, makeSessionID func() idtypes.SessionId) (*IdCompressor, error) {
	r := &byteReader{buf: data}

	var magic [4]byte
	if !r.readBytes(magic[:]) || magic != persistenceMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrDeserialization)
	}
	version, ok := r.readU8()
	if !ok || version != persistenceVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDeserialization, version)
	}
	flags, ok := r.readU8()
	if !ok {
		return nil, fmt.Errorf("%w: truncated flags", ErrDeserialization)
	}
	includesLocal := flags&flagIncludesLocal != 0

	clusterCapacity, ok := r.readU64()
	if !ok {
		return nil, fmt.Errorf("%w: truncated cluster capacity", ErrDeserialization)
	}

	sessions := NewSessions()
	compressor := &IdCompressor{
		clusterCapacity:        clusterCapacity,
		sessions:               sessions,
		finalSpace:             NewFinalSpace(),
		sessionSpaceNormalizer: NewSessionSpaceNormalizer(),
	}

	if includesLocal {
		var idBytes [16]byte
		if !r.readBytes(idBytes[:]) {
			return nil, fmt.Errorf("%w: truncated session id", ErrDeserialization)
		}
		compressor.sessionID = idtypes.StableIdFromBytes(idBytes)
		generatedIDCount, ok := r.readU64()
		if !ok {
			return nil, fmt.Errorf("%w: truncated generated id count", ErrDeserialization)
		}
		compressor.generatedIDCount = generatedIDCount
		nextRangeBase, ok := r.readU64()
		if !ok {
			return nil, fmt.Errorf("%w: truncated next range base", ErrDeserialization)
		}
		compressor.nextRangeBaseGenCount = nextRangeBase

		runCount, ok := r.readU64()
		if !ok {
			return nil, fmt.Errorf("%w: truncated normalizer length", ErrDeserialization)
		}
		for i := uint64(0); i < runCount; i++ {
			baseGen, ok1 := r.readU64()
			count, ok2 := r.readU64()
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("%w: truncated normalizer run", ErrDeserialization)
			}
			compressor.sessionSpaceNormalizer.PushRun(idtypes.LocalIdFromGenerationCount(baseGen), count)
		}
	} else {
		compressor.sessionID = makeSessionID()
		compressor.nextRangeBaseGenCount = idtypes.FirstLocalId.GenerationCount()
	}

	sessionCount, ok := r.readU64()
	if !ok {
		return nil, fmt.Errorf("%w: truncated session count", ErrDeserialization)
	}
	// Clusters are written grouped by owning session, but FinalSpace
	// must end up sorted by base final id across all sessions; collect
	// every cluster ref first and sort once all sessions are read.
	type pendingCluster struct {
		ref       ClusterRef
		baseFinal idtypes.FinalId
	}
	var pending []pendingCluster

	for i := uint64(0); i < sessionCount; i++ {
		var idBytes [16]byte
		if !r.readBytes(idBytes[:]) {
			return nil, fmt.Errorf("%w: truncated session entry", ErrDeserialization)
		}
		sessionID := idtypes.StableIdFromBytes(idBytes)
		sessionRef := sessions.GetOrCreate(sessionID)

		clusterCount, ok := r.readU64()
		if !ok {
			return nil, fmt.Errorf("%w: truncated cluster count", ErrDeserialization)
		}
		for j := uint64(0); j < clusterCount; j++ {
			baseLocalGen, ok1 := r.readU64()
			baseFinal, ok2 := r.readU64()
			capacity, ok3 := r.readU64()
			count, ok4 := r.readU64()
			if !ok1 || !ok2 || !ok3 || !ok4 {
				return nil, fmt.Errorf("%w: truncated cluster entry", ErrDeserialization)
			}
			ref := sessions.AddEmptyCluster(sessionRef, idtypes.FinalId(baseFinal), idtypes.LocalIdFromGenerationCount(baseLocalGen), capacity)
			sessions.DerefCluster(ref).Count = count
			pending = append(pending, pendingCluster{ref: ref, baseFinal: idtypes.FinalId(baseFinal)})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].baseFinal < pending[j].baseFinal })
	for _, p := range pending {
		compressor.finalSpace.AddCluster(p.ref)
	}

	localRef, ok := sessions.Get(compressor.sessionID)
	if ok {
		compressor.localSessionRef = localRef.self
	} else {
		compressor.localSessionRef = sessions.GetOrCreate(compressor.sessionID)
	}

	if tail, ok := compressor.finalSpace.GetTailCluster(sessions); ok {
		compressor.finalIDLimit = tail.BaseFinalId.Plus(tail.Count)
	}

	return compressor, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

// byteReader is a minimal cursor over a byte slice used only by
// Deserialize; it reports short reads via a boolean rather than a
// panic so every field access can be checked uniformly.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readBytes(dst []byte) bool {
	if len(r.buf)-r.pos < len(dst) {
		return false
	}
	copy(dst, r.buf[r.pos:])
	r.pos += len(dst)
	return true
}

func (r *byteReader) readU8() (uint8, bool) {
	if len(r.buf)-r.pos < 1 {
		return 0, false
	}
	v := r.buf[r.pos]
	r.pos++
	return v, true
}

func (r *byteReader) readU64() (uint64, bool) {
	var tmp [8]byte
	if !r.readBytes(tmp[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(tmp[:]), true
}
