package idcompressor

// FinalizedEqual reports whether c and other agree on all
// globally-agreed state: final_id_limit, cluster_capacity, the session
// table (same sessions with identical cluster chains), and FinalSpace
// ordering. It ignores any local, not-yet-finalized state; sessions
// that own no clusters carry no finalized state and are not compared.
func (c *IdCompressor) FinalizedEqual(other *IdCompressor) bool {
	if c.finalIDLimit != other.finalIDLimit || c.clusterCapacity != other.clusterCapacity {
		return false
	}
	sessionsWithClusters := func(s *Sessions) int {
		n := 0
		for _, session := range s.All() {
			if len(session.clusters) > 0 {
				n++
			}
		}
		return n
	}
	if sessionsWithClusters(c.sessions) != sessionsWithClusters(other.sessions) {
		return false
	}
	for _, session := range c.sessions.All() {
		if len(session.clusters) == 0 {
			continue
		}
		otherSession, ok := other.sessions.Get(session.SessionID)
		if !ok {
			return false
		}
		if len(session.clusters) != len(otherSession.clusters) {
			return false
		}
		for i := range session.clusters {
			a, b := session.clusters[i], otherSession.clusters[i]
			if a.BaseLocalId != b.BaseLocalId || a.BaseFinalId != b.BaseFinalId ||
				a.Capacity != b.Capacity || a.Count != b.Count {
				return false
			}
		}
	}
	if c.finalSpace.Len() != other.finalSpace.Len() {
		return false
	}
	for i, ref := range c.finalSpace.Clusters() {
		otherRef := other.finalSpace.Clusters()[i]
		cluster := c.sessions.DerefCluster(ref)
		otherCluster := other.sessions.DerefCluster(otherRef)
		if c.sessions.GetSessionID(ref.SessionRef) != other.sessions.GetSessionID(otherRef.SessionRef) {
			return false
		}
		if cluster.BaseFinalId != otherCluster.BaseFinalId {
			return false
		}
	}
	return true
}

// LocallyEqual reports whether c and other are FinalizedEqual and
// additionally agree on local-only state: session id, generated id
// count, next range base generation count, and normalizer contents.
func (c *IdCompressor) LocallyEqual(other *IdCompressor) bool {
	if !c.FinalizedEqual(other) {
		return false
	}
	return c.sessionID == other.sessionID &&
		c.generatedIDCount == other.generatedIDCount &&
		c.nextRangeBaseGenCount == other.nextRangeBaseGenCount &&
		c.sessionSpaceNormalizer.Equal(other.sessionSpaceNormalizer)
}
