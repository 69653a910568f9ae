package flatstore

// breakLarge converts one large chunk into SmallPerLarge small chunks.
// The large chunk must be INITIALIZED and not USED.
func (e *Engine) breakLarge(h ChunkIdx) {
	m := e.largeMeta(h)
	invariant(m.initialized, "breakLarge: chunk %d not initialized", h)
	invariant(m.state == largeFree, "breakLarge: chunk %d is USED", h)

	m.state = largeBroken
	m.allocated = 0
	e.brokenHistogram[0]++

	spl := e.geo.SmallPerLarge()
	base := int64(h) * spl
	// Pushed in reverse order so the head-most free node has the lowest
	// index; a convention only, not a correctness property.
	for i := spl - 1; i >= 0; i-- {
		idx := smallChunkIdx(int32(base + i))
		e.small[base+i] = smallChunkMeta{initialized: true}
		e.pushSmallFree(idx)
	}
	e.Stats.BreakEvents++
}

// unbreak is unbreak(large, mandatory). The non-mandatory form
// is a no-op unless allocated_count == 0; the mandatory form asserts it.
// COALESCE_PENDING children are accepted during mandatory unbreak and
// simply released.
func (e *Engine) unbreak(parent ChunkIdx, mandatory bool) bool {
	m := e.largeMeta(parent)
	invariant(m.state == largeBroken, "unbreak: chunk %d not broken", parent)

	if m.allocated != 0 {
		invariant(!mandatory, "unbreak: mandatory unbreak with allocated_count=%d", m.allocated)
		return false
	}

	spl := e.geo.SmallPerLarge()
	base := int64(parent) * spl
	for i := int64(0); i < spl; i++ {
		idx := smallChunkIdx(int32(base + i))
		sm := e.smallMeta(idx)
		switch sm.state {
		case smallFree:
			e.unlinkSmallFree(idx)
			e.smallFreeSz--
		case smallCoalescePending:
			// released without touching the free list; it was already
			// removed from it when marked pending during migration.
		default:
			invariant(false, "unbreak: small chunk %d still USED", idx)
		}
		e.small[base+i] = smallChunkMeta{}
	}

	e.brokenHistogram[0]--
	*m = largeChunkMeta{initialized: true}
	e.pushLargeFree(parent)
	e.Stats.UnbreakEvents++
	return true
}

// brokenHistogramSnapshot copies the current histogram for stats
// rendering.
func (e *Engine) brokenHistogramSnapshot() []int64 {
	out := make([]int64, len(e.brokenHistogram))
	copy(out, e.brokenHistogram)
	return out
}
