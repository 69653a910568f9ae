package flatstore

// pushLargeFree pushes an INITIALIZED, non-USED large chunk onto the large
// free list head.
func (e *Engine) pushLargeFree(h ChunkIdx) {
	m := e.largeMeta(h)
	invariant(m.initialized, "pushLargeFree: chunk %d not initialized", h)
	m.state = largeFree
	m.freeNext = e.largeFreeHead
	e.largeFreeHead = h
	e.largeFreeSz++
}

// popLargeFree pops the head of the large free list, or NoChunk.
func (e *Engine) popLargeFree() ChunkIdx {
	h := e.largeFreeHead
	if h == NoChunk {
		return NoChunk
	}
	m := e.largeMeta(h)
	e.largeFreeHead = m.freeNext
	e.largeFreeSz--
	m.freeNext = NoChunk
	return h
}

// pushSmallFree implements doubly-linked small free list:
// push at head, updating the new head's prev-to-slot reference and the
// displaced head's reference back to the new node.
func (e *Engine) pushSmallFree(h ChunkIdx) {
	m := e.smallMeta(h)
	invariant(m.initialized, "pushSmallFree: chunk %d not initialized", h)
	m.state = smallFree
	m.freeNext = e.smallFreeHead
	m.freePrev = NoChunk // predecessor is the free-list head variable itself
	if e.smallFreeHead != NoChunk {
		e.smallMeta(e.smallFreeHead).freePrev = h
	}
	e.smallFreeHead = h
	e.smallFreeSz++
}

// unlinkSmallFree removes h from the small free list in O(1) from
// anywhere, using the prev-to-slot idiom: write through h's predecessor
// reference, then patch the successor's reference back. This realises
// invariant 8 (*(n.prev_next) == n) without raw pointers-to-pointers: a
// freePrev of NoChunk means the slot being written through is
// e.smallFreeHead itself, not a sibling node's freeNext field.
func (e *Engine) unlinkSmallFree(h ChunkIdx) {
	m := e.smallMeta(h)
	next := m.freeNext
	if m.freePrev == NoChunk {
		e.smallFreeHead = next
	} else {
		e.smallMeta(m.freePrev).freeNext = next
	}
	if next != NoChunk {
		e.smallMeta(next).freePrev = m.freePrev
	}
	m.freeNext, m.freePrev = NoChunk, NoChunk
}

// popSmallFree pops the small free list head, incrementing the parent's
// allocated_count and histogram.
func (e *Engine) popSmallFree() ChunkIdx {
	h := e.smallFreeHead
	if h == NoChunk {
		return NoChunk
	}
	e.unlinkSmallFree(h)
	e.smallFreeSz--
	e.adjustAllocated(e.parentOf(h), +1)
	return h
}

// adjustAllocated changes a broken parent's allocated_count, keeping the
// broken-chunk histogram in step.
func (e *Engine) adjustAllocated(parent ChunkIdx, delta int32) {
	pm := e.largeMeta(parent)
	invariant(pm.state == largeBroken, "adjustAllocated: parent %d not broken", parent)
	e.brokenHistogram[pm.allocated]--
	pm.allocated += delta
	e.brokenHistogram[pm.allocated]++
}

// pushFree is push(chunk, tier, try_merge).
func (e *Engine) pushFree(h ChunkIdx, tryMerge bool) {
	if h.IsSmall() {
		parent := e.parentOf(h)
		e.adjustAllocated(parent, -1)
		e.pushSmallFree(h)
		if tryMerge {
			e.unbreak(parent, false)
		}
		return
	}
	e.pushLargeFree(h)
}

// popFree is pop(tier).
func (e *Engine) popFree(t Tier) ChunkIdx {
	if t == Small {
		return e.popSmallFree()
	}
	return e.popLargeFree()
}

func (e *Engine) freeListSize(t Tier) int64 {
	if t == Small {
		return e.smallFreeSz
	}
	return e.largeFreeSz
}
