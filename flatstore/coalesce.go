package flatstore

// coalesceResult reports whether coalesce() made any progress.
type coalesceResult int

const (
	noProgress coalesceResult = iota
	coalesceFormed
)

// coalesce drains small-fragmentation into whole large chunks. Rationale
// for the two-pass migration below: marking a
// parent's free children COALESCE_PENDING before migrating its used
// children prevents the migrator from handing them out as replacement
// chunks for its own used children, which would defeat the consolidation
// being attempted.
func (e *Engine) coalesce() coalesceResult {
	result := noProgress
	for e.smallFreeSz >= e.geo.SmallPerLarge() {
		parent, ok := e.findUnreferencedBroken(0)
		if !ok {
			break
		}
		e.migrateParent(parent)
		result = coalesceFormed
	}
	return result
}

// findUnreferencedBroken scans the small free list, optionally bounded to
// the first depthLimit nodes (0 = unbounded), and returns the parent of
// the first small chunk whose entire parent broken chunk has no
// referenced child. Free and coalesce-pending children count as
// unreferenced.
func (e *Engine) findUnreferencedBroken(depthLimit int) (ChunkIdx, bool) {
	visited := make(map[int32]bool)
	cur := e.smallFreeHead
	count := 0
	for cur != NoChunk {
		if depthLimit > 0 && count >= depthLimit {
			break
		}
		parent := e.parentOf(cur)
		if !visited[int32(parent)] {
			visited[int32(parent)] = true
			if e.allChildrenUnreferenced(parent) {
				return parent, true
			}
		}
		cur = e.smallMeta(cur).freeNext
		count++
	}
	return NoChunk, false
}

func (e *Engine) allChildrenUnreferenced(parent ChunkIdx) bool {
	spl := e.geo.SmallPerLarge()
	base := int64(parent) * spl
	for i := int64(0); i < spl; i++ {
		if e.childReferenced(smallChunkIdx(int32(base + i))) {
			return false
		}
	}
	return true
}

func (e *Engine) childReferenced(idx ChunkIdx) bool {
	switch e.smallMeta(idx).state {
	case smallFree, smallCoalescePending:
		return false
	default:
		return e.chainRefcount(idx) > 0
	}
}

// chainRefcount follows prev_chunk links from a body chunk up to its
// title to find the item's refcount.
func (e *Engine) chainRefcount(idx ChunkIdx) int32 {
	cur := idx
	for {
		sm := e.smallMeta(cur)
		if sm.isTitle {
			return sm.title.refcount
		}
		cur = sm.prevChunk
		invariant(cur != NoChunk, "chainRefcount: body chunk %d has no prev_chunk", idx)
	}
}

// migrateParent runs the consolidation steps against one chosen broken
// parent.
func (e *Engine) migrateParent(parent ChunkIdx) {
	spl := e.geo.SmallPerLarge()
	base := int64(parent) * spl

	for i := int64(0); i < spl; i++ {
		idx := smallChunkIdx(int32(base + i))
		sm := e.smallMeta(idx)
		if sm.state == smallFree {
			e.unlinkSmallFree(idx)
			e.smallFreeSz--
			sm.state = smallCoalescePending
		}
	}

	for i := int64(0); i < spl; i++ {
		idx := smallChunkIdx(int32(base + i))
		sm := e.smallMeta(idx)
		if sm.state == smallUsed {
			invariant(e.chainRefcount(idx) == 0, "migrateParent: referenced child %d in unreferenced parent", idx)
			e.migrateSmallChild(idx)
		}
	}

	ok := e.unbreak(parent, true)
	invariant(ok, "migrateParent: unbreak failed after draining parent %d", parent)
}

// migrateSmallChild moves one live small chunk off its (unreferenced,
// refcount==0) parent onto a freshly popped replacement chunk, repairing
// every back-reference: LRU links, the chain's prev/next pointers, and
// (for titles) the external index.
func (e *Engine) migrateSmallChild(old ChunkIdx) ChunkIdx {
	oldMeta := e.smallMeta(old)
	isTitle := oldMeta.isTitle

	replacement := e.popSmallFree()
	invariant(replacement != NoChunk, "migrateSmallChild: no replacement chunk available")

	copy(e.payload(replacement), e.payload(old))
	newMeta := e.smallMeta(replacement)
	newMeta.state = smallUsed
	newMeta.isTitle = isTitle

	if isTitle {
		newMeta.title = oldMeta.title
		e.fixupAfterTitleMigration(old, replacement)
	} else {
		newMeta.prevChunk = oldMeta.prevChunk
		newMeta.nextChunk = oldMeta.nextChunk
		e.fixupAfterBodyMigration(replacement)
	}

	e.adjustAllocated(e.parentOf(old), -1)
	e.Stats.Migrates++
	*oldMeta = smallChunkMeta{initialized: true, state: smallCoalescePending}
	return replacement
}

func (e *Engine) fixupAfterTitleMigration(old, replacement ChunkIdx) {
	t := e.smallMeta(replacement).title

	if t.lruPrev != NoChunk {
		e.title(t.lruPrev).lruNext = replacement
	} else {
		e.lruHead = replacement
	}
	if t.lruNext != NoChunk {
		e.title(t.lruNext).lruPrev = replacement
	} else {
		e.lruTail = replacement
	}

	if t.nextChunk != NoChunk {
		// An item's chain is single-tier; a small title's first body is
		// always a small chunk.
		e.smallMeta(t.nextChunk).prevChunk = replacement
	}

	e.index.Update(old, replacement)
}

func (e *Engine) fixupAfterBodyMigration(replacement ChunkIdx) {
	m := e.smallMeta(replacement)
	e.setNextChunkOf(m.prevChunk, replacement)
	if m.nextChunk != NoChunk {
		e.smallMeta(m.nextChunk).prevChunk = replacement
	}
}
