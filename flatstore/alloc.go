package flatstore

// replenishResult is returned by the per-tier replenishment loop.
type replenishResult int

const (
	replenishOK replenishResult = iota
	replenishExhausted
)

// Alloc is alloc(key, nkey, flags, exptime, nbytes, ip). It
// rejects oversize input, replenishes the relevant free list (growing,
// coalescing, or evicting as needed), chains the chunks, and stamps the
// header. The caller is expected to then memcpy the value in via
// MemcpyTo and finally Link the item.
func (e *Engine) Alloc(key []byte, flags uint32, exptime int64, nbytes int64, ip [4]byte, haveIP bool, now int64) (ItemHandle, bool) {
	nkey := len(key)
	if nkey > e.geo.KeyMaxLength || nbytes > e.geo.MaxItemSize {
		return NoChunk, false
	}

	tier := e.geo.TierFor(nkey, nbytes)
	needed := e.geo.chunksNeeded(nkey, nbytes, tier)

	if !e.replenish(tier, needed) {
		return NoChunk, false
	}

	chunks := make([]ChunkIdx, needed)
	for i := 0; i < needed; i++ {
		chunks[i] = e.popFree(tier)
		invariant(chunks[i] != NoChunk, "Alloc: free list exhausted after replenish reported success")
	}

	title := chunks[0]
	e.initTitleChunk(title, tier, uint8(nkey), uint32(nbytes), flags, exptime, now)
	for i := 0; i+1 < len(chunks); i++ {
		e.initBodyChunk(chunks[i+1], tier)
		e.setNextChunkOf(chunks[i], chunks[i+1])
	}

	e.writeKey(title, key)
	e.stampTail(title, uint32(now), ip, haveIP)

	return title, true
}

func (e *Engine) initTitleChunk(h ChunkIdx, t Tier, nkey uint8, nbytes uint32, flags uint32, exptime int64, now int64) {
	hdr := itemHeader{
		nkey:      nkey,
		nbytes:    nbytes,
		itFlags:   ItemValid,
		userFlags: flags,
		exptime:   exptime,
		lastTime:  now,
		refcount:  1,
		lruNext:   NoChunk,
		lruPrev:   NoChunk,
		nextChunk: NoChunk,
		hNext:     NoChunk,
	}
	if h.IsSmall() {
		sm := e.smallMeta(h)
		sm.state = smallUsed
		sm.isTitle = true
		sm.title = hdr
		return
	}
	lm := e.largeMeta(h)
	lm.state = largeTitle
	lm.title = hdr
}

func (e *Engine) initBodyChunk(h ChunkIdx, t Tier) {
	if h.IsSmall() {
		sm := e.smallMeta(h)
		sm.state = smallUsed
		sm.isTitle = false
		sm.prevChunk = NoChunk
		sm.nextChunk = NoChunk
		return
	}
	lm := e.largeMeta(h)
	lm.state = largeBody
	lm.body = NoChunk
}

// writeKey copies key into the title data area, spilling into bodies as
// needed, and patches small-tier prev_chunk links as it goes.
func (e *Engine) writeKey(title ChunkIdx, key []byte) {
	e.MemcpyTo(title, 0, key, false)
	if !title.IsSmall() {
		return
	}
	// Patch prev_chunk for small-tier bodies now that the chain exists.
	prev := title
	cur := e.nextChunkOf(title)
	for cur != NoChunk {
		e.smallMeta(cur).prevChunk = prev
		prev = cur
		cur = e.nextChunkOf(cur)
	}
}

// replenish runs the tier-specific strategy order until the relevant free
// list holds at least `needed` chunks (in the large tier, "needed" is
// expressed in large-chunk units derived from available small capacity
// too; see lru_evict/coalesce thresholds).
func (e *Engine) replenish(tier Tier, needed int) bool {
	for {
		if e.satisfies(tier, needed) {
			return true
		}
		if !e.replenishStep(tier, needed) {
			return false
		}
	}
}

// satisfies is replenish's loop-exit condition: the relevant
// free list (large free list for the large tier, small free list for the
// small tier) must directly hold at least `needed` chunks. A large chunk
// broken into small chunks replenishes the small free list through
// replenishStep before this is re-checked, so breaking is still visible
// here on the next iteration.
func (e *Engine) satisfies(tier Tier, needed int) bool {
	if tier == Large {
		return e.largeFreeSz >= int64(needed)
	}
	return e.smallFreeSz >= int64(needed)
}

// replenishStep attempts one strategy step, returning whether progress
// was made, detected by comparing free-list sizes against the snapshot
// taken at the top of the loop iteration.
func (e *Engine) replenishStep(tier Tier, needed int) bool {
	beforeLarge, beforeSmall := e.largeFreeSz, e.smallFreeSz

	if tier == Large {
		if e.grow() {
			return true
		}
		if e.largeFreeSz*e.geo.SmallPerLarge()+e.smallFreeSz >= int64(needed)*e.geo.SmallPerLarge() {
			if e.coalesce() == coalesceFormed {
				return true
			}
		}
		if e.lruEvict(Large, needed) {
			return true
		}
		return beforeLarge != e.largeFreeSz || beforeSmall != e.smallFreeSz
	}

	// Small tier.
	if e.largeFreeSz > 0 {
		parent := e.popLargeFree()
		e.breakLarge(parent)
		return true
	}
	if e.grow() {
		return true
	}
	if e.lruEvict(Small, needed) {
		return true
	}
	return beforeLarge != e.largeFreeSz || beforeSmall != e.smallFreeSz
}
