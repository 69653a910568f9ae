package flatstore

// title returns the mutable item header for handle h, which must
// currently be a title chunk (large or small tier).
func (e *Engine) title(h ChunkIdx) *itemHeader {
	if h.IsSmall() {
		sm := e.smallMeta(h)
		invariant(sm.isTitle && sm.state == smallUsed, "title: %d is not a used small title", h)
		return &sm.title
	}
	lm := e.largeMeta(h)
	invariant(lm.state == largeTitle, "title: %d is not a used large title", h)
	return &lm.title
}

// NKey, NBytes, Flags, Exptime, LastTime, Refcount, ItFlags, HNext are
// read accessors over an item's title header, used by cache/assoc.
func (e *Engine) NKey(h ItemHandle) int        { return int(e.title(h).nkey) }
func (e *Engine) NBytes(h ItemHandle) int64    { return int64(e.title(h).nbytes) }
func (e *Engine) Flags(h ItemHandle) uint32    { return e.title(h).userFlags }
func (e *Engine) Exptime(h ItemHandle) int64   { return e.title(h).exptime }
func (e *Engine) LastTime(h ItemHandle) int64  { return e.title(h).lastTime }
func (e *Engine) Refcount(h ItemHandle) int32  { return e.title(h).refcount }
func (e *Engine) ItFlags(h ItemHandle) byte    { return e.title(h).itFlags }
func (e *Engine) HNext(h ItemHandle) ItemHandle { return e.title(h).hNext }
func (e *Engine) SetHNext(h ItemHandle, v ItemHandle) { e.title(h).hNext = v }
func (e *Engine) Tier(h ItemHandle) Tier        { return tierOf(h) }

// IncRef/DecRef adjust refcount. DecRef saturates at zero.
func (e *Engine) IncRef(h ItemHandle) { e.title(h).refcount++ }
func (e *Engine) DecRef(h ItemHandle) int32 {
	t := e.title(h)
	if t.refcount > 0 {
		t.refcount--
	}
	return t.refcount
}

func (e *Engine) setItFlag(h ItemHandle, f byte, on bool) {
	t := e.title(h)
	if on {
		t.itFlags |= f
	} else {
		t.itFlags &^= f
	}
}

// nextChunkOf returns the next_chunk field of a title or body chunk.
func (e *Engine) nextChunkOf(h ChunkIdx) ChunkIdx {
	if h.IsSmall() {
		sm := e.smallMeta(h)
		if sm.isTitle {
			return sm.title.nextChunk
		}
		return sm.nextChunk
	}
	lm := e.largeMeta(h)
	if lm.state == largeTitle {
		return lm.title.nextChunk
	}
	return lm.body
}

func (e *Engine) setNextChunkOf(h ChunkIdx, next ChunkIdx) {
	if h.IsSmall() {
		sm := e.smallMeta(h)
		if sm.isTitle {
			sm.title.nextChunk = next
		} else {
			sm.nextChunk = next
		}
		return
	}
	lm := e.largeMeta(h)
	if lm.state == largeTitle {
		lm.title.nextChunk = next
	} else {
		lm.body = next
	}
}

// walkSegment is the callback type the item walker invokes per chunk
// overlapped by a [offset, offset+length) window.
type walkSegment func(seg []byte)

// titleDataCap / bodyDataCap return the payload capacity of the title or
// a body chunk for handle h's tier.
func (e *Engine) titleDataCap(t Tier) int64 { return e.geo.TitleDataSz(t) }
func (e *Engine) bodyDataCap(t Tier) int64  { return e.geo.BodyDataSz(t) }

// walk visits the chunk chain starting at item title it, yielding
// (pointer, length) segments for the payload window [offset, offset+n).
// If beyondBoundary is set, the final segment may extend into the chunk's
// unused tail slack (used for stamping timestamp/IP).
func (e *Engine) walk(it ItemHandle, offset, n int64, beyondBoundary bool, fn walkSegment) {
	t := tierOf(it)
	titleCap := e.titleDataCap(t)
	bodyCap := e.bodyDataCap(t)

	cur := it
	curCap := titleCap
	curBase := int64(0) // payload offset where `cur`'s data window starts

	// Advance to the chunk containing `offset`.
	for offset >= curBase+curCap {
		curBase += curCap
		cur = e.nextChunkOf(cur)
		invariant(cur != NoChunk, "walk: offset %d beyond item chain", offset)
		curCap = bodyCap
	}

	remaining := n
	pos := offset
	for remaining > 0 {
		buf := e.payload(cur)
		within := pos - curBase
		avail := curCap - within
		if beyondBoundary {
			avail = int64(len(buf)) - within
		}
		take := remaining
		if take > avail {
			take = avail
		}
		invariant(take > 0, "walk: no room left in chunk %d", cur)
		fn(buf[within : within+take])
		pos += take
		remaining -= take
		if remaining <= 0 {
			break
		}
		curBase += curCap
		cur = e.nextChunkOf(cur)
		invariant(cur != NoChunk, "walk: ran past end of item chain")
		curCap = bodyCap
	}
}

// MemcpyTo copies src into item it's payload starting at offset.
func (e *Engine) MemcpyTo(it ItemHandle, offset int64, src []byte, beyondBoundary bool) {
	i := 0
	e.walk(it, offset, int64(len(src)), beyondBoundary, func(seg []byte) {
		i += copy(seg, src[i:])
	})
}

// MemcpyFrom copies n bytes of item it's payload starting at offset into
// dst.
func (e *Engine) MemcpyFrom(dst []byte, it ItemHandle, offset, n int64, beyondBoundary bool) {
	i := 0
	e.walk(it, offset, n, beyondBoundary, func(seg []byte) {
		i += copy(dst[i:], seg)
	})
}

// KeyCompare is key_compare(it, key, nkey).
func (e *Engine) KeyCompare(it ItemHandle, key []byte) bool {
	nkey := e.NKey(it)
	if nkey != len(key) {
		return false
	}
	equal := true
	i := 0
	e.walk(it, 0, int64(nkey), false, func(seg []byte) {
		for _, b := range seg {
			if b != key[i] {
				equal = false
			}
			i++
		}
	})
	return equal
}

// KeyCopy is key_copy(it, scratch) -> const char*: if the key is
// wholly contained in the title chunk's data area it returns a slice
// pointing directly into the region (no copy); otherwise it flattens the
// key into scratch and returns that.
func (e *Engine) KeyCopy(it ItemHandle, scratch []byte) []byte {
	nkey := e.NKey(it)
	t := tierOf(it)
	if int64(nkey) <= e.titleDataCap(t) {
		return e.payload(it)[:nkey]
	}
	e.MemcpyFrom(scratch[:nkey], it, 0, int64(nkey), false)
	return scratch[:nkey]
}

// stampTail writes the optional 4-byte timestamp and 4-byte IPv4 address
// into the tail slack after key+value, if there's room. Timestamp
// has priority; both are optional and flag-gated. Returns nothing; sets
// ItemHasTimestamp/ItemHasIPAddress on the title as appropriate.
func (e *Engine) stampTail(it ItemHandle, ts uint32, ip [4]byte, haveIP bool) {
	nkey := int64(e.NKey(it))
	nbytes := e.NBytes(it)
	used := nkey + nbytes
	t := tierOf(it)
	total := e.titleDataCap(t)
	needed := e.geo.chunksNeeded(int(nkey), nbytes, t)
	if needed > 1 {
		total += int64(needed-1) * e.bodyDataCap(t)
	}
	slack := total - used

	if slack >= 4 {
		var b [4]byte
		putU32(b[:], ts)
		e.walk(it, used, 4, true, func(seg []byte) {
			copy(seg, b[:])
		})
		e.setItFlag(it, ItemHasTimestamp, true)
		used += 4
		slack -= 4
	}
	if haveIP && slack >= 4 {
		e.walk(it, used, 4, true, func(seg []byte) {
			copy(seg, ip[:])
		})
		e.setItFlag(it, ItemHasIPAddress, true)
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
