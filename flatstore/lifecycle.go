package flatstore

// Link is link(it, key): requires VALID and not LINKED.
func (e *Engine) Link(it ItemHandle, key []byte, now int64) {
	t := e.title(it)
	invariant(t.itFlags&ItemValid != 0, "Link: %d not VALID", it)
	invariant(t.itFlags&ItemLinked == 0, "Link: %d already LINKED", it)

	t.itFlags |= ItemLinked
	t.lastTime = now
	e.index.Insert(it, key)
	e.Stats.CurrItems++
	e.Stats.TotalItems++
	e.linkQ(it)
}

// Unlink is unlink(it, flags, key). If key is nil the key is
// flattened via the walker into a scratch buffer. A no-op unless it is
// currently LINKED.
func (e *Engine) Unlink(it ItemHandle, reason UnlinkReason, key []byte) {
	t := e.title(it)
	if t.itFlags&ItemLinked == 0 {
		return
	}

	if key == nil {
		scratch := make([]byte, e.NKey(it))
		key = e.KeyCopy(it, scratch)
	}

	if reason == UnlinkMaybeEvict {
		expired := t.exptime != 0 && t.exptime <= e.clock.Now()
		if expired {
			e.Stats.ExpiredUnfetched++
		} else {
			e.Stats.Evictions++
		}
	}

	t.itFlags &^= ItemLinked
	e.Stats.CurrItems--
	e.index.Delete(key)
	t.hNext = NoChunk
	e.unlinkQ(it)
	if t.refcount == 0 {
		e.free(it)
	}
}

// Update is update(it): see lru.go's UpdateLRU for the staleness
// gate.
func (e *Engine) Update(it ItemHandle, now int64) {
	e.UpdateLRU(it, now)
}

// Replace is replace(old, new, key): unlink(old) then link(new).
func (e *Engine) Replace(old, new ItemHandle, key []byte, now int64) {
	e.Unlink(old, UnlinkNormal, key)
	e.Link(new, key, now)
}

// Deref is deref(it): decrement refcount (saturating at 0); if
// it reaches zero and the item is no longer linked, free it.
func (e *Engine) Deref(it ItemHandle) {
	left := e.DecRef(it)
	if left == 0 && e.title(it).itFlags&ItemLinked == 0 {
		e.free(it)
	}
}

// Get is get(key, nkey): resolves via the external index,
// evicting on global flush or expiry, otherwise incrementing refcount.
func (e *Engine) Get(it ItemHandle, found bool, now int64) (ItemHandle, bool) {
	if !found {
		return NoChunk, false
	}
	t := e.title(it)
	if t.itFlags&ItemDeleted != 0 && t.deleteLockUntil > now {
		return NoChunk, false
	}
	oldestLive := e.clock.OldestLive()
	if (oldestLive <= now && t.lastTime <= oldestLive) || (t.exptime != 0 && t.exptime <= now) {
		e.Unlink(it, UnlinkNormal, nil)
		return NoChunk, false
	}
	e.IncRef(it)
	return it, true
}

// GetNoteDeleted is get_notedeleted: like Get, but reports
// whether the miss was due to an unexpired delete lock.
func (e *Engine) GetNoteDeleted(it ItemHandle, found bool, now int64) (h ItemHandle, ok bool, deleteLocked bool) {
	if !found {
		return NoChunk, false, false
	}
	t := e.title(it)
	if t.itFlags&ItemDeleted != 0 && t.deleteLockUntil > now {
		return NoChunk, false, true
	}
	h, ok = e.Get(it, found, now)
	return h, ok, false
}

// GetNoCheck is get_nocheck: resolves via the index with no
// delete-lock or expiry checks.
func (e *Engine) GetNoCheck(it ItemHandle, found bool) (ItemHandle, bool) {
	if !found {
		return NoChunk, false
	}
	return it, true
}

// MarkDeleted flags it DELETED with a delete lock expiring at lockUntil.
// The protocol's "delete" command does not call it. The item remains linked
// until the caller separately unlinks it; Get/GetNoteDeleted treat it as
// absent until the lock expires.
func (e *Engine) MarkDeleted(it ItemHandle, lockUntil int64) {
	t := e.title(it)
	t.itFlags |= ItemDeleted
	t.deleteLockUntil = lockUntil
}

// FlushExpired traverses the LRU from head, unlinking every item touched
// at or after settings.oldest_live, and stops at the first item touched
// before it. Items older than the watermark are left in place; Get expires
// them lazily on their next access. Stopping early is correct because
// items are always inserted at the LRU head — the list stays ordered by
// time descending from head, so once an older item is found, every item
// behind it is older too.
func (e *Engine) FlushExpired() {
	oldestLive := e.clock.OldestLive()
	cur := e.lruHead
	for cur != NoChunk && e.title(cur).lastTime >= oldestLive {
		next := e.title(cur).lruNext
		e.Unlink(cur, UnlinkNormal, nil)
		cur = next
	}
}

// free is free(it): requires refcount==0, unlinked from both
// the LRU and the index. Walks the chunk chain, pushing each body (with
// try_merge=true in the small tier, false in the large tier) and finally
// the title.
func (e *Engine) free(it ItemHandle) {
	t := e.title(it)
	invariant(t.refcount == 0, "free: %d has refcount %d", it, t.refcount)
	invariant(t.lruNext == NoChunk && t.lruPrev == NoChunk, "free: %d still in LRU", it)
	invariant(t.hNext == NoChunk, "free: %d still chained in index", it)

	tryMerge := tierOf(it) == Small

	cur := e.nextChunkOf(it)
	for cur != NoChunk {
		next := e.nextChunkOf(cur)
		e.pushFree(cur, tryMerge)
		cur = next
	}
	e.pushFree(it, tryMerge)
}

// SizeOk is size_ok(nkey, flags, nbytes) -> bool.
func (e *Engine) SizeOk(nkey int, nbytes int64) bool {
	return nkey <= e.geo.KeyMaxLength && nbytes <= e.geo.MaxItemSize
}

// NeedRealloc is need_realloc(it, new_nkey, new_flags,
// new_nbytes) -> bool: true when the item's existing chain could not
// hold the new size in place (tier changed, or chunk count changed).
func (e *Engine) NeedRealloc(it ItemHandle, newNKey int, newNBytes int64) bool {
	newTier := e.geo.TierFor(newNKey, newNBytes)
	if newTier != tierOf(it) {
		return true
	}
	newNeeded := e.geo.chunksNeeded(newNKey, newNBytes, newTier)
	have := 1
	cur := e.nextChunkOf(it)
	for cur != NoChunk {
		have++
		cur = e.nextChunkOf(cur)
	}
	return newNeeded != have
}
