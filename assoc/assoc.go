// Package assoc implements the external key->item associative index kept
// out of the flat storage engine's core: a mapping from (key bytes, nkey)
// to item handles, with separate chaining through the h_next field the
// engine stores inside each item's title.
//
// Table satisfies flatstore.Index. It is not safe for concurrent use;
// cache.Cache serialises every call under the cache lock.
package assoc

import (
	"github.com/Mactus/memcached/flatstore"
)

const (
	initialBuckets = 1 << 10
	growLoadFactor = 1.5
)

// Table is a separate-chaining hash table over item handles, grounded in
// the classic memcached assoc.c design: power-of-two bucket count,
// doubled when the load factor grows too high.
type Table struct {
	engine  *flatstore.Engine
	buckets []flatstore.ItemHandle
	count   int64
}

// New creates a Table backed by engine. engine must be fully initialised
// (flatstore.Init already called) before Find/Insert/Delete/Update run,
// since the table reads and writes the engine's title records.
func New(engine *flatstore.Engine) *Table {
	t := &Table{engine: engine}
	t.buckets = make([]flatstore.ItemHandle, initialBuckets)
	for i := range t.buckets {
		t.buckets[i] = flatstore.NoChunk
	}
	return t
}

func (t *Table) bucketFor(key []byte) int {
	return int(hash(key) & uint64(len(t.buckets)-1))
}

// Find is assoc_find(key, nkey).
func (t *Table) Find(key []byte) (flatstore.ItemHandle, bool) {
	for cur := t.buckets[t.bucketFor(key)]; cur != flatstore.NoChunk; cur = t.engine.HNext(cur) {
		if t.engine.KeyCompare(cur, key) {
			return cur, true
		}
	}
	return flatstore.NoChunk, false
}

// Insert is assoc_insert: prepends h to the bucket chain for key.
func (t *Table) Insert(h flatstore.ItemHandle, key []byte) {
	if float64(t.count+1) > growLoadFactor*float64(len(t.buckets)) {
		t.grow()
	}
	b := t.bucketFor(key)
	t.engine.SetHNext(h, t.buckets[b])
	t.buckets[b] = h
	t.count++
}

// Delete is assoc_delete(key, nkey): splices the matching handle out of
// its bucket chain.
func (t *Table) Delete(key []byte) {
	b := t.bucketFor(key)
	prev := flatstore.NoChunk
	for cur := t.buckets[b]; cur != flatstore.NoChunk; cur = t.engine.HNext(cur) {
		if t.engine.KeyCompare(cur, key) {
			next := t.engine.HNext(cur)
			if prev == flatstore.NoChunk {
				t.buckets[b] = next
			} else {
				t.engine.SetHNext(prev, next)
			}
			t.engine.SetHNext(cur, flatstore.NoChunk)
			t.count--
			return
		}
		prev = cur
	}
}

// Update is assoc_update(old, new): the coalescer's atomic rebind. It
// splices new into the exact chain slot old occupied, using old's
// already-migrated key bytes for the bucket lookup (the migration that
// triggers this call has already byte-copied the key into new's chunk).
func (t *Table) Update(old, new flatstore.ItemHandle) {
	scratch := make([]byte, t.engine.NKey(new))
	key := t.engine.KeyCopy(new, scratch)
	b := t.bucketFor(key)
	if t.buckets[b] == old {
		t.buckets[b] = new
		return
	}
	for cur := t.buckets[b]; cur != flatstore.NoChunk; cur = t.engine.HNext(cur) {
		if t.engine.HNext(cur) == old {
			t.engine.SetHNext(cur, new)
			return
		}
	}
}

func (t *Table) grow() {
	old := t.buckets
	t.buckets = make([]flatstore.ItemHandle, len(old)*2)
	for i := range t.buckets {
		t.buckets[i] = flatstore.NoChunk
	}
	for _, head := range old {
		for cur := head; cur != flatstore.NoChunk; {
			next := t.engine.HNext(cur)
			scratch := make([]byte, t.engine.NKey(cur))
			key := t.engine.KeyCopy(cur, scratch)
			b := t.bucketFor(key)
			t.engine.SetHNext(cur, t.buckets[b])
			t.buckets[b] = cur
			cur = next
		}
	}
}

// Count is the number of entries currently indexed.
func (t *Table) Count() int64 { return t.count }

// hash is FNV-1a, matching the simple non-cryptographic hash idiom the
// pack's cache implementations (e.g. lightpaw-slab, ecache) reach for.
func hash(key []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, b := range key {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}
