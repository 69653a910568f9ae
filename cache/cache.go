// Package cache wires the flat storage engine and the key->item index
// together behind a single lock, the "cache lock" every core operation
// assumes is held by the caller.
package cache

import (
	"io"
	"sync"

	"github.com/Mactus/memcached/flatstore"
	"github.com/Mactus/memcached/recycle"
)

// Index is the key->item associative index flatstore.Engine calls back
// into. assoc.Table satisfies it.
type Index interface {
	flatstore.Index
}

// Cache is the Handler the connection loop talks to. Every method takes
// the cache lock for its entire body; flatstore.Engine and the index
// implementation take no locks of their own.
type Cache struct {
	mu     sync.Mutex
	engine *flatstore.Engine
	index  Index
	clock  *Clock
	pool   *recycle.Pool
}

// New builds a Cache over an already-initialised engine and index,
// sharing pool for outbound value buffering.
func New(engine *flatstore.Engine, index Index, clock *Clock, pool *recycle.Pool) *Cache {
	return &Cache{engine: engine, index: index, clock: clock, pool: pool}
}

// Set stores i, replacing any existing item under the same key. It
// always releases i.Data back to its pool before returning.
func (c *Cache) Set(i Item) {
	defer i.Data.Release()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	var noIP [4]byte
	h, ok := c.engine.Alloc(i.Key, i.Flags, i.Exptime, int64(i.Bytes), noIP, false, now)
	if !ok {
		// Out of space even after eviction; silently drop, matching
		// memcached's own "server out of memory" SET failure mode.
		return
	}
	c.engine.MemcpyTo(h, int64(len(i.Key)), i.Data.Bytes(), false)

	if old, found := c.index.Find(i.Key); found {
		c.engine.Replace(old, h, i.Key, now)
	} else {
		c.engine.Link(h, i.Key, now)
	}
	// Alloc hands back the item holding its own allocation reference, and
	// linking takes none; release it now that the index and LRU hold the
	// item.
	c.engine.Deref(h)
}

// Get resolves each key and returns a view for every hit, in order. Views
// for misses are simply omitted, per Handler's contract.
func (c *Cache) Get(keys ...[]byte) []ItemView {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	views := make([]ItemView, 0, len(keys))
	for _, key := range keys {
		found, hit := c.index.Find(key)
		h, ok := c.engine.Get(found, hit, now)
		if !ok {
			continue
		}
		scratch := make([]byte, c.engine.NKey(h))
		views = append(views, ItemView{
			Key:    string(c.engine.KeyCopy(h, scratch)),
			Flags:  c.engine.Flags(h),
			Bytes:  int(c.engine.NBytes(h)),
			Reader: &itemReader{cache: c, handle: h},
		})
	}
	return views
}

// Delete removes key's item, if present, and reports whether it was.
func (c *Cache) Delete(key []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, found := c.index.Find(key)
	if !found {
		return false
	}
	c.engine.Unlink(h, flatstore.UnlinkNormal, key)
	return true
}

// FlushAll marks every item touched at or before (now+delaySeconds) as
// expired, per the flush_all protocol command; delaySeconds is 0 for an
// immediate flush. The watermark is enforced lazily by Engine.Get once
// real time reaches it; only an immediate flush also calls
// Engine.FlushExpired.
func (c *Cache) FlushAll(delaySeconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock.Flush(c.clock.Now() + delaySeconds)
	if delaySeconds <= 0 {
		c.engine.FlushExpired()
	}
}

// AllocatorStats renders the flat storage engine's own stat lines.
func (c *Cache) AllocatorStats() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.AllocatorStats(c.clock.Now())
}

// StatsSizes renders the "stats sizes" histogram of item sizes.
func (c *Cache) StatsSizes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.StatsSizes()
}

// Cachedump renders up to limit items of the given tier.
func (c *Cache) Cachedump(tier flatstore.Tier, limit int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Cachedump(tier, limit)
}

// Count is the number of distinct keys currently indexed.
func (c *Cache) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.(interface{ Count() int64 }).Count()
}

// itemReader pins an item's refcount until Close, streaming its value
// bytes through a pooled buffer on WriteTo.
type itemReader struct {
	cache  *Cache
	handle flatstore.ItemHandle
	closed bool
}

func (r *itemReader) WriteTo(w io.Writer) (int64, error) {
	r.cache.mu.Lock()
	nbytes := r.cache.engine.NBytes(r.handle)
	nkey := int64(r.cache.engine.NKey(r.handle))
	chunk := r.cache.pool.Get(int(nbytes))
	r.cache.engine.MemcpyFrom(chunk.Bytes(), r.handle, nkey, nbytes, false)
	r.cache.mu.Unlock()

	n, err := w.Write(chunk.Bytes())
	chunk.Release()
	return int64(n), err
}

func (r *itemReader) Close() error {
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cache.engine.Deref(r.handle)
	return nil
}
