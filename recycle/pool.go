// Package recycle provides a size-classed pool of reusable byte buffers
// for connection I/O, so that reading an item's data block does not
// allocate on every SET command.
package recycle

import "sync"

const (
	minChunkSize = 64
	maxChunkSize = 1 << 20
	growFactor   = 4
)

// Chunk is a pooled buffer on loan from a Pool. Release must be called
// exactly once, after the caller is done with Bytes.
type Chunk struct {
	buf   []byte
	class *class
}

// Bytes is the loaned buffer, sized to exactly the length requested from
// Pool.Get.
func (c *Chunk) Bytes() []byte { return c.buf }

// Release returns the buffer to its size class. A Chunk obtained for a
// size larger than the pool's biggest class has no class and is left for
// the garbage collector.
func (c *Chunk) Release() {
	if c.class != nil {
		c.class.pool.Put(c.buf[:cap(c.buf)]) //nolint:staticcheck
	}
}

type class struct {
	size int
	pool *sync.Pool
}

// Pool is a fixed ladder of geometrically sized buffer classes, in the
// vein of a slab allocator: each class owns its own free list, chosen by
// rounding a request up to the smallest class that fits it.
type Pool struct {
	classes []class
}

// NewPool builds the default pool, geometrically sized from 64 bytes up
// to 1 MiB by a factor of 4. Each class's free list is a sync.Pool, which
// is the stdlib's own size-oblivious slab allocator and needs no bespoke
// locking here.
func NewPool() *Pool {
	p := &Pool{}
	for size := minChunkSize; size <= maxChunkSize; size *= growFactor {
		sz := size
		p.classes = append(p.classes, class{
			size: sz,
			pool: &sync.Pool{New: func() interface{} { return make([]byte, sz) }},
		})
	}
	return p
}

// MaxChunkSize is the largest size a Get call can satisfy from a pooled
// class rather than a fresh allocation.
func (p *Pool) MaxChunkSize() int { return p.classes[len(p.classes)-1].size }

// Get returns a Chunk whose Bytes() has length n, backed by the smallest
// class that fits n, or a fresh slice if n exceeds every class.
func (p *Pool) Get(n int) *Chunk {
	for i := range p.classes {
		if p.classes[i].size >= n {
			buf := p.classes[i].pool.Get().([]byte)
			return &Chunk{buf: buf[:n], class: &p.classes[i]}
		}
	}
	return &Chunk{buf: make([]byte, n)}
}
