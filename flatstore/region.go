package flatstore

import (
	"golang.org/x/sys/unix"
)

// Index is the external key->item associative index flatstore rebinds
// through during coalescing and consults during link/unlink. Keeping this
// collaborator behind a narrow interface lets the engine stay ignorant of
// how keys are hashed or chained.
type Index interface {
	Find(key []byte) (ItemHandle, bool)
	Insert(h ItemHandle, key []byte)
	Delete(key []byte)
	// Update atomically rebinds the index entry that resolved to old so
	// that it resolves to new instead. Called only by the coalescer.
	Update(old, new ItemHandle)
}

// Clock supplies the read-only environmental scalars the engine needs:
// current_time, settings.oldest_live, settings.detail_enabled.
type Clock interface {
	Now() int64
	OldestLive() int64
	DetailEnabled() bool
}

// largeChunkMeta is the Go-native side-table record for one large chunk,
// standing in for the tagged union a C implementation would use: state
// selects which of the fields below are meaningful, and every state
// transition pairs the state change with rewriting the right fields (see
// chunk.go / alloc.go / coalesce.go).
type largeChunkMeta struct {
	initialized bool
	state       largeState

	freeNext ChunkIdx // FREE

	title itemHeader // state == largeTitle
	body  ChunkIdx   // state == largeBody: next_chunk

	allocated int32 // state == largeBroken: small_chunks_allocated[parent]
}

type largeState uint8

const (
	largeFree largeState = iota
	largeTitle
	largeBody
	largeBroken
)

type smallState uint8

const (
	smallFree smallState = iota
	smallUsed
	smallCoalescePending
)

// smallChunkMeta is the side-table record for one small chunk of a broken
// large chunk.
type smallChunkMeta struct {
	initialized bool
	state       smallState
	isTitle     bool

	freeNext ChunkIdx // FREE: next node
	freePrev ChunkIdx // FREE: NoChunk means "predecessor is the free-list head variable itself"

	title itemHeader // isTitle

	prevChunk ChunkIdx // body: predecessor in the item chain
	nextChunk ChunkIdx // body: successor in the item chain
}

// Engine is the flat storage engine: the single owner of the mmapped
// region, both free lists, the LRU, and the broken-chunk histogram.
// Every method assumes single-writer access; callers serialize.
type Engine struct {
	geo Geometry

	region              []byte
	uninitializedStart  int64
	unusedMemory        int64
	numLarge            int32

	large []largeChunkMeta
	small []smallChunkMeta // linear index parentIdx*SmallPerLarge + slot

	largeFreeHead ChunkIdx
	largeFreeSz   int64
	smallFreeHead ChunkIdx
	smallFreeSz   int64

	// brokenHistogram[k] = number of broken parents with allocated == k,
	// k in [0, SmallPerLarge].
	brokenHistogram []int64

	lruHead ChunkIdx
	lruTail ChunkIdx

	index Index
	clock Clock

	Stats EngineStats
}

// EngineStats are the allocator-side counters the "stats" text
// format names: break_events, unbreak_events, migrates.
type EngineStats struct {
	BreakEvents      int64
	UnbreakEvents    int64
	Migrates         int64
	CurrItems        int64
	TotalItems       int64
	Evictions        int64
	ExpiredUnfetched int64
}

// Init reserves an anonymous, private, read-write mapping of maxbytes
// bytes, then grows once so the large free list is non-empty before the
// first allocation. maxbytes must be a positive multiple of both
// geo.LargeChunkSz and geo.IncrementDelta; violation is a
// configuration-fatal error.
func Init(maxbytes int64, geo Geometry, index Index, clock Clock) (*Engine, error) {
	if err := geo.validate(maxbytes); err != nil {
		return nil, err
	}

	region, err := unix.Mmap(-1, 0, int(maxbytes), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errInvalidGeometry("mmap failed: " + err.Error())
	}

	numLarge := maxbytes / geo.LargeChunkSz
	e := &Engine{
		geo:                geo,
		region:             region,
		uninitializedStart: 0,
		unusedMemory:       maxbytes,
		numLarge:           int32(numLarge),
		large:              make([]largeChunkMeta, numLarge),
		small:              make([]smallChunkMeta, numLarge*geo.SmallPerLarge()),
		largeFreeHead:      NoChunk,
		smallFreeHead:      NoChunk,
		brokenHistogram:    make([]int64, geo.SmallPerLarge()+1),
		lruHead:            NoChunk,
		lruTail:             NoChunk,
		index:              index,
		clock:              clock,
	}
	e.brokenHistogram[0] = 0

	if !e.grow() {
		return nil, errInvalidGeometry("increment delta exceeds maxbytes on first grow")
	}
	return e, nil
}

// grow attempts to lazily initialise exactly IncrementDelta/LargeChunkSz
// more large chunks, pushing each onto the large free list. It fails iff
// IncrementDelta > unusedMemory.
func (e *Engine) grow() bool {
	if e.geo.IncrementDelta > e.unusedMemory {
		return false
	}
	n := e.geo.IncrementDelta / e.geo.LargeChunkSz
	start := e.uninitializedStart / e.geo.LargeChunkSz
	for i := int64(0); i < n; i++ {
		idx := ChunkIdx(start + i)
		e.large[idx].initialized = true
		e.pushLargeFree(idx)
	}
	e.uninitializedStart += e.geo.IncrementDelta
	e.unusedMemory -= e.geo.IncrementDelta
	return true
}

// UnusedMemory is the unused_memory stat: bytes never yet touched by grow.
func (e *Engine) UnusedMemory() int64 { return e.unusedMemory }

// SetIndex binds the external index after construction, for callers whose
// index implementation itself needs a reference to this Engine (assoc.New
// does) and so cannot exist before Init returns.
func (e *Engine) SetIndex(index Index) { e.index = index }

// payload returns the byte slice backing chunk h's stored data. For small
// chunks this is the sub-slice of its parent large chunk's region.
func (e *Engine) payload(h ChunkIdx) []byte {
	if h.IsSmall() {
		linear := int64(h.linear())
		spl := e.geo.SmallPerLarge()
		parent := linear / spl
		slot := linear % spl
		base := parent*e.geo.LargeChunkSz + slot*e.geo.SmallChunkSz
		return e.region[base : base+e.geo.SmallChunkSz]
	}
	base := int64(h) * e.geo.LargeChunkSz
	return e.region[base : base+e.geo.LargeChunkSz]
}

func (e *Engine) largeMeta(h ChunkIdx) *largeChunkMeta {
	return &e.large[int32(h)]
}

func (e *Engine) smallMeta(h ChunkIdx) *smallChunkMeta {
	return &e.small[h.linear()]
}

func (e *Engine) parentOf(small ChunkIdx) ChunkIdx {
	return ChunkIdx(int64(small.linear()) / e.geo.SmallPerLarge())
}
