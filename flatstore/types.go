// Package flatstore implements the flat storage engine: a fixed-capacity,
// self-managing memory region that is simultaneously the item allocator for
// a key/value cache and the index-free storage backing those items.
//
// The engine is single-writer. Every exported method assumes the caller
// holds whatever serialises access across goroutines (see cache.Cache,
// which is the one caller in this repository); flatstore itself takes no
// locks.
package flatstore

// ChunkIdx is a compact, self-describing identifier for a chunk: either a
// large chunk (a direct index into the region's large-chunk array) or a
// small chunk (the high bit set, carrying a linear small-chunk index).
// NoChunk is the reserved sentinel meaning "none", matching real
// memcached's null-chunk-pointer convention.
type ChunkIdx int32

// ItemHandle identifies an item by the ChunkIdx of its title chunk.
type ItemHandle = ChunkIdx

// NoChunk is the sentinel chunk pointer meaning "none".
const NoChunk ChunkIdx = -1

// smallTierBit marks a ChunkIdx as addressing a small chunk rather than a
// large one. Region sizes realistic for this engine never approach 2^30
// large chunks, so the bit is free for tier discrimination without a
// separate tier tag threaded through every pointer field.
const smallTierBit ChunkIdx = 1 << 30

// smallChunkIdx builds the ChunkIdx for the small chunk at the given linear
// index (parentLargeIdx*SmallPerLarge + slot).
func smallChunkIdx(linear int32) ChunkIdx {
	return ChunkIdx(linear) | smallTierBit
}

// IsSmall reports whether c addresses a small chunk. c must not be NoChunk.
func (c ChunkIdx) IsSmall() bool {
	return c != NoChunk && c&smallTierBit != 0
}

// linear returns the small-chunk linear index encoded in c. c must satisfy
// IsSmall().
func (c ChunkIdx) linear() int32 {
	return int32(c &^ smallTierBit)
}

// Tier identifies the two chunk size classes the allocator serves.
type Tier uint8

const (
	Small Tier = iota
	Large
)

func (t Tier) String() string {
	if t == Large {
		return "large"
	}
	return "small"
}

// tierOf reports the tier that handle h belongs to.
func tierOf(h ChunkIdx) Tier {
	if h.IsSmall() {
		return Small
	}
	return Large
}

// item-level flags (it_flags).
const (
	ItemValid byte = 1 << iota
	ItemLinked
	ItemDeleted
	ItemHasTimestamp
	ItemHasIPAddress
)

// UnlinkReason distinguishes why an item left the LRU/index, matching
// unlink / get_notedeleted semantics.
type UnlinkReason int

const (
	UnlinkNormal UnlinkReason = iota
	UnlinkMaybeEvict
)

// itemHeader is the title record: nkey, nbytes, flags (user), exptime,
// time (last-touch), refcount, it_flags, LRU links, first next_chunk,
// external-index h_next.
type itemHeader struct {
	nkey      uint8
	nbytes    uint32
	itFlags   uint8
	userFlags uint32
	exptime   int64
	lastTime  int64
	refcount  int32
	lruNext   ChunkIdx
	lruPrev   ChunkIdx
	nextChunk ChunkIdx
	hNext     ChunkIdx

	// deleteLockUntil backs the DELETED it_flag: while set and in the
	// future, Get/GetNoteDeleted treat the item as absent.
	deleteLockUntil int64
}
