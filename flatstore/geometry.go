package flatstore

// Geometry is the set of compile-time constants treated as fixed
// for a given region: chunk sizes, growth quantum, and the per-item limits.
// They are engine-instance fields rather than Go consts so that tests can
// exercise small literal geometries (LargeChunkSz=1024,
// SmallChunkSz=128, ...) without recompiling.
type Geometry struct {
	LargeChunkSz   int64
	SmallChunkSz   int64
	IncrementDelta int64
	KeyMaxLength   int
	MaxItemSize    int64
	LRUSearchDepth int
	UpdateInterval int64

	// titleHeaderOverhead/bodyHeaderOverhead model the header bytes a real
	// C union would carve out of the chunk itself. This implementation
	// keeps headers in Go-native side tables (see largeChunkMeta /
	// smallChunkMeta) rather than packing them into the mmapped bytes, but
	// still reserves this much of each chunk's nominal capacity so the
	// payload-capacity arithmetic (and therefore chunks_needed / tiering)
	// matches TITLE_DATA_SZ / BODY_DATA_SZ formulas exactly.
	titleHeaderOverhead     int64
	bodyHeaderOverheadLarge int64
	bodyHeaderOverheadSmall int64
}

// DefaultGeometry returns production-scale sizing: 1MiB large chunks,
// 64KiB small chunks (16 small chunks per large chunk), a 4MiB growth
// quantum, memcached-compatible key/item limits, and the classic
// LRU_SEARCH_DEPTH=50 / ITEM_UPDATE_INTERVAL=60s constants.
func DefaultGeometry() Geometry {
	return Geometry{
		LargeChunkSz:            1 << 20,
		SmallChunkSz:            1 << 16,
		IncrementDelta:          4 << 20,
		KeyMaxLength:            250,
		MaxItemSize:             1 << 20,
		LRUSearchDepth:          50,
		UpdateInterval:          60,
		titleHeaderOverhead:     64,
		bodyHeaderOverheadLarge: 8,
		bodyHeaderOverheadSmall: 16,
	}
}

// SmallPerLarge is LARGE_CHUNK_SZ / SMALL_CHUNK_SZ, i.e.
// SMALL_CHUNKS_PER_LARGE_CHUNK.
func (g Geometry) SmallPerLarge() int64 {
	return g.LargeChunkSz / g.SmallChunkSz
}

func (g Geometry) chunkSz(t Tier) int64 {
	if t == Large {
		return g.LargeChunkSz
	}
	return g.SmallChunkSz
}

// TitleDataSz is TITLE_DATA_SZ[tier]: bytes of payload a title chunk holds.
func (g Geometry) TitleDataSz(t Tier) int64 {
	return g.chunkSz(t) - g.titleHeaderOverhead
}

// BodyDataSz is BODY_DATA_SZ[tier]: bytes of payload a body chunk holds.
func (g Geometry) BodyDataSz(t Tier) int64 {
	if t == Large {
		return g.chunkSz(t) - g.bodyHeaderOverheadLarge
	}
	return g.chunkSz(t) - g.bodyHeaderOverheadSmall
}

// isLargeChunk is is_large_chunk(nkey, nbytes): an item whose key
// plus value does not fit in a single large chunk's title capacity must be
// chained across large chunks; anything that fits uses the small tier
// (chaining as many small chunks as needed). This is memcached's actual
// large-item-support boundary, not a relative size comparison between the
// two tiers.
func (g Geometry) isLargeChunk(nkey int, nbytes int64) bool {
	return int64(nkey)+nbytes > g.TitleDataSz(Large)
}

// TierFor returns the tier an item with the given key/value sizes belongs
// to.
func (g Geometry) TierFor(nkey int, nbytes int64) Tier {
	if g.isLargeChunk(nkey, nbytes) {
		return Large
	}
	return Small
}

// chunksNeeded is chunks_needed(nkey, nbytes, tier).
func (g Geometry) chunksNeeded(nkey int, nbytes int64, t Tier) int {
	total := int64(nkey) + nbytes
	cap0 := g.TitleDataSz(t)
	if total <= cap0 {
		return 1
	}
	capN := g.BodyDataSz(t)
	rest := total - cap0
	n := 1 + int(rest/capN)
	if rest%capN != 0 {
		n++
	}
	return n
}

// validate checks the invariants a region's geometry must satisfy
// before Init proceeds.
func (g Geometry) validate(maxbytes int64) error {
	if g.LargeChunkSz <= 0 || g.SmallChunkSz <= 0 {
		return errInvalidGeometry("chunk sizes must be positive")
	}
	if g.LargeChunkSz%g.SmallChunkSz != 0 {
		return errInvalidGeometry("LARGE_CHUNK_SZ must be a multiple of SMALL_CHUNK_SZ")
	}
	if g.SmallPerLarge() < 2 {
		return errInvalidGeometry("SMALL_CHUNKS_PER_LARGE_CHUNK must be >= 2")
	}
	if g.IncrementDelta <= 0 || g.IncrementDelta%g.LargeChunkSz != 0 {
		return errInvalidGeometry("INCREMENT_DELTA must be a positive multiple of LARGE_CHUNK_SZ")
	}
	if maxbytes <= 0 || maxbytes%g.LargeChunkSz != 0 {
		return errInvalidGeometry("maxbytes must be a positive multiple of LARGE_CHUNK_SZ")
	}
	if maxbytes%g.IncrementDelta != 0 {
		return errInvalidGeometry("maxbytes must be a positive multiple of INCREMENT_DELTA")
	}
	if g.titleHeaderOverhead <= 0 || g.titleHeaderOverhead >= g.SmallChunkSz {
		return errInvalidGeometry("title header overhead does not fit in a small chunk")
	}
	return nil
}
