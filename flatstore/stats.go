package flatstore

import (
	"fmt"
	"sort"
	"strings"
)

const cachedumpCap = 2 << 20 // 2 MiB.

// AllocatorStats renders the allocator's "stats" command reply: chunk
// sizes, chunk-population counters, the per-occupancy broken-chunk
// histogram, break/unbreak/migrate counters, unused memory, both
// free-list sizes, and the oldest item's lifetime in seconds.
func (e *Engine) AllocatorStats(now int64) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "STAT large_chunk_sz %d\r\n", e.geo.LargeChunkSz)
	fmt.Fprintf(&sb, "STAT small_chunk_sz %d\r\n", e.geo.SmallChunkSz)

	var freeLarge, titleLarge, bodyLarge, brokenLarge int64
	for i := range e.large {
		if !e.large[i].initialized {
			continue
		}
		switch e.large[i].state {
		case largeFree:
			freeLarge++
		case largeTitle:
			titleLarge++
		case largeBody:
			bodyLarge++
		case largeBroken:
			brokenLarge++
		}
	}
	fmt.Fprintf(&sb, "STAT large_chunks_free %d\r\n", freeLarge)
	fmt.Fprintf(&sb, "STAT large_chunks_title %d\r\n", titleLarge)
	fmt.Fprintf(&sb, "STAT large_chunks_body %d\r\n", bodyLarge)
	fmt.Fprintf(&sb, "STAT large_chunks_broken %d\r\n", brokenLarge)

	for k, count := range e.brokenHistogramSnapshot() {
		fmt.Fprintf(&sb, "STAT broken_chunks_at_%d %d\r\n", k, count)
	}

	fmt.Fprintf(&sb, "STAT break_events %d\r\n", e.Stats.BreakEvents)
	fmt.Fprintf(&sb, "STAT unbreak_events %d\r\n", e.Stats.UnbreakEvents)
	fmt.Fprintf(&sb, "STAT migrates %d\r\n", e.Stats.Migrates)
	fmt.Fprintf(&sb, "STAT unused_memory %d\r\n", e.unusedMemory)
	fmt.Fprintf(&sb, "STAT large_free_list_sz %d\r\n", e.largeFreeSz)
	fmt.Fprintf(&sb, "STAT small_free_list_sz %d\r\n", e.smallFreeSz)
	fmt.Fprintf(&sb, "STAT oldest_item_lifetime %d\r\n", e.oldestItemLifetime(now))
	sb.WriteString("END\r\n")
	return []byte(sb.String())
}

// oldestItemLifetime is now minus the LRU tail's last-touch time, or 0 if
// the cache is empty.
func (e *Engine) oldestItemLifetime(now int64) int64 {
	if e.lruTail == NoChunk {
		return 0
	}
	age := now - e.title(e.lruTail).lastTime
	if age < 0 {
		return 0
	}
	return age
}

// StatsSizes walks the LRU exactly once, tallying item count by total
// payload size (nkey+nbytes). Real memcached's equivalent code walks the
// same LRU twice, once per tier's title variant, and double-counts every
// item; this counts each item once.
func (e *Engine) StatsSizes() []byte {
	counts := make(map[int64]int64)
	for cur := e.lruHead; cur != NoChunk; cur = e.title(cur).lruNext {
		size := int64(e.NKey(cur)) + e.NBytes(cur)
		counts[size]++
	}
	sizes := make([]int64, 0, len(counts))
	for size := range counts {
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	var sb strings.Builder
	for _, size := range sizes {
		fmt.Fprintf(&sb, "%d %d\r\n", size, counts[size])
	}
	sb.WriteString("END\r\n")
	return []byte(sb.String())
}

// Cachedump renders up to `limit` items of the given tier (0 = no limit)
// as "ITEM <key> [<nbytes> b; <absolute_time> s]\r\n" lines, capped at 2
// MiB total, terminated by "END\r\n".
func (e *Engine) Cachedump(tier Tier, limit int) []byte {
	var sb strings.Builder
	scratch := make([]byte, e.geo.KeyMaxLength)
	n := 0
	for cur := e.lruHead; cur != NoChunk; cur = e.title(cur).lruNext {
		if tierOf(cur) != tier {
			continue
		}
		key := e.KeyCopy(cur, scratch)
		line := fmt.Sprintf("ITEM %s [%d b; %d s]\r\n", key, e.NBytes(cur), e.Exptime(cur))
		if sb.Len()+len(line) > cachedumpCap {
			break
		}
		sb.WriteString(line)
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	sb.WriteString("END\r\n")
	return []byte(sb.String())
}
