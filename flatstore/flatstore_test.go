package flatstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeIndex is a trivial in-memory stand-in for the external key->item
// index, sufficient to exercise every flatstore operation that calls
// back into it.
type fakeIndex struct {
	byKey map[string]ItemHandle
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{byKey: make(map[string]ItemHandle)}
}

func (f *fakeIndex) Find(key []byte) (ItemHandle, bool) {
	h, ok := f.byKey[string(key)]
	return h, ok
}

func (f *fakeIndex) Insert(h ItemHandle, key []byte) {
	f.byKey[string(key)] = h
}

func (f *fakeIndex) Delete(key []byte) {
	delete(f.byKey, string(key))
}

func (f *fakeIndex) Update(old, new ItemHandle) {
	for k, h := range f.byKey {
		if h == old {
			f.byKey[k] = new
			return
		}
	}
}

// fakeClock is a directly-settable Clock for deterministic tests.
type fakeClock struct {
	now        int64
	oldestLive int64
	detail     bool
}

func (c *fakeClock) Now() int64          { return c.now }
func (c *fakeClock) OldestLive() int64   { return c.oldestLive }
func (c *fakeClock) DetailEnabled() bool { return c.detail }

// literalGeometry is literal example geometry: small enough
// that its end-to-end scenarios can be driven directly.
func literalGeometry() Geometry {
	geo := DefaultGeometry()
	geo.LargeChunkSz = 1024
	geo.SmallChunkSz = 128
	geo.IncrementDelta = 8192
	geo.KeyMaxLength = 250
	geo.MaxItemSize = 1048576
	return geo
}

func newTestEngine(t *testing.T, maxbytes int64) (*Engine, *fakeIndex, *fakeClock) {
	t.Helper()
	index := newFakeIndex()
	clock := &fakeClock{oldestLive: -1}
	e, err := Init(maxbytes, literalGeometry(), index, clock)
	require.NoError(t, err)
	return e, index, clock
}

// setAndLink is the test helper shape of a full "set": alloc, write the
// value, link, then release the allocation's own hold (mirroring
// cache.Cache.Set, which owns that reference only until link completes).
func setAndLink(t *testing.T, e *Engine, index *fakeIndex, clock *fakeClock, key string, value []byte) ItemHandle {
	t.Helper()
	var ip [4]byte
	h, ok := e.Alloc([]byte(key), 0, 0, int64(len(value)), ip, false, clock.now)
	require.True(t, ok, "alloc failed for key %q", key)
	e.MemcpyTo(h, int64(len(key)), value, false)
	if old, found := index.Find([]byte(key)); found {
		e.Replace(old, h, []byte(key), clock.now)
	} else {
		e.Link(h, []byte(key), clock.now)
	}
	e.Deref(h)
	return h
}

func readValue(t *testing.T, e *Engine, h ItemHandle) []byte {
	t.Helper()
	nkey := e.NKey(h)
	nbytes := e.NBytes(h)
	buf := make([]byte, nbytes)
	e.MemcpyFrom(buf, h, int64(nkey), nbytes, false)
	return buf
}

// Scenario 1: lazy init.
func TestInit_LazyInit(t *testing.T) {
	e, _, _ := newTestEngine(t, 16384)
	require.EqualValues(t, 8192, e.UnusedMemory())
	require.EqualValues(t, 8, e.freeListSize(Large))
	require.EqualValues(t, 0, e.freeListSize(Small))
}

// Scenario 2: break on small demand.
func TestAlloc_BreaksLargeOnSmallDemand(t *testing.T) {
	e, index, clock := newTestEngine(t, 16384)
	beforeLarge := e.freeListSize(Large)

	h := setAndLink(t, e, index, clock, "k", []byte("0123456789"))
	require.Equal(t, Small, e.Tier(h))

	require.EqualValues(t, beforeLarge-1, e.freeListSize(Large))
	require.EqualValues(t, e.geo.SmallPerLarge()-1, e.freeListSize(Small))
	require.EqualValues(t, 1, e.Stats.BreakEvents)
}

// Scenario 3: evict under pressure.
func TestEvict_ReclaimsLargeChunksUnderPressure(t *testing.T) {
	e, index, clock := newTestEngine(t, 16384)

	// Fill with small items until the region is saturated.
	filled := 0
	for e.UnusedMemory() > 0 || e.freeListSize(Large) > 0 || e.freeListSize(Small) > 0 {
		key := "fill-" + itoa(filled)
		hh := setAndLinkMaybe(e, index, clock, key, make([]byte, 10))
		if hh == NoChunk {
			break
		}
		filled++
		require.LessOrEqual(t, filled, 4096, "region never saturated")
	}

	require.Zero(t, e.freeListSize(Large))

	var ip [4]byte
	big := int64(3 * e.geo.LargeChunkSz)
	_, ok := e.Alloc([]byte("big"), 0, 0, big, ip, false, clock.now)
	require.True(t, ok, "large alloc should succeed by evicting")

	// Some of the early fill- keys must have been evicted to make room.
	evicted := 0
	for j := 0; j < filled; j++ {
		if _, found := index.Find([]byte("fill-" + itoa(j))); !found {
			evicted++
		}
	}
	require.Greater(t, evicted, 0)
}

func setAndLinkMaybe(e *Engine, index *fakeIndex, clock *fakeClock, key string, value []byte) ItemHandle {
	var ip [4]byte
	h, ok := e.Alloc([]byte(key), 0, 0, int64(len(value)), ip, false, clock.now)
	if !ok {
		return NoChunk
	}
	e.MemcpyTo(h, int64(len(key)), value, false)
	e.Link(h, []byte(key), clock.now)
	e.Deref(h)
	return h
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Scenario 4: coalesce restores large capacity.
func TestCoalesce_RestoresLargeCapacity(t *testing.T) {
	e, index, clock := newTestEngine(t, 1 << 20)

	const n = 300
	for i := 0; i < n; i++ {
		setAndLink(t, e, index, clock, "k-"+itoa(i), []byte("0123456789"))
	}
	for i := 0; i < n; i += 3 {
		key := []byte("k-" + itoa(i))
		h, found := index.Find(key)
		require.True(t, found)
		e.Unlink(h, UnlinkNormal, key)
	}

	before := e.Stats.UnbreakEvents
	result := e.coalesce()
	require.Equal(t, coalesceFormed, result)
	require.Greater(t, e.Stats.UnbreakEvents, before)
}

// Scenario 6: stamp slack.
func TestStampTail_SlackBoundaries(t *testing.T) {
	e, index, clock := newTestEngine(t, 16384)

	titleCap := e.geo.TitleDataSz(Small)

	// Exactly 8 bytes slack: both timestamp and IP.
	nbytes := titleCap - 10 - 8
	h := setAndLink(t, e, index, clock, "aaaaaaaaaa"[:10], make([]byte, nbytes))
	_ = h
	hh, found := index.Find([]byte("aaaaaaaaaa"[:10]))
	require.True(t, found)
	var ip [4]byte
	e.stampTail(hh, 42, ip, true)
	require.NotZero(t, e.ItFlags(hh)&ItemHasTimestamp)
	require.NotZero(t, e.ItFlags(hh)&ItemHasIPAddress)
}

// Round trip + LRU head ordering + refcount safety check.
func TestRoundTrip_ValueAndLRUHead(t *testing.T) {
	e, index, clock := newTestEngine(t, 16384)

	h1 := setAndLink(t, e, index, clock, "a", []byte("hello"))
	require.Equal(t, h1, e.LRUHead())

	h2 := setAndLink(t, e, index, clock, "b", []byte("world"))
	require.Equal(t, h2, e.LRUHead())

	require.Equal(t, []byte("hello"), readValue(t, e, h1))
	require.Equal(t, []byte("world"), readValue(t, e, h2))
	require.True(t, e.KeyCompare(h1, []byte("a")))
	require.False(t, e.KeyCompare(h1, []byte("b")))

	e.IncRef(h1)
	e.Unlink(h1, UnlinkMaybeEvict, []byte("a"))
	require.EqualValues(t, 1, e.Refcount(h1), "held item must survive unlink")
	e.Deref(h1)
}

func TestAlloc_RejectsOversizeInput(t *testing.T) {
	e, _, clock := newTestEngine(t, 16384)
	var ip [4]byte

	_, ok := e.Alloc(make([]byte, e.geo.KeyMaxLength+1), 0, 0, 1, ip, false, clock.now)
	require.False(t, ok)

	_, ok = e.Alloc([]byte("k"), 0, 0, e.geo.MaxItemSize+1, ip, false, clock.now)
	require.False(t, ok)
}

func TestAlloc_KeyAndSizeBoundaries(t *testing.T) {
	e, _, clock := newTestEngine(t, 16384)
	var ip [4]byte

	h, ok := e.Alloc([]byte("k"), 0, 0, 0, ip, false, clock.now)
	require.True(t, ok)
	require.EqualValues(t, 0, e.NBytes(h))

	// A key+value at the tier's exact limits needs its own, larger region:
	// MaxItemSize alone dwarfs the scenario-sized 16KiB engine above.
	big, _, clock2 := newTestEngine(t, 2<<20)
	h2, ok := big.Alloc(make([]byte, big.geo.KeyMaxLength), 0, 0, big.geo.MaxItemSize, ip, false, clock2.now)
	require.True(t, ok)
	require.Equal(t, Large, big.Tier(h2))
}

func TestTierFor_BoundaryBothSides(t *testing.T) {
	geo := literalGeometry()
	titleCap := geo.TitleDataSz(Large)

	require.Equal(t, Small, geo.TierFor(1, titleCap-1))
	require.Equal(t, Large, geo.TierFor(1, titleCap))
}
