package assoc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mactus/memcached/flatstore"
)

func testGeo() flatstore.Geometry {
	geo := flatstore.DefaultGeometry()
	geo.LargeChunkSz = 1024
	geo.SmallChunkSz = 128
	geo.IncrementDelta = 8192
	geo.KeyMaxLength = 250
	geo.MaxItemSize = 1048576
	return geo
}

type zeroClock struct{}

func (zeroClock) Now() int64          { return 0 }
func (zeroClock) OldestLive() int64   { return 0 }
func (zeroClock) DetailEnabled() bool { return false }

func newEngine(t *testing.T) *flatstore.Engine {
	t.Helper()
	e, err := flatstore.Init(1<<20, testGeo(), nil, zeroClock{})
	require.NoError(t, err)
	return e
}

func alloc(t *testing.T, e *flatstore.Engine, key string) flatstore.ItemHandle {
	t.Helper()
	var ip [4]byte
	h, ok := e.Alloc([]byte(key), 0, 0, 4, ip, false, 0)
	require.True(t, ok)
	e.MemcpyTo(h, int64(len(key)), []byte("data"), false)
	return h
}

func TestTable_InsertFindDelete(t *testing.T) {
	e := newEngine(t)
	table := New(e)
	e.SetIndex(table)

	h := alloc(t, e, "alpha")
	table.Insert(h, []byte("alpha"))

	found, ok := table.Find([]byte("alpha"))
	require.True(t, ok)
	require.Equal(t, h, found)

	_, ok = table.Find([]byte("missing"))
	require.False(t, ok)

	table.Delete([]byte("alpha"))
	_, ok = table.Find([]byte("alpha"))
	require.False(t, ok)
	require.EqualValues(t, 0, table.Count())
}

func TestTable_ChainsOnBucketCollision(t *testing.T) {
	e := newEngine(t)
	table := New(e)
	e.SetIndex(table)
	// Start from a single bucket so the keys cannot each get a bucket of
	// their own and must share a chain.
	table.buckets = table.buckets[:1]

	h1 := alloc(t, e, "one")
	h2 := alloc(t, e, "two")
	h3 := alloc(t, e, "three")
	table.Insert(h1, []byte("one"))
	table.Insert(h2, []byte("two"))
	table.Insert(h3, []byte("three"))

	for _, pair := range []struct {
		key string
		h   flatstore.ItemHandle
	}{{"one", h1}, {"two", h2}, {"three", h3}} {
		found, ok := table.Find([]byte(pair.key))
		require.True(t, ok)
		require.Equal(t, pair.h, found)
	}
	require.EqualValues(t, 3, table.Count())
}

func TestTable_GrowsPastLoadFactor(t *testing.T) {
	e := newEngine(t)
	table := New(e)
	e.SetIndex(table)

	const n = initialBuckets * 2
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%d", i)
		h := alloc(t, e, keys[i])
		table.Insert(h, []byte(keys[i]))
	}
	require.Greater(t, len(table.buckets), initialBuckets)
	for _, k := range keys {
		_, ok := table.Find([]byte(k))
		require.True(t, ok, "key %q lost across grow", k)
	}
}

func TestTable_UpdateRebindsChainSlot(t *testing.T) {
	e := newEngine(t)
	table := New(e)
	e.SetIndex(table)

	h1 := alloc(t, e, "moved")
	table.Insert(h1, []byte("moved"))

	// Simulate a migration: a fresh handle holding the same key bytes.
	h2 := alloc(t, e, "moved")

	table.Update(h1, h2)
	found, ok := table.Find([]byte("moved"))
	require.True(t, ok)
	require.Equal(t, h2, found)
}
