package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mactus/memcached/assoc"
	"github.com/Mactus/memcached/flatstore"
	"github.com/Mactus/memcached/recycle"
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

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	clock := NewClock()
	engine, err := flatstore.Init(1<<20, testGeo(), nil, clock)
	require.NoError(t, err)
	index := assoc.New(engine)
	engine.SetIndex(index)
	return New(engine, index, clock, recycle.NewPool())
}

func itemWithValue(pool *recycle.Pool, key, value string) Item {
	chunk := pool.Get(len(value))
	copy(chunk.Bytes(), value)
	return Item{
		ItemMeta: ItemMeta{Key: []byte(key), Bytes: len(value)},
		Data:     chunk,
	}
}

func readAll(t *testing.T, r ItemReader) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return buf.Bytes()
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	pool := recycle.NewPool()

	c.Set(itemWithValue(pool, "greeting", "hello world"))

	views := c.Get([]byte("greeting"))
	require.Len(t, views, 1)
	require.Equal(t, "greeting", views[0].Key)
	require.Equal(t, 11, views[0].Bytes)
	require.Equal(t, []byte("hello world"), readAll(t, views[0].Reader))
}

func TestCache_GetMissOmitsView(t *testing.T) {
	c := newTestCache(t)
	views := c.Get([]byte("absent"))
	require.Empty(t, views)
}

func TestCache_SetOverwritesExistingKey(t *testing.T) {
	c := newTestCache(t)
	pool := recycle.NewPool()

	c.Set(itemWithValue(pool, "k", "first"))
	c.Set(itemWithValue(pool, "k", "second-value"))

	views := c.Get([]byte("k"))
	require.Len(t, views, 1)
	require.Equal(t, []byte("second-value"), readAll(t, views[0].Reader))
	require.EqualValues(t, 1, c.Count())
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(t)
	pool := recycle.NewPool()
	c.Set(itemWithValue(pool, "k", "v"))

	require.True(t, c.Delete([]byte("k")))
	require.False(t, c.Delete([]byte("k")))
	require.Empty(t, c.Get([]byte("k")))
}

func TestCache_FlushAllExpiresExistingItems(t *testing.T) {
	c := newTestCache(t)
	pool := recycle.NewPool()
	c.Set(itemWithValue(pool, "k", "v"))
	require.Len(t, c.Get([]byte("k")), 1)

	c.FlushAll(0)

	require.Empty(t, c.Get([]byte("k")))
}

func TestCache_MultipleKeysPreserveOrder(t *testing.T) {
	c := newTestCache(t)
	pool := recycle.NewPool()
	c.Set(itemWithValue(pool, "a", "1"))
	c.Set(itemWithValue(pool, "b", "2"))
	c.Set(itemWithValue(pool, "c", "3"))

	views := c.Get([]byte("a"), []byte("missing"), []byte("c"))
	require.Len(t, views, 2)
	require.Equal(t, "a", views[0].Key)
	require.Equal(t, "c", views[1].Key)
}
