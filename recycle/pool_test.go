package recycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool_GetSizesExactly(t *testing.T) {
	p := NewPool()
	for _, n := range []int{0, 1, 63, 64, 65, 1000, 1 << 16} {
		c := p.Get(n)
		require.Len(t, c.Bytes(), n)
		c.Release()
	}
}

func TestPool_GetBeyondMaxClassAllocatesFresh(t *testing.T) {
	p := NewPool()
	n := p.MaxChunkSize() + 1
	c := p.Get(n)
	require.Len(t, c.Bytes(), n)
	require.Nil(t, c.class)
	c.Release() // no class to return to; must not panic
}

func TestPool_ReleaseReusesUnderlyingClass(t *testing.T) {
	p := NewPool()
	c := p.Get(100)
	c.Release()

	c2 := p.Get(100)
	require.Len(t, c2.Bytes(), 100)
	c2.Release()
}

func TestPool_MaxChunkSize(t *testing.T) {
	p := NewPool()
	require.Equal(t, maxChunkSize, p.MaxChunkSize())
}
