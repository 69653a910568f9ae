package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStats_ConnectionCounters(t *testing.T) {
	s := New()
	s.ConnectionOpened()
	s.ConnectionOpened()
	s.ConnectionClosed()

	out := string(s.Render())
	require.Contains(t, out, "STAT curr_connections 1\r\n")
	require.Contains(t, out, "STAT total_connections 2\r\n")
}

func TestStats_CommandCounters(t *testing.T) {
	s := New()
	s.CmdGet(3)
	s.CmdGet(2)
	s.CmdSet()
	s.GetHit()
	s.GetHit()
	s.GetMiss()
	s.DeleteHit()
	s.DeleteMiss()
	s.DeleteMiss()

	out := string(s.Render())
	require.Contains(t, out, "STAT cmd_get 5\r\n")
	require.Contains(t, out, "STAT cmd_set 1\r\n")
	require.Contains(t, out, "STAT get_hits 2\r\n")
	require.Contains(t, out, "STAT get_misses 1\r\n")
	require.Contains(t, out, "STAT delete_hits 1\r\n")
	require.Contains(t, out, "STAT delete_misses 2\r\n")
}

func TestStats_RenderEndsWithEnd(t *testing.T) {
	s := New()
	out := string(s.Render())
	require.True(t, strings.HasSuffix(out, "END\r\n"))
}
