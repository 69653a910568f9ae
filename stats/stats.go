// Package stats holds the command-level counters, sometimes called "the
// stats object": the only piece of shared state touched outside the
// cache lock, guarded by its own lock instead.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is process-wide command counters, safe for concurrent use from
// every connection goroutine.
type Stats struct {
	started time.Time

	cmdGet    int64
	cmdSet    int64
	getHits   int64
	getMisses int64
	deleteHits   int64
	deleteMisses int64

	mu              sync.Mutex
	currConnections int64
	totalConnections int64
}

// New starts the stats clock at process start.
func New() *Stats {
	return &Stats{started: time.Now()}
}

func (s *Stats) ConnectionOpened() {
	s.mu.Lock()
	s.currConnections++
	s.totalConnections++
	s.mu.Unlock()
}

func (s *Stats) ConnectionClosed() {
	s.mu.Lock()
	s.currConnections--
	s.mu.Unlock()
}

func (s *Stats) CmdGet(keys int)    { atomic.AddInt64(&s.cmdGet, int64(keys)) }
func (s *Stats) CmdSet()            { atomic.AddInt64(&s.cmdSet, 1) }
func (s *Stats) GetHit()            { atomic.AddInt64(&s.getHits, 1) }
func (s *Stats) GetMiss()           { atomic.AddInt64(&s.getMisses, 1) }
func (s *Stats) DeleteHit()         { atomic.AddInt64(&s.deleteHits, 1) }
func (s *Stats) DeleteMiss()        { atomic.AddInt64(&s.deleteMisses, 1) }

// Render produces the "stats" command's connection/command lines,
// independent of the allocator's own stat lines.
func (s *Stats) Render() []byte {
	s.mu.Lock()
	curr, total := s.currConnections, s.totalConnections
	s.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "STAT uptime %d\r\n", int64(time.Since(s.started).Seconds()))
	fmt.Fprintf(&sb, "STAT curr_connections %d\r\n", curr)
	fmt.Fprintf(&sb, "STAT total_connections %d\r\n", total)
	fmt.Fprintf(&sb, "STAT cmd_get %d\r\n", atomic.LoadInt64(&s.cmdGet))
	fmt.Fprintf(&sb, "STAT cmd_set %d\r\n", atomic.LoadInt64(&s.cmdSet))
	fmt.Fprintf(&sb, "STAT get_hits %d\r\n", atomic.LoadInt64(&s.getHits))
	fmt.Fprintf(&sb, "STAT get_misses %d\r\n", atomic.LoadInt64(&s.getMisses))
	fmt.Fprintf(&sb, "STAT delete_hits %d\r\n", atomic.LoadInt64(&s.deleteHits))
	fmt.Fprintf(&sb, "STAT delete_misses %d\r\n", atomic.LoadInt64(&s.deleteMisses))
	sb.WriteString("END\r\n")
	return []byte(sb.String())
}
