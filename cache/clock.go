package cache

import (
	"sync"
	"time"
)

// Clock implements flatstore.Clock the way memcached keeps its own
// current_time: seconds elapsed since the process started, computed on
// each call. settings.oldest_live and settings.detail_enabled sit under
// the clock's own RWMutex rather than the cache lock, since they are read
// far more often than written.
type Clock struct {
	started time.Time

	mu            sync.RWMutex
	oldestLive    int64
	detailEnabled bool
}

// NewClock starts the clock at the current wall time. oldestLive starts at
// -1, not 0: Now() returns seconds since the clock started, so a fresh
// item's lastTime is often 0 too, and OldestLive must not collide with
// that until flush_all has actually run.
func NewClock() *Clock {
	return &Clock{started: time.Now(), oldestLive: -1}
}

// Now is current_time: whole seconds since the clock started.
func (c *Clock) Now() int64 {
	return int64(time.Since(c.started).Seconds())
}

// OldestLive is settings.oldest_live, the flush_all watermark.
func (c *Clock) OldestLive() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oldestLive
}

// DetailEnabled is settings.detail_enabled.
func (c *Clock) DetailEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detailEnabled
}

// Flush sets oldest_live to now, so that every item last touched at or
// before now is treated as expired on next access.
func (c *Clock) Flush(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oldestLive = now
}

// SetDetailEnabled toggles per-key detail stats.
func (c *Clock) SetDetailEnabled(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailEnabled = v
}
