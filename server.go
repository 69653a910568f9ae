package memcached

import (
	"net"
	"time"

	"github.com/Mactus/memcached/log"
	"github.com/Mactus/memcached/recycle"
	"github.com/Mactus/memcached/stats"
)

// ConnMeta is the per-connection configuration every conn shares,
// embedded so conn's methods can reach it directly (c.Cache, c.Pool,
// c.MaxItemSize).
type ConnMeta struct {
	Cache       Handler
	Pool        *recycle.Pool
	MaxItemSize int
	Stats       *stats.Stats
}

// Server accepts text protocol connections and serves each on its own
// goroutine, per conn.go's serve(). It also tracks every open
// connection's last activity so that MaxConns/IdleTimeout can be
// enforced by periodically closing the coldest ones.
type Server struct {
	log  log.Logger
	meta *ConnMeta

	conns       *connList
	maxConns    int64
	idleTimeout time.Duration
}

// NewServer builds a Server. pool's largest size class must be at least
// MaxCommandLength; NewServer panics otherwise. maxConns
// <= 0 means unlimited; idleTimeout <= 0 disables idle eviction.
func NewServer(l log.Logger, handler Handler, pool *recycle.Pool, maxItemSize int, st *stats.Stats, maxConns int64, idleTimeout time.Duration) *Server {
	if pool.MaxChunkSize() < MaxCommandLength {
		panic("max chunk size should not be less than input buffer")
	}
	return &Server{
		log: l,
		meta: &ConnMeta{
			Cache:       handler,
			Pool:        pool,
			MaxItemSize: maxItemSize,
			Stats:       st,
		},
		conns:       newConnList(),
		maxConns:    maxConns,
		idleTimeout: idleTimeout,
	}
}

// Serve accepts connections from ln until it is closed, blocking the
// caller. Each connection is handed to its own goroutine and runs until
// the client disconnects or a fatal protocol error occurs.
func (s *Server) Serve(ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	if s.maxConns > 0 || s.idleTimeout > 0 {
		go s.shrinkLoop(stop)
	}

	for {
		rwc, err := ln.Accept()
		if err != nil {
			return err
		}
		s.meta.Stats.ConnectionOpened()
		c := newConn(s.log, s.meta, rwc)
		c.conns = s.conns
		c.node = s.conns.Track(c, time.Now().Unix())
		node := c.node
		go func() {
			defer s.meta.Stats.ConnectionClosed()
			defer s.conns.Untrack(node)
			c.serve()
		}()
	}
}

func (s *Server) shrinkLoop(stop <-chan struct{}) {
	const tick = 10 * time.Second
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			limit := s.maxConns
			if limit <= 0 {
				limit = 1<<63 - 1
			}
			var cutoff int64
			if s.idleTimeout > 0 {
				cutoff = time.Now().Add(-s.idleTimeout).Unix()
			}
			s.conns.Shrink(limit, cutoff)
		}
	}
}
