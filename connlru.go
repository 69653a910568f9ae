package memcached

import (
	"sync"

	"github.com/Mactus/memcached/internal/tag"
)

// connList tracks live connections ordered by last activity. It is
// adapted from a generic cache eviction list into a connection-limiting
// one: instead of evicting cold cache items to free memory, Shrink closes
// the coldest connections once the server's connection budget is
// exceeded, and any connection idle past a cutoff, using the same fakeHead/fakeTail sentinel idiom so the list
// is never empty of structure and needs no nil checks at its ends.
//
// Track is called from the accept loop, Touch/Untrack from each
// connection's own goroutine, and Shrink from the shrink loop, so every
// exported method takes mu: the list has no single owning goroutine.
//
// Invariants:
//   - connList owns every node between fakeHead and fakeTail.
//   - {fakeHead, owned nodes, fakeTail} form a correct doubly linked list.
//   - every owned node's owner field points back at this connList.
//   - connList.size equals the number of owned nodes.
type connList struct {
	mu   sync.Mutex
	size int64

	// fakeHead is the oldest-activity end; fakeHead.next is the least
	// recently active connection, a Shrink candidate.
	fakeHead *connNode
	// fakeTail is the most-recently-active end; new activity moves a node
	// to just before fakeTail.
	fakeTail *connNode
}

type connNode struct {
	c          *conn
	lastActive int64
	owner      *connList
	prev, next *connNode
}

func newConnList() *connList {
	l := &connList{}
	l.fakeHead, l.fakeTail = &connNode{}, &connNode{}
	connLink(l.fakeHead, l.fakeTail)
	return l
}

func (l *connList) head() *connNode { return l.fakeHead.next }
func (l *connList) end(n *connNode) bool { return n == l.fakeTail }

// Track registers c as newly active at time now, returning the node the
// caller must pass to Touch on every subsequent command and to Untrack
// on disconnect.
func (l *connList) Track(c *conn, now int64) *connNode {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := &connNode{c: c, lastActive: now}
	n.owner = l
	l.size++
	connLink(l.fakeTail.prev, n)
	connLink(n, l.fakeTail)
	return n
}

// Touch records activity on n, moving it to the most-recently-active end
// so Shrink considers it last.
func (l *connList) Touch(n *connNode, now int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n.lastActive = now
	n.detach()
	connLink(l.fakeTail.prev, n)
	connLink(n, l.fakeTail)
}

// Untrack removes n, e.g. once its connection has closed.
func (l *connList) Untrack(n *connNode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n.detach()
	n.disown()
}

// Shrink closes the least-recently-active connections, oldest first,
// until at most limit remain open and every remaining connection was
// active at or after idleCutoff. A closed connection's node stays in the
// list until that connection's own Untrack removes it.
func (l *connList) Shrink(limit int64, idleCutoff int64) {
	l.mu.Lock()
	var victims []*conn
	remaining := l.size
	cur := l.head()
	for !l.end(cur) && (remaining > limit || cur.lastActive < idleCutoff) {
		l.assertNotTail(cur)
		victims = append(victims, cur.c)
		remaining--
		cur = cur.next
	}
	l.mu.Unlock()

	// Close outside the lock: conn.Close may block on I/O, and closing
	// triggers the connection's own goroutine to call Untrack, which
	// would deadlock re-entering l.mu.
	for _, victim := range victims {
		victim.Close()
	}
}

func (n *connNode) detach() {
	connLink(n.prev, n.next)
	if tag.Debug {
		n.prev = nil
		n.next = nil
	}
}

func (n *connNode) disown() {
	n.owner.size--
	if tag.Debug {
		n.owner = nil
	}
}

func (l *connList) assertNotTail(n *connNode) {
	if n == l.fakeTail {
		panic("connList: node pointer out of range")
	}
}

func connLink(a, b *connNode) { a.next, b.prev = b, a }
