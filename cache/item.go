package cache

import (
	"io"

	"github.com/Mactus/memcached/recycle"
)

// ItemMeta is a SET command's parsed fields, and a GET response's
// rendered header fields.
type ItemMeta struct {
	Key     []byte
	Flags   uint32
	Exptime int64
	Bytes   int
}

// Item is one SET command: its parsed meta fields plus the data block
// read off the wire into a pooled buffer. Set takes ownership of Data and
// releases it back to the pool once it has been copied into storage.
type Item struct {
	ItemMeta
	Data *recycle.Chunk
}

// ItemView is one GET response: the rendered header fields plus a reader
// for the value bytes. The caller must Close the Reader exactly once,
// whether or not it was written to, to release the item's pinned
// refcount.
type ItemView struct {
	Key   string
	Flags uint32
	Bytes int

	Reader ItemReader
}

// ItemReader streams an item's value to the wire and releases the
// engine-level refcount pinned for the duration of the read.
type ItemReader interface {
	io.WriterTo
	io.Closer
}
