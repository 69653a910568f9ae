package memcached

import (
	"errors"
	"strconv"

	"github.com/Mactus/memcached/cache"
)

// Text protocol command names.
const (
	GetCommand      = "get"
	GetsCommand     = "gets"
	SetCommand      = "set"
	DeleteCommand   = "delete"
	FlushAllCommand = "flush_all"
	StatsCommand    = "stats"
)

// Separator terminates every protocol line and data block.
const Separator = "\r\n"

// Response lines.
const (
	ValueResponse      = "VALUE"
	EndResponse        = "END"
	StoredResponse     = "STORED"
	DeletedResponse    = "DELETED"
	NotFoundResponse   = "NOT_FOUND"
	ServerErrorResponse = "SERVER_ERROR"
	ClientErrorResponse = "CLIENT_ERROR"
	ErrorResponse      = "ERROR"
)

// Sizing limits.
const (
	// OutBufferSize sizes the per-connection buffered writer.
	OutBufferSize = 8 << 10
	// MaxCommandLength bounds a single command line, including its
	// trailing separator; it sizes each connection's bufio reader.
	// NewServer also requires recycle.Pool's largest class to be at least
	// this big.
	MaxCommandLength = 1 << 10
)

// Client-visible protocol errors.
var (
	ErrMoreFieldsRequired = errors.New("more fields required")
	ErrTooLargeItem       = errors.New("object too large for cache")
	ErrBadDataChunk       = errors.New("bad data chunk")
	ErrBadCommandLine     = errors.New("bad command line format")
)

// checkKey validates a key against the protocol's own length limit.
// flatstore.Geometry.KeyMaxLength is enforced again, later, by Alloc
// itself; this catches an oversized key before any work is done on it.
const maxKeyLength = 250

func checkKey(key []byte) error {
	if len(key) == 0 || len(key) > maxKeyLength {
		return ErrBadCommandLine
	}
	for _, b := range key {
		if b <= ' ' || b == 0x7f {
			return ErrBadCommandLine
		}
	}
	return nil
}

// parseSetFields parses a "set" command's fields: <flags> <exptime>
// <bytes> [noreply].
func parseSetFields(fields [][]byte) (meta cache.ItemMeta, noreply bool, err error) {
	const minFields = 4
	if len(fields) < minFields {
		err = ErrMoreFieldsRequired
		return
	}
	if err = checkKey(fields[0]); err != nil {
		return
	}
	meta.Key = fields[0]

	flags, parseErr := strconv.ParseUint(string(fields[1]), 10, 32)
	if parseErr != nil {
		err = ErrBadCommandLine
		return
	}
	meta.Flags = uint32(flags)

	exptime, parseErr := strconv.ParseInt(string(fields[2]), 10, 64)
	if parseErr != nil {
		err = ErrBadCommandLine
		return
	}
	meta.Exptime = exptime

	nbytes, parseErr := strconv.Atoi(string(fields[3]))
	if parseErr != nil || nbytes < 0 {
		err = ErrBadCommandLine
		return
	}
	meta.Bytes = nbytes

	if len(fields) > minFields {
		noreply = string(fields[minFields]) == "noreply"
	}
	return
}

// parseKeyFields parses a "delete" (or similarly shaped) command's
// fields: <key> [extra fields...] [noreply]. extraRequired is the number
// of positional fields expected between the key and an optional trailing
// noreply.
func parseKeyFields(fields [][]byte, extraRequired int) (key []byte, extra [][]byte, noreply bool, err error) {
	if len(fields) < 1+extraRequired {
		err = ErrMoreFieldsRequired
		return
	}
	if err = checkKey(fields[0]); err != nil {
		return
	}
	key = fields[0]
	extra = fields[1 : 1+extraRequired]
	if len(fields) > 1+extraRequired {
		noreply = string(fields[1+extraRequired]) == "noreply"
	}
	return
}

// unwrap strips stackerr's wrapping to recover the underlying message
// sent to the client, which should never see a Go stack trace.
func unwrap(err error) error {
	type causer interface {
		Underlying() error
	}
	for {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		u := c.Underlying()
		if u == nil {
			return err
		}
		err = u
	}
}
