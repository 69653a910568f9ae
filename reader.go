package memcached

import (
	"bufio"
	"bytes"
	"io"

	"github.com/facebookgo/stackerr"

	"github.com/Mactus/memcached/recycle"
)

// reader parses the text protocol's command lines and data blocks off an
// underlying connection. Command lines are read from the bufio buffer;
// data blocks are read into buffers borrowed from the pool.
type reader struct {
	*bufio.Reader
	pool *recycle.Pool
}

func newReader(rwc io.Reader, pool *recycle.Pool) reader {
	return reader{Reader: bufio.NewReaderSize(rwc, MaxCommandLength), pool: pool}
}

// readCommand reads one command line and splits it into its command word
// and remaining whitespace-separated fields. A malformed line (too long,
// or empty) is reported as clientErr; a read failure from the underlying
// connection, including EOF before a terminator, is reported as err.
func (r reader) readCommand() (command []byte, fields [][]byte, clientErr, err error) {
	line, readErr := r.ReadSlice('\n')
	if readErr != nil {
		if readErr == bufio.ErrBufferFull {
			clientErr = stackerr.Wrap(ErrBadCommandLine)
			return
		}
		err = readErr
		return
	}
	line = bytes.TrimRight(line, "\r\n")
	parts := bytes.Fields(line)
	if len(parts) == 0 {
		clientErr = stackerr.Wrap(ErrBadCommandLine)
		return
	}
	command = parts[0]
	fields = parts[1:]
	return
}

// discardCommand skips input up to and including the next newline, e.g.
// the data block line that follows a rejected set command line.
func (r reader) discardCommand() error {
	_, err := r.ReadSlice('\n')
	return stackerr.Wrap(err)
}

// readDataBlock reads exactly nbytes of data plus the trailing
// Separator, as a set command's payload. The data is returned in a
// pooled buffer the caller must Release.
func (r reader) readDataBlock(nbytes int) (data *recycle.Chunk, clientErr, err error) {
	data = r.pool.Get(nbytes)
	if _, ioErr := io.ReadFull(r.Reader, data.Bytes()); ioErr != nil {
		data.Release()
		data = nil
		err = stackerr.Wrap(ioErr)
		return
	}
	var tail [len(Separator)]byte
	if _, ioErr := io.ReadFull(r.Reader, tail[:]); ioErr != nil {
		data.Release()
		data = nil
		err = stackerr.Wrap(ioErr)
		return
	}
	if string(tail[:]) != Separator {
		clientErr = stackerr.Wrap(ErrBadDataChunk)
	}
	return
}
