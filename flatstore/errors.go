package flatstore

import (
	"fmt"

	"github.com/facebookgo/stackerr"
)

// errInvalidGeometry wraps a configuration-fatal geometry problem with a
// stack trace, matching the stackerr idiom used throughout conn.go.
func errInvalidGeometry(msg string) error {
	return stackerr.Newf("flatstore: invalid geometry: %s", msg)
}

// invariant panics with stack context. Invariant violations are treated
// as programming bugs to abort on, not recoverable errors.
func invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(stackerr.Wrap(fmt.Errorf("flatstore: invariant violated: "+format, args...)))
	}
}
