package arena

import (
	"errors"
	"fmt"
)

// ErrDisconnectedTrace is matched by every *DisconnectedTraceError.
var ErrDisconnectedTrace = errors.New("disconnected trace")

// DisconnectedTraceError is the panic value raised by PushTrace when no
// parent can be found for a trace.
type DisconnectedTraceError struct {
	Entry int // index the search started from
	At    int // node that had no child to descend into
	Depth int // depth of the trace being pushed
}

func (e *DisconnectedTraceError) Error() string {
	return fmt.Sprintf("%s: no node at depth %d below node %d (search started at %d)",
		ErrDisconnectedTrace, e.Depth-1, e.At, e.Entry)
}

func (e *DisconnectedTraceError) Unwrap() error {
	return ErrDisconnectedTrace
}

// Recover turns a disconnected trace panic into an error stored in errp.
// Any other panic is re-raised. Use it deferred at the boundary of a trace
// construction:
//
//	defer arena.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if de, ok := r.(*DisconnectedTraceError); ok {
		*errp = de
		return
	}
	panic(r)
}
