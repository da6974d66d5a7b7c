// Package terrors collects the sentinel errors raised across the
// transporter core, and wraps them with stack traces the way
// examples/cluster/main.go wraps startup failures.
package terrors

import (
	"fmt"

	"github.com/pingcap/errors"
)

// Sentinel errors. Compare with errors.Is/errors.Cause, never by string.
var (
	// ErrUniqueAddress is returned by the address book when a space already
	// holds the requested address.
	ErrUniqueAddress = errors.New("transporter: address already claimed")
	// ErrTimeout is returned when a call or port event does not complete
	// before its deadline.
	ErrTimeout = errors.New("transporter: timeout")
	// ErrConnectTimeout is a socket-level ErrTimeout variant.
	ErrConnectTimeout = errors.New("transporter: connect timeout")
	// ErrDisconnectTimeout is a socket-level ErrTimeout variant.
	ErrDisconnectTimeout = errors.New("transporter: disconnect timeout")
	// ErrHeartbeatTimeout is a socket-level ErrTimeout variant.
	ErrHeartbeatTimeout = errors.New("transporter: heartbeat timeout")
	// ErrBufferOverflow is raised by a socket send buffer under the Error
	// overflow strategy.
	ErrBufferOverflow = errors.New("transporter: send buffer overflow")
	// ErrEmpty is raised converting a stream to a single value when the
	// stream completed without emitting one.
	ErrEmpty = errors.New("transporter: stream completed without a value")
	// ErrTerminated is raised adding a task to a terminated supervisor.
	ErrTerminated = errors.New("transporter: supervisor already terminated")
	// ErrUniqueTaskID is raised registering a duplicate task id with one
	// supervisor.
	ErrUniqueTaskID = errors.New("transporter: duplicate task id")
	// ErrCyclicPayload is raised by codec.Encode when it detects a payload
	// that references itself; codec.Decode does not check for cycles.
	ErrCyclicPayload = errors.New("transporter: cyclic payload")
	// ErrClosed is returned by a closed Port, Listener or Socket, and by
	// calls through a terminated client agent.
	ErrClosed = errors.New("transporter: closed")
	// ErrUnresolvedPath is returned when a server agent cannot resolve a
	// call path against its exposed value, or cannot bind the call's
	// arguments to the resolved function; the server agent sends its
	// message back to the caller as an Error reply.
	ErrUnresolvedPath = errors.New("transporter: unresolved path")
)

// RemoteError wraps a decoded value thrown or rejected by a remote function.
// It is what Proxy.Call returns when the peer replied with an Error message.
type RemoteError struct {
	Value any
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("transporter: remote error: %v", e.Value)
}

// Trace annotates err with the caller's stack frame, matching the
// errors.Trace idiom the teacher uses at RPC and startup boundaries.
func Trace(err error) error {
	if err == nil {
		return nil
	}
	return errors.Trace(err)
}

// Annotatef adds a formatted message to err while preserving its cause for
// errors.Is/errors.Cause.
func Annotatef(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Annotatef(err, format, args...)
}
