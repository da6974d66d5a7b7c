// Package transport defines the narrow duplex-messaging interface the
// rest of transporter is built against, and a deterministic in-memory
// implementation for tests. Concrete bridges (window/worker/port/broadcast
// equivalents) are out of scope for the core the way the specification
// calls them out as external collaborators — only the ws subpackage ships a
// real adapter, grounded on the teacher's gorilla/websocket usage in
// cluster/node.go.
package transport

import (
	"sync"

	"github.com/nano-kit/transporter/terrors"
)

// InboundMessage is one message handed up from a Port, paired with the
// origin the transport attributes to it (an empty string when the
// transport has no notion of origin).
type InboundMessage struct {
	Payload any
	Origin  string
}

// Port is a raw duplex message channel: the thing a Socket wraps with
// heartbeat, buffering, and a state machine. A session's Input()/Output()
// envelope channels are posted to and read from one Port by whatever glue
// code owns the connection (see socket.Socket for the batteries-included
// version).
type Port interface {
	// Post sends payload to the peer. It does not block on delivery
	// acknowledgement; transports without delivery guarantees (e.g. a
	// BroadcastChannel equivalent) may drop silently.
	Post(payload any) error
	// Receive returns the channel of messages arriving from the peer. It is
	// closed once the peer's end is closed; whether closing this end also
	// closes it depends on the implementation (ws.Port does, Pipe does not).
	Receive() <-chan InboundMessage
	// Close releases the underlying connection. Idempotent.
	Close() error
}

// Listener accepts new Ports, the way a TCP or WebSocket listener accepts
// new connections.
type Listener interface {
	Accept() (Port, error)
	Close() error
}

// Pipe is an in-memory, in-process Port pair connecting two ends of a test
// without any real network jitter — the transport-level analogue of the
// teacher's own group_test.go driving session.New(nil) directly, extended
// here to a full duplex pair since transporter's tests need actual
// round-trip delivery rather than a nil sink.
type Pipe struct {
	send chan InboundMessage
	recv chan InboundMessage

	mu     sync.Mutex
	closed bool
}

// NewPipe returns two Ports, each end's Post delivering to the other end's
// Receive, with the given channel buffer depth.
func NewPipe(buffer int) (a, b *Pipe) {
	ab := make(chan InboundMessage, buffer)
	ba := make(chan InboundMessage, buffer)
	a = &Pipe{send: ab, recv: ba}
	b = &Pipe{send: ba, recv: ab}
	return a, b
}

// Post implements Port.
func (p *Pipe) Post(payload any) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return terrors.ErrClosed
	}
	p.send <- InboundMessage{Payload: payload}
	return nil
}

// Receive implements Port.
func (p *Pipe) Receive() <-chan InboundMessage { return p.recv }

// Close implements Port. It closes only this end's send channel; the peer
// observes end-of-stream on its Receive channel.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.send)
	return nil
}
