// Package socket wraps a transport.Port with the batteries the
// specification requires of a managed connection: a Connecting -> Connected
// -> Closing -> Closed state machine, a bounded send buffer with a
// configurable overflow strategy, and an id-correlated heartbeat. It
// generalizes the teacher's cluster.agent.write() goroutine — a single
// ticker-driven loop multiplexing heartbeat sends and queued writes over
// one connection — onto a connection-agnostic transport.Port, and replaces
// its staleness-timestamp heartbeat check with an explicit per-ping Pong
// correlation, since the specification requires a matched reply, not a
// staleness threshold.
package socket

import (
	"sync"
	"time"

	"github.com/nano-kit/transporter/idgen"
	"github.com/nano-kit/transporter/message"
	"github.com/nano-kit/transporter/scheduler"
	"github.com/nano-kit/transporter/terrors"
	"github.com/nano-kit/transporter/tlog"
	"github.com/nano-kit/transporter/transport"
)

// State is a Socket's connection lifecycle stage.
type State int32

const (
	Connecting State = iota
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StateChange is one transition a Socket publishes on its StateChange
// channel. Err is set for Closing/Closed transitions caused by a failure
// (timeout, broken transport); it is nil for a clean transition.
type StateChange struct {
	State State
	Err   error
}

// OverflowStrategy decides what happens when Post is called faster than
// the underlying transport can absorb and the send buffer has reached its
// limit.
type OverflowStrategy int

const (
	// DropOldest evicts the oldest buffered message to make room.
	DropOldest OverflowStrategy = iota
	// DropLatest silently discards the message that would overflow.
	DropLatest
	// ErrorOnOverflow returns terrors.ErrBufferOverflow from Post instead of
	// dropping anything.
	ErrorOnOverflow
)

// Config configures a Socket at construction.
type Config struct {
	BufferLimit       int
	OverflowStrategy  OverflowStrategy
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	IDGenerator       idgen.Generator
}

// DefaultConfig matches the teacher's env.Heartbeat-driven ticker cadence,
// generalized with an explicit (rather than 2x-interval-implied) timeout.
func DefaultConfig() Config {
	return Config{
		BufferLimit:       256,
		OverflowStrategy:  DropOldest,
		ConnectTimeout:    5 * time.Second,
		DisconnectTimeout: 5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		IDGenerator:       idgen.Default,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferLimit > 0 {
		d.BufferLimit = c.BufferLimit
	}
	if c.ConnectTimeout > 0 {
		d.ConnectTimeout = c.ConnectTimeout
	}
	if c.DisconnectTimeout > 0 {
		d.DisconnectTimeout = c.DisconnectTimeout
	}
	if c.HeartbeatInterval > 0 {
		d.HeartbeatInterval = c.HeartbeatInterval
	}
	if c.HeartbeatTimeout > 0 {
		d.HeartbeatTimeout = c.HeartbeatTimeout
	}
	if c.IDGenerator != nil {
		d.IDGenerator = c.IDGenerator
	}
	d.OverflowStrategy = c.OverflowStrategy
	return d
}

// controlMessage is the wire shape for everything a Socket exchanges about
// its own lifecycle — Connect/Connected/Disconnect/Disconnected handshake
// frames and Ping/Pong heartbeat frames — as opposed to message.Envelope,
// which a Socket only ever carries as an opaque application payload on
// behalf of a session. Kind holds one of message.Kind's String() values, so
// the control vocabulary has a single source of truth even though Socket
// itself stays decoupled from the message package's heavier Envelope shape.
type controlMessage struct {
	Kind    string `json:"kind"`
	ID      string `json:"id,omitempty"`
	Address string `json:"address,omitempty"`
}

// heartbeatSched schedules heartbeat-timeout checks without allocating a
// time.Timer per in-flight ping, the package-level delayed-task scheduler
// every Socket shares (mirroring the teacher's own systemTimedSched
// singleton in the scheduler package).
var heartbeatSched = scheduler.NewTimedSched(1)

// Socket manages one transport.Port: it owns the Connecting->Closed state
// machine, multiplexes queued outbound payloads and heartbeat pings over
// one write goroutine (mirroring cluster.agent.write()), and surfaces
// inbound application payloads on Receive() separately from the
// ping/pong traffic it consumes itself.
type Socket struct {
	port transport.Port
	cfg  Config

	mu          sync.Mutex
	state       State
	stateCh     chan StateChange
	closeOnce   sync.Once
	closeSignal chan struct{}

	connectOnce      sync.Once
	connectedSignal  chan struct{}
	peerDisconnected chan struct{}

	send        chan any
	recv        chan transport.InboundMessage
	pendingPing map[string]struct{}
}

// New wraps port and starts it in Connecting: the specification's state
// machine transitions to Connected only on receiving a Connected control
// frame, so user payloads Post-ed before then accumulate in the send buffer
// rather than reaching the wire. A SocketServer's accept loop (the side that
// already knows the connection is live) calls acceptConnected immediately
// after New to skip the wait and announce Connected to the dialing peer.
func New(port transport.Port, cfg Config) *Socket {
	cfg = cfg.withDefaults()
	s := &Socket{
		port:             port,
		cfg:              cfg,
		state:            Connecting,
		stateCh:          make(chan StateChange, 8),
		closeSignal:      make(chan struct{}),
		connectedSignal:  make(chan struct{}),
		peerDisconnected: make(chan struct{}, 1),
		send:             make(chan any, cfg.BufferLimit),
		recv:             make(chan transport.InboundMessage, cfg.BufferLimit),
		pendingPing:      make(map[string]struct{}),
	}
	go s.readPump()
	go s.writePump()
	go s.awaitConnectTimeout()
	return s
}

// State returns the Socket's current stage.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StateChange returns the channel of lifecycle transitions, closed once
// Closed is reached — the Go analogue of a completing stateChange stream.
func (s *Socket) StateChange() <-chan StateChange { return s.stateCh }

// Receive returns inbound application payloads, with Ping/Pong frames
// filtered out and handled internally.
func (s *Socket) Receive() <-chan transport.InboundMessage { return s.recv }

// Post queues payload for delivery, applying the configured
// OverflowStrategy if the send buffer is full.
func (s *Socket) Post(payload any) error {
	if s.State() == Closed || s.State() == Closing {
		return terrors.ErrClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
	}

	switch s.cfg.OverflowStrategy {
	case ErrorOnOverflow:
		return terrors.ErrBufferOverflow
	case DropLatest:
		return nil
	case DropOldest:
		select {
		case <-s.send:
		default:
		}
		select {
		case s.send <- payload:
		default:
		}
		return nil
	default:
		return terrors.ErrBufferOverflow
	}
}

// Close begins an orderly shutdown: transitions to Closing, emits Disconnect
// and waits up to DisconnectTimeout for the peer's Disconnected
// acknowledgment, then Closed. On timeout the terminal state carries
// terrors.ErrDisconnectTimeout, matching the specification's
// DisconnectTimeoutError. Idempotent.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeSignal)
		s.transition(Closing, nil)
		_ = s.port.Post(controlMessage{Kind: message.Disconnect.String()})

		timer := time.NewTimer(s.cfg.DisconnectTimeout)
		defer timer.Stop()
		var closeErr error
		select {
		case <-s.peerDisconnected:
		case <-timer.C:
			tlog.Warnf("socket: disconnect timeout exceeded")
			closeErr = terrors.ErrDisconnectTimeout
		}
		s.port.Close()
		s.transition(Closed, closeErr)
		close(s.stateCh)
	})
	return nil
}

// handlePeerDisconnect answers a Disconnect received from the peer: the
// specification's Connected -> Closing(nil) transition on an unsolicited
// Disconnect, acknowledged with Disconnected so the peer's own Close (if
// concurrently in flight) doesn't have to wait out its full timeout.
func (s *Socket) handlePeerDisconnect() {
	s.closeOnce.Do(func() {
		close(s.closeSignal)
		s.transition(Closing, nil)
		_ = s.port.Post(controlMessage{Kind: message.Disconnected.String()})
		s.port.Close()
		s.transition(Closed, nil)
		close(s.stateCh)
	})
}

func (s *Socket) fail(err error) {
	s.closeOnce.Do(func() {
		close(s.closeSignal)
		s.transition(Closing, err)
		s.port.Close()
		s.transition(Closed, err)
		close(s.stateCh)
	})
}

func (s *Socket) transition(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	select {
	case s.stateCh <- StateChange{State: state, Err: err}:
	default:
	}
}

func (s *Socket) readPump() {
	defer close(s.recv)
	for msg := range s.port.Receive() {
		if ctrl, ok := s.asControl(msg.Payload); ok {
			s.handleControl(ctrl)
			continue
		}
		s.recv <- msg
	}
}

func (s *Socket) asControl(payload any) (controlMessage, bool) {
	switch v := payload.(type) {
	case controlMessage:
		return v, true
	case map[string]any:
		kind, _ := v["kind"].(string)
		if !isControlKind(kind) {
			return controlMessage{}, false
		}
		id, _ := v["id"].(string)
		addr, _ := v["address"].(string)
		return controlMessage{Kind: kind, ID: id, Address: addr}, true
	default:
		return controlMessage{}, false
	}
}

func isControlKind(kind string) bool {
	switch kind {
	case message.Ping.String(), message.Pong.String(),
		message.Connect.String(), message.Connected.String(),
		message.Disconnect.String(), message.Disconnected.String():
		return true
	default:
		return false
	}
}

func (s *Socket) handleControl(c controlMessage) {
	switch c.Kind {
	case message.Ping.String():
		_ = s.port.Post(controlMessage{Kind: message.Pong.String(), ID: c.ID})
	case message.Pong.String():
		s.mu.Lock()
		delete(s.pendingPing, c.ID)
		s.mu.Unlock()
	case message.Connected.String():
		s.markConnected()
	case message.Disconnect.String():
		s.handlePeerDisconnect()
	case message.Disconnected.String():
		select {
		case s.peerDisconnected <- struct{}{}:
		default:
		}
	default:
		tlog.Warnf("socket: unexpected control frame %q", c.Kind)
	}
}

// markConnected advances Connecting -> Connected exactly once, the trigger
// for the write pump to start draining its accumulated send buffer and
// ticking the heartbeat. Safe to call from either the read pump (a Connected
// frame arrived) or acceptConnected (the accepting side skips the wait).
func (s *Socket) markConnected() {
	s.connectOnce.Do(func() {
		s.mu.Lock()
		if s.state != Connecting {
			s.mu.Unlock()
			return
		}
		s.state = Connected
		s.mu.Unlock()
		close(s.connectedSignal)
		select {
		case s.stateCh <- StateChange{State: Connected}:
		default:
		}
	})
}

// acceptConnected marks a just-accepted Socket as already Connected and
// announces that to the peer with a Connected control frame — the Go
// analogue of the specification's SocketServer creating a socket over an
// accepted connect and immediately sending Connected.
func (s *Socket) acceptConnected() {
	s.markConnected()
	_ = s.port.Post(controlMessage{Kind: message.Connected.String()})
}

// awaitConnectTimeout fails the socket with terrors.ErrConnectTimeout if it
// is still Connecting once cfg.ConnectTimeout elapses.
func (s *Socket) awaitConnectTimeout() {
	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-s.connectedSignal:
	case <-s.closeSignal:
	case <-timer.C:
		s.fail(terrors.ErrConnectTimeout)
	}
}

// writePump waits for the Connected handshake before touching the send
// buffer or the heartbeat ticker: per the specification, payloads Post-ed
// while Connecting accumulate rather than reach the wire, and the heartbeat
// only starts once Connected.
func (s *Socket) writePump() {
	select {
	case <-s.connectedSignal:
	case <-s.closeSignal:
		return
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.ping()
		case payload, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.port.Post(payload); err != nil {
				s.fail(terrors.Trace(err))
				return
			}
		case <-s.closeSignal:
			return
		}
	}
}

func (s *Socket) ping() {
	id := s.cfg.IDGenerator.NewID()
	s.mu.Lock()
	s.pendingPing[id] = struct{}{}
	s.mu.Unlock()

	if err := s.port.Post(controlMessage{Kind: message.Ping.String(), ID: id}); err != nil {
		s.fail(terrors.Trace(err))
		return
	}

	heartbeatSched.Put(func() {
		s.mu.Lock()
		_, stillPending := s.pendingPing[id]
		delete(s.pendingPing, id)
		s.mu.Unlock()
		if stillPending {
			s.fail(terrors.ErrHeartbeatTimeout)
		}
	}, time.Now().Add(s.cfg.HeartbeatTimeout))
}

// Ping sends an out-of-band heartbeat immediately, outside the regular
// HeartbeatInterval cadence. Exposed for tests and callers that want to
// probe liveness on demand.
func (s *Socket) Ping() { s.ping() }
