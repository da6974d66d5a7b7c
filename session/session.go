// Package session ties a codec, a set of client/server agents, and a
// transport-facing pair of envelope channels into one supervised unit. It
// generalizes the teacher's combination of cluster.agent (one connection's
// send/receive loop) and session.Lifetime (close-callback registry) into a
// single type that additionally owns the reference-encoding hooks and the
// correlation table agents need.
package session

import (
	"context"
	"sync"

	"github.com/nano-kit/transporter/agent"
	"github.com/nano-kit/transporter/codec"
	"github.com/nano-kit/transporter/fiber"
	"github.com/nano-kit/transporter/inject"
	"github.com/nano-kit/transporter/internal/addrbook"
	"github.com/nano-kit/transporter/message"
	"github.com/nano-kit/transporter/tlog"
)

// Session is a Supervisor whose observed tasks are ClientAgent/ServerAgent
// fibers, wired to one transport connection via Input()/Output() envelope
// channels. It owns the session-wide correlation table (the specification's
// "single outstanding-call table keyed by message id") and the encode/decode
// hooks agents use to turn functions and proxies into addresses and back.
type Session struct {
	*fiber.Supervisor

	subprotocol Subprotocol
	injector    inject.Injector
	idgen       idGenerator
	book        *addrbook.Book

	in  chan message.Envelope
	out chan message.Envelope

	mu              sync.Mutex
	servers         map[string]*agent.ServerAgent
	pending         map[string]chan message.Envelope
	observedNonZero bool
	termSignal      chan struct{}
}

type idGenerator interface {
	NewID() string
	NewAddress() string
}

// New constructs a Session from cfg and immediately starts its routing
// goroutine. Callers drive it by writing inbound wire envelopes to
// Input() and reading outbound ones from Output().
func New(cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		Supervisor:  fiber.NewSupervisor(cfg.IDGenerator.NewID()),
		subprotocol: cfg.Subprotocol,
		injector:    cfg.Injector,
		idgen:       cfg.IDGenerator,
		book:        cfg.Book,
		in:          make(chan message.Envelope, cfg.InputBuffer),
		out:         make(chan message.Envelope, cfg.OutputBuffer),
		servers:     make(map[string]*agent.ServerAgent),
		pending:     make(map[string]chan message.Envelope),
		termSignal:  make(chan struct{}, 1),
	}
	go s.run()
	return s
}

// Input is the transport-facing inbound end: a caller (typically a
// socket.Socket's read loop) writes every wire envelope it receives here.
func (s *Session) Input() chan<- message.Envelope { return s.in }

// Output is the transport-facing outbound end: a caller reads every
// envelope agents produce and posts it to the underlying transport.Port.
func (s *Session) Output() <-chan message.Envelope { return s.out }

// Expose spawns a root ServerAgent at address wrapping value, the entry
// point a peer's Connect resolves to when it targets that same address
// ("" is the conventional default on both sides). It is idempotent only in
// the sense that a second call racing the first for the same address will
// fail with terrors.ErrUniqueAddress.
func (s *Session) Expose(address string, value any) (*agent.ServerAgent, error) {
	sa, err := agent.NewServerAgent(address, s.Encode, s.Decode, s.out, value, s.injector, s.book)
	if err != nil {
		return nil, err
	}
	if err := s.observe(sa.Fiber); err != nil {
		sa.Terminate()
		return nil, err
	}
	s.registerServer(address, sa)
	return sa, nil
}

// Connect spawns a root ClientAgent addressed at address — "" resolves to
// whatever the peer has Exposed at its default address — and returns its
// root Proxy.
func (s *Session) Connect(address string, opts ...agent.ClientOption) *agent.Proxy {
	noReply := !s.subprotocol.Bidirectional()
	opts = append([]agent.ClientOption{agent.WithIDGenerator(s.idgen)}, opts...)
	ca := agent.NewClientAgent(address, s.Encode, s.Decode, s.out, s, noReply, opts...)
	if err := s.observe(ca.Fiber); err != nil {
		return nil
	}
	return ca.Root()
}

// Await implements agent.PendingTable.
func (s *Session) Await(id string) <-chan message.Envelope {
	ch := make(chan message.Envelope, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

// Cancel implements agent.PendingTable.
func (s *Session) Cancel(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Encode is the agent.Encoder every agent in this session shares: it runs
// codec.Encode, spawning one ServerAgent per function/proxy it meets along
// the way. If any spawn or any deeper Encode call fails, every agent
// spawned during this call is terminated, in reverse order, before the
// error is returned — the specification requires rollback, not a
// best-effort partial encode.
func (s *Session) Encode(value any) (any, error) {
	var spawned []*agent.ServerAgent
	result, err := codec.Encode(value, func(node any) (string, error) {
		if p, ok := node.(*agent.Proxy); ok {
			node = forwardingFunc(p)
		}
		addr := s.idgen.NewAddress()
		sa, serr := agent.NewServerAgent(addr, s.Encode, s.Decode, s.out, node, s.injector, s.book)
		if serr != nil {
			return "", serr
		}
		if oerr := s.observe(sa.Fiber); oerr != nil {
			sa.Terminate()
			return "", oerr
		}
		s.registerServer(addr, sa)
		spawned = append(spawned, sa)
		return addr, nil
	})
	if err != nil {
		for i := len(spawned) - 1; i >= 0; i-- {
			spawned[i].Terminate()
		}
		return nil, err
	}
	return result, nil
}

// Decode is the agent.Decoder every agent in this session shares: it runs
// codec.Decode, spawning one ClientAgent (and returning its root Proxy) per
// message.Ref it meets.
func (s *Session) Decode(value any) any {
	noReply := !s.subprotocol.Bidirectional()
	return codec.Decode(value, func(address string) any {
		ca := agent.NewClientAgent(address, s.Encode, s.Decode, s.out, s, noReply, agent.WithIDGenerator(s.idgen))
		if err := s.observe(ca.Fiber); err != nil {
			return nil
		}
		return ca.Root()
	})
}

// forwardingFunc adapts a received Proxy back into a callable value so
// re-exporting it (passing it on to a third party) wraps it in a server
// agent whose single callable path forwards the call to the original
// remote function, rather than treating the Proxy's own Go methods as the
// dispatchable surface.
func forwardingFunc(p *agent.Proxy) any {
	return func(ctx context.Context, args ...any) (any, error) {
		return p.Call(ctx, args...)
	}
}

func (s *Session) registerServer(address string, sa *agent.ServerAgent) {
	s.mu.Lock()
	s.servers[address] = sa
	s.mu.Unlock()
	sa.OnTerminate(func() {
		s.mu.Lock()
		delete(s.servers, address)
		s.mu.Unlock()
	})
}

func (s *Session) observe(f *fiber.Fiber) error {
	if err := s.Supervisor.Observe(f); err != nil {
		return err
	}
	s.mu.Lock()
	s.observedNonZero = true
	s.mu.Unlock()
	f.OnTerminate(s.checkAutoTerminate)
	return nil
}

// checkAutoTerminate schedules the session's own termination once it has
// ever observed a task and its observed-task count has dropped back to
// zero — the Go analogue of "scheduled for the next microtask" mentioned
// in the specification, implemented as a buffered signal the run loop
// drains on its next iteration.
func (s *Session) checkAutoTerminate() {
	s.mu.Lock()
	latch := s.observedNonZero
	count := s.Supervisor.Count()
	s.mu.Unlock()
	if latch && count == 0 {
		select {
		case s.termSignal <- struct{}{}:
		default:
		}
	}
}

func (s *Session) run() {
	for {
		select {
		case env, ok := <-s.in:
			if !ok {
				s.Terminate()
				return
			}
			s.dispatch(env)
		case <-s.termSignal:
			s.Terminate()
			return
		case <-s.Done():
			return
		}
	}
}

func (s *Session) dispatch(env message.Envelope) {
	if env.Protocol != message.Protocol {
		tlog.Warnf("session: dropping envelope with unknown protocol %q", env.Protocol)
		return
	}
	if !message.Compatible(env.Version) {
		tlog.Warnf("session: peer version %s may be incompatible with %s", env.Version, message.Version)
	}

	switch env.Kind {
	case message.Call, message.GarbageCollect:
		s.mu.Lock()
		sa := s.servers[env.Address]
		s.mu.Unlock()
		if sa == nil {
			tlog.Warnf("session: no server agent at address %q for %s", env.Address, env.Kind)
			return
		}
		go sa.Handle(context.Background(), env)

	case message.Set, message.Error:
		s.mu.Lock()
		ch, ok := s.pending[env.ID]
		if ok {
			delete(s.pending, env.ID)
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		select {
		case ch <- env:
		default:
		}

	default:
		tlog.Warnf("session: unexpected envelope kind %s", env.Kind)
	}
}
