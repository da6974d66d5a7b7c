package agent

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/nano-kit/transporter/fiber"
	"github.com/nano-kit/transporter/idgen"
	"github.com/nano-kit/transporter/message"
	"github.com/nano-kit/transporter/terrors"
)

// DefaultCallTimeout is the deadline a Call is given when ctx carries none,
// matching the specification's "1000 ms default at the raw proxy layer".
const DefaultCallTimeout = 1000 * time.Millisecond

// ClientAgent owns an outbound address (the server agent it talks to) and
// the proxy tree synthesized for it. It is a fiber: terminating it — either
// explicitly via Proxy.Release or because every proxy derived from it has
// become unreachable — makes one best-effort attempt to send a
// GarbageCollect to the peer (see sendGarbageCollect).
type ClientAgent struct {
	*fiber.Fiber

	serverAddress string
	encode        Encoder
	decode        Decoder
	out           chan<- message.Envelope
	noReply       bool
	idgen         idgen.Generator
	timeout       time.Duration
	pending       PendingTable

	mu    sync.Mutex
	cache map[string]weak.Pointer[Proxy]
	refs  int64
}

// NewClientAgent constructs a ClientAgent for serverAddress. encode/decode
// are the session's live codec hooks; out is the session's outbound
// envelope sink; pending is the session's correlation table; noReply forces
// every Call to fire-and-forget (set by the session when the subprotocol is
// not bidirectional, or is broadcast/multicast).
func NewClientAgent(serverAddress string, encode Encoder, decode Decoder, out chan<- message.Envelope, pending PendingTable, noReply bool, opts ...ClientOption) *ClientAgent {
	a := &ClientAgent{
		serverAddress: serverAddress,
		encode:        encode,
		decode:        decode,
		out:           out,
		noReply:       noReply,
		idgen:         idgen.Default,
		timeout:       DefaultCallTimeout,
		pending:       pending,
		cache:         make(map[string]weak.Pointer[Proxy]),
	}
	for _, o := range opts {
		o(a)
	}
	a.Fiber = fiber.New(a.idgen.NewID())
	a.OnTerminate(a.sendGarbageCollect)
	return a
}

// sendGarbageCollect notifies the peer server agent that this client agent
// — and every Proxy it ever produced — is gone, the Go side of the
// specification's distributed-GC mechanism. It runs as a termination hook so
// it fires uniformly whether termination was explicit (Proxy.Release) or
// finalizer-driven (onProxyUnreachable dropping refs to zero). Best effort:
// if out is full the peer's ServerAgent will still be reclaimed eventually
// when its own session tears down, so a blocked send here is not worth
// risking a termination-cascade deadlock over.
func (a *ClientAgent) sendGarbageCollect() {
	env := message.New(message.GarbageCollect, a.serverAddress, a.idgen.NewID())
	select {
	case a.out <- env:
	default:
	}
}

// ClientOption configures a ClientAgent at construction.
type ClientOption func(*ClientAgent)

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(a *ClientAgent) { a.timeout = d }
}

// WithIDGenerator overrides idgen.Default for this agent's message ids.
func WithIDGenerator(g idgen.Generator) ClientOption {
	return func(a *ClientAgent) { a.idgen = g }
}

// Root returns the proxy for the empty path — the value itself, before any
// property access.
func (a *ClientAgent) Root() *Proxy { return a.proxyFor(nil) }

// proxyFor returns the memoized *Proxy for path, creating one if the cached
// entry has been finalized or never existed. Every returned Proxy holds one
// implicit reference against the agent's liveness refcount, released when
// that specific Proxy value becomes unreachable (tracked via
// runtime.AddCleanup). The cache holds only weak pointers, so an
// intermediate path proxy can be reclaimed independently of proxies derived
// from it, while a path keeps returning the same *Proxy for as long as any
// caller still holds it.
func (a *ClientAgent) proxyFor(path []string) *Proxy {
	key := joinPath(path)

	a.mu.Lock()
	if wp, ok := a.cache[key]; ok {
		if p := wp.Value(); p != nil {
			a.mu.Unlock()
			return p
		}
	}
	p := &Proxy{agent: a, path: append([]string{}, path...)}
	a.cache[key] = weak.Make(p)
	a.mu.Unlock()

	atomic.AddInt64(&a.refs, 1)
	runtime.AddCleanup(p, a.onProxyUnreachable, key)
	return p
}

func (a *ClientAgent) onProxyUnreachable(key string) {
	a.mu.Lock()
	if wp, ok := a.cache[key]; ok && wp.Value() == nil {
		delete(a.cache, key)
	}
	a.mu.Unlock()

	if atomic.AddInt64(&a.refs, -1) == 0 {
		a.Terminate()
	}
}

func (a *ClientAgent) call(ctx context.Context, path []string, args []any) (any, error) {
	if a.State() == fiber.Terminated {
		return nil, terrors.ErrClosed
	}

	encoded, err := a.encode(args)
	if err != nil {
		return nil, terrors.Trace(err)
	}
	encodedArgs, _ := encoded.([]any)

	id := a.idgen.NewID()
	env := message.New(message.Call, a.serverAddress, id)
	env.Path = append([]string{}, path...)
	env.Args = encodedArgs

	if a.noReply || a.pending == nil {
		env.NoReply = true
		select {
		case a.out <- env:
			return nil, nil
		case <-a.Done():
			return nil, terrors.ErrClosed
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	replyCh := a.pending.Await(id)

	select {
	case a.out <- env:
	case <-a.Done():
		a.pending.Cancel(id)
		return nil, terrors.ErrClosed
	case <-callCtx.Done():
		a.pending.Cancel(id)
		return nil, terrors.ErrTimeout
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return nil, terrors.ErrClosed
		}
		switch reply.Kind {
		case message.Set:
			return a.decode(reply.Value), nil
		case message.Error:
			return nil, &terrors.RemoteError{Value: a.decode(reply.Err)}
		default:
			return nil, terrors.Annotatef(terrors.ErrClosed, "unexpected reply kind %s", reply.Kind)
		}
	case <-callCtx.Done():
		a.pending.Cancel(id)
		return nil, terrors.ErrTimeout
	case <-a.Done():
		a.pending.Cancel(id)
		return nil, terrors.ErrClosed
	}
}
