// Package transporter is a transparent RPC layer over message-passing
// transports: expose a value — a function, a tree of functions, or a
// handler serving a socket of clients — on one side; obtain a proxy
// indistinguishable from the local value on the other, except that every
// call blocks on (or can be made to not await) a round trip. It is the Go
// host binding for the transparent-RPC pattern the teacher's own nano.go
// played for a cluster's TCP/WebSocket gate, generalized off that one
// transport onto the transport.Port interface.
package transporter

import (
	"context"

	"github.com/nano-kit/transporter/agent"
	"github.com/nano-kit/transporter/idgen"
	"github.com/nano-kit/transporter/message"
	"github.com/nano-kit/transporter/session"
	"github.com/nano-kit/transporter/socket"
	"github.com/nano-kit/transporter/terrors"
	"github.com/nano-kit/transporter/tlog"
	"github.com/nano-kit/transporter/transport"
)

// Handle is the live session backing one Expose or Connect call. Stop
// tears it down; a Handle is otherwise opaque.
type Handle struct {
	sess *session.Session
	port transport.Port
}

// Stop terminates the underlying session and closes the transport.Port it
// was built on. Idempotent.
func (h *Handle) Stop() error {
	h.sess.Terminate()
	return h.port.Close()
}

// Expose serves value over port: a peer that Connects to the other end of
// port and resolves the default address ("" absent WithAddress) reaches
// value as its root proxy. Expose blocks until the session is constructed,
// then returns; it does not wait for a peer to connect.
func Expose(value any, port transport.Port, opts ...Option) (*Handle, error) {
	cfg := newConfig()
	for _, o := range opts {
		o(&cfg)
	}
	cfg.session.IDGenerator = idgen.Namespaced(cfg.session.IDGenerator, cfg.namespace)

	sess := session.New(cfg.session)
	pumpPort(sess, port)

	address := cfg.address
	if _, err := sess.Expose(address, value); err != nil {
		sess.Terminate()
		return nil, terrors.Trace(err)
	}
	return &Handle{sess: sess, port: port}, nil
}

// Connect obtains a proxy for whatever the peer at the other end of port
// has Exposed. Connect performs no handshake and never blocks on the
// network; ctx is not used, and calls through the returned proxy take
// their own ctx.
func Connect(ctx context.Context, port transport.Port, opts ...Option) (*agent.Proxy, *Handle, error) {
	cfg := newConfig()
	for _, o := range opts {
		o(&cfg)
	}
	cfg.session.IDGenerator = idgen.Namespaced(cfg.session.IDGenerator, cfg.namespace)

	sess := session.New(cfg.session)
	pumpPort(sess, port)

	proxy := sess.Connect(cfg.serverAddress, cfg.clientOptions()...)
	if proxy == nil {
		sess.Terminate()
		return nil, nil, terrors.ErrUniqueAddress
	}
	return proxy, &Handle{sess: sess, port: port}, nil
}

// Listen accepts connections on listener, Exposing value fresh to each one
// over a socket.Server-managed Socket. Stop on the returned Handle-like
// *socket.Server closes the listener and disconnects every live client.
func Listen(listener transport.Listener, value any, opts ...Option) (*socket.Server, error) {
	cfg := newConfig()
	for _, o := range opts {
		o(&cfg)
	}
	cfg.session.IDGenerator = idgen.Namespaced(cfg.session.IDGenerator, cfg.namespace)

	var connectFilter socket.ConnectFilter
	if cfg.origin != "" {
		origin := cfg.origin
		connectFilter = func(o string) bool { return o == origin }
	}

	serverCfg := socket.ServerConfig{
		Socket:        cfg.socket,
		ConnectFilter: connectFilter,
	}

	return socket.Serve(cfg.address, listener, func(sock *socket.Socket) {
		// Each connection gets its own session and, by leaving Book unset,
		// its own address space: sessions never compare addresses with one
		// another, so sharing one book across every client connected to
		// this listener would make unrelated clients collide.
		sess := session.New(cfg.session)
		pumpSocket(sess, sock)
		if _, err := sess.Expose(cfg.address, value); err != nil {
			tlog.Errorf("transporter: listen: failed to expose value to new connection: %v", err)
			sess.Terminate()
			sock.Close()
		}
	}, serverCfg)
}

// pumpPort wires a session's Input()/Output() envelope channels to a raw
// transport.Port, decoding/encoding the wire representation on the way
// through — the plain, non-heartbeat-managed path Expose/Connect use
// directly over a caller-supplied Port.
func pumpPort(sess *session.Session, port transport.Port) {
	go func() {
		for env := range sess.Output() {
			if err := port.Post(env); err != nil {
				tlog.Warnf("transporter: post failed: %v", err)
			}
		}
	}()
	go func() {
		defer close(sess.Input())
		for inbound := range port.Receive() {
			env, ok := message.Decode(inbound.Payload)
			if !ok {
				tlog.Warnf("transporter: dropping undecodable payload from transport")
				continue
			}
			sess.Input() <- env
		}
	}()
}

// pumpSocket is pumpPort's analogue for a socket.Socket, whose Post/Receive
// already strip heartbeat frames.
func pumpSocket(sess *session.Session, sock *socket.Socket) {
	go func() {
		for env := range sess.Output() {
			if err := sock.Post(env); err != nil {
				tlog.Warnf("transporter: post failed: %v", err)
			}
		}
	}()
	go func() {
		defer close(sess.Input())
		for inbound := range sock.Receive() {
			env, ok := message.Decode(inbound.Payload)
			if !ok {
				tlog.Warnf("transporter: dropping undecodable payload from socket")
				continue
			}
			sess.Input() <- env
		}
	}()
}
