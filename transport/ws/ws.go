// Package ws adapts a gorilla/websocket connection to transport.Port, and
// an http.Server upgrade handler to transport.Listener — the Go analogue
// of the JavaScript host's native WebSocket bridges, grounded on the
// teacher's own websocket wiring in cluster/node.go
// (setupWSHandler/listenAndServeWS), generalized away from nano's
// cluster-internal gate protocol onto the narrow transport.Port interface.
package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/nano-kit/transporter/terrors"
	"github.com/nano-kit/transporter/tlog"
	"github.com/nano-kit/transporter/transport"
)

// Port wraps one upgraded *websocket.Conn. Messages are framed as JSON
// text frames; Payload arrives as json.RawMessage, deferred decoding left
// to the caller (typically a socket.Socket feeding a session).
type Port struct {
	conn   *websocket.Conn
	origin string
	recv   chan transport.InboundMessage
	closed chan struct{}
}

// NewPort wraps an already-upgraded connection and starts its read pump.
// origin is whatever the caller attributes to the connection (e.g. the
// upgrade request's Origin header).
func NewPort(conn *websocket.Conn, origin string) *Port {
	p := &Port{
		conn:   conn,
		origin: origin,
		recv:   make(chan transport.InboundMessage, 64),
		closed: make(chan struct{}),
	}
	go p.readPump()
	return p
}

// Dial connects to a WebSocket server at url and returns the client side
// of the connection as a transport.Port, the dialing counterpart to a
// Listener's Accept.
func Dial(url string) (*Port, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, terrors.Trace(err)
	}
	return NewPort(conn, ""), nil
}

func (p *Port) readPump() {
	defer close(p.recv)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var payload json.RawMessage = append([]byte(nil), data...)
		select {
		case p.recv <- transport.InboundMessage{Payload: payload, Origin: p.origin}:
		case <-p.closed:
			return
		}
	}
}

// Post implements transport.Port, marshaling payload as a JSON text frame.
func (p *Port) Post(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return terrors.Trace(err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return terrors.Trace(err)
	}
	return nil
}

// Receive implements transport.Port.
func (p *Port) Receive() <-chan transport.InboundMessage { return p.recv }

// Close implements transport.Port. Idempotent.
func (p *Port) Close() error {
	select {
	case <-p.closed:
		return nil
	default:
		close(p.closed)
	}
	return p.conn.Close()
}

// Listener upgrades incoming HTTP requests on one path to WebSocket Ports,
// the way cluster.Node.setupWSHandler registers one upgrade handler on its
// ServeMux. Accept blocks until an upgrade completes or the Listener is
// closed.
type Listener struct {
	server   *http.Server
	upgrader websocket.Upgrader
	accepted chan *Port
	closed   chan struct{}
}

// ListenerOption configures a Listener at construction.
type ListenerOption func(*Listener)

// WithCheckOrigin overrides the upgrader's default allow-all CheckOrigin,
// the Go analogue of the specification's socket-server connectFilter.
func WithCheckOrigin(check func(r *http.Request) bool) ListenerOption {
	return func(l *Listener) { l.upgrader.CheckOrigin = check }
}

// Listen starts an HTTP server on addr, upgrading every request on path to
// a WebSocket connection accepted by this Listener.
func Listen(addr, path string, opts ...ListenerOption) (*Listener, error) {
	l := &Listener{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		accepted: make(chan *Port),
		closed:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			tlog.Errorf("ws listener: %v", err)
			errCh <- err
		}
	}()
	return l, nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		tlog.Warnf("ws listener: upgrade failure for %s: %v", r.RequestURI, err)
		return
	}
	port := NewPort(conn, r.Header.Get("Origin"))
	select {
	case l.accepted <- port:
	case <-l.closed:
		port.Close()
	}
}

// Accept implements transport.Listener.
func (l *Listener) Accept() (transport.Port, error) {
	select {
	case p, ok := <-l.accepted:
		if !ok {
			return nil, terrors.ErrClosed
		}
		return p, nil
	case <-l.closed:
		return nil, terrors.ErrClosed
	}
}

// Close implements transport.Listener.
func (l *Listener) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
		close(l.closed)
	}
	return l.server.Close()
}
