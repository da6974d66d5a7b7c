package socket

import (
	"sync"
	"time"

	"github.com/nano-kit/transporter/internal/addrbook"
	"github.com/nano-kit/transporter/terrors"
	"github.com/nano-kit/transporter/transport"
)

// ConnectFilter is a predicate over a connection's origin string — the Go
// analogue of cluster.WebsocketOptions.CheckOrigin, generalized off
// *http.Request onto the plain origin string transport.InboundMessage
// already carries. Server stores ServerConfig.ConnectFilter but does not
// call it: every connection the listener accepts becomes a Socket and is
// passed to the handler, whatever its origin.
type ConnectFilter func(origin string) bool

// ServerConfig configures a Server at construction.
type ServerConfig struct {
	Socket        Config
	ConnectFilter ConnectFilter
	ShutdownTimeout time.Duration
	Book          *addrbook.Book
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ConnectFilter == nil {
		c.ConnectFilter = func(string) bool { return true }
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.Book == nil {
		c.Book = addrbook.Global
	}
	return c
}

// Server listens on a transport.Listener and hands each accepted
// connection, wrapped as a Socket, to a caller-supplied handler — the Go
// analogue of cluster.Node.listenAndServe's accept loop, generalized from
// a single TCP listener to any transport.Listener (ws.Listener included).
type Server struct {
	address  string
	listener transport.Listener
	cfg      ServerConfig
	handle   func(*Socket)

	mu      sync.Mutex
	sockets map[*Socket]struct{}
	done    chan struct{}
	closed  bool
}

// Serve claims address in cfg.Book's SpaceSocketServer space, then accepts
// connections from listener in a background goroutine, passing each
// accepted Socket to handle. address is released when Stop is called.
func Serve(address string, listener transport.Listener, handle func(*Socket), cfg ServerConfig) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Book.Add(addrbook.SpaceSocketServer, address); err != nil {
		return nil, err
	}

	s := &Server{
		address:  address,
		listener: listener,
		cfg:      cfg,
		handle:   handle,
		sockets:  make(map[*Socket]struct{}),
		done:     make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		port, err := s.listener.Accept()
		if err != nil {
			return
		}
		sock := New(port, s.cfg.Socket)
		sock.acceptConnected()
		s.mu.Lock()
		closed := s.closed
		if !closed {
			s.sockets[sock] = struct{}{}
		}
		s.mu.Unlock()
		if closed {
			sock.Close()
			continue
		}

		go func() {
			for range sock.StateChange() {
			}
			s.mu.Lock()
			delete(s.sockets, sock)
			s.mu.Unlock()
		}()
		go s.handle(sock)
	}
}

// Stop closes the listener, releases address, and broadcasts a disconnect
// to every live Socket, then waits up to cfg.ShutdownTimeout for them to
// reach Closed.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sockets := make([]*Socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	s.listener.Close()
	s.cfg.Book.Release(addrbook.SpaceSocketServer, s.address)

	var wg sync.WaitGroup
	for _, sock := range sockets {
		wg.Add(1)
		go func(sock *Socket) {
			defer wg.Done()
			sock.Close()
		}(sock)
	}

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()

	select {
	case <-waitDone:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		return terrors.ErrDisconnectTimeout
	}
}
