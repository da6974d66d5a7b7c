package socket_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nano-kit/transporter/internal/addrbook"
	"github.com/nano-kit/transporter/socket"
	"github.com/nano-kit/transporter/transport"
)

// fakeListener hands out transport.Pipe ends queued by a test, the
// transport.Listener analogue of transport.Pipe for tests that need a full
// accept loop rather than one pre-wired connection.
type fakeListener struct {
	mu     sync.Mutex
	queue  chan transport.Port
	closed bool
}

func newFakeListener() *fakeListener {
	return &fakeListener{queue: make(chan transport.Port, 8)}
}

func (l *fakeListener) offer(p transport.Port) { l.queue <- p }

func (l *fakeListener) Accept() (transport.Port, error) {
	p, ok := <-l.queue
	if !ok {
		return nil, errors.New("fakeListener: closed")
	}
	return p, nil
}

func (l *fakeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	return nil
}

func TestServeAcceptsAndHandlesConnections(t *testing.T) {
	listener := newFakeListener()
	book := addrbook.New()

	accepted := make(chan *socket.Socket, 1)
	server, err := socket.Serve("server-addr", listener, func(s *socket.Socket) {
		accepted <- s
	}, socket.ServerConfig{Book: book})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer server.Stop()

	if !book.Has(addrbook.SpaceSocketServer, "server-addr") {
		t.Fatal("Serve did not claim its address in the book")
	}

	serverEnd, clientEnd := transport.NewPipe(4)
	listener.offer(serverEnd)

	var sock *socket.Socket
	select {
	case sock = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked for accepted connection")
	}

	if err := sock.Post("ping-app"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	clientSocket := socket.New(clientEnd, socket.DefaultConfig())
	defer clientSocket.Close()

	select {
	case msg := <-clientSocket.Receive():
		if msg.Payload != "ping-app" {
			t.Fatalf("Payload = %v, want ping-app", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("client never received the server's payload")
	}
}

func TestServeStopIsIdempotent(t *testing.T) {
	listener := newFakeListener()
	server, err := socket.Serve("addr", listener, func(*socket.Socket) {}, socket.ServerConfig{Book: addrbook.New()})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("second Stop should be idempotent: %v", err)
	}
}

func TestServeDuplicateAddressFails(t *testing.T) {
	book := addrbook.New()
	l1 := newFakeListener()
	server, err := socket.Serve("dup", l1, func(*socket.Socket) {}, socket.ServerConfig{Book: book})
	if err != nil {
		t.Fatalf("first Serve: %v", err)
	}
	defer server.Stop()

	l2 := newFakeListener()
	_, err = socket.Serve("dup", l2, func(*socket.Socket) {}, socket.ServerConfig{Book: book})
	if err == nil {
		t.Fatal("second Serve at the same address should fail")
	}
}

func TestServeStopClosesLiveSockets(t *testing.T) {
	listener := newFakeListener()
	accepted := make(chan *socket.Socket, 1)
	server, err := socket.Serve("addr", listener, func(s *socket.Socket) {
		accepted <- s
	}, socket.ServerConfig{
		Book:            addrbook.New(),
		Socket:          fastConfig(),
		ShutdownTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	// No peer acks the server socket's Disconnect in this test, so keep
	// timeouts short rather than waiting out the defaults.
	serverEnd, _ := transport.NewPipe(4)
	listener.offer(serverEnd)

	var sock *socket.Socket
	select {
	case sock = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-sock.StateChange():
	case <-time.After(time.Second):
	}
	if sock.State() != socket.Closed && sock.State() != socket.Closing {
		t.Fatalf("sock.State() = %v after Stop, want Closing or Closed", sock.State())
	}
}
