package reqres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nano-kit/transporter/reqres"
	"github.com/nano-kit/transporter/transport"
)

// jsonPort wraps a transport.Pipe end the way transport/ws.Port does: every
// posted payload is JSON-marshaled and delivered to Receive() as
// json.RawMessage, never as a message.Envelope value directly. This is the
// shape reqres must decode to actually work over a real wire transport.
type jsonPort struct {
	pipe *transport.Pipe
	recv chan transport.InboundMessage
}

func newJSONPort(pipe *transport.Pipe) *jsonPort {
	p := &jsonPort{pipe: pipe, recv: make(chan transport.InboundMessage, 8)}
	go func() {
		defer close(p.recv)
		for msg := range pipe.Receive() {
			data, err := json.Marshal(msg.Payload)
			if err != nil {
				continue
			}
			p.recv <- transport.InboundMessage{Payload: json.RawMessage(data), Origin: msg.Origin}
		}
	}()
	return p
}

func (p *jsonPort) Post(payload any) error                  { return p.pipe.Post(payload) }
func (p *jsonPort) Receive() <-chan transport.InboundMessage { return p.recv }
func (p *jsonPort) Close() error                             { return p.pipe.Close() }

func noopMakeRef(any) (string, error) { return "", nil }
func noopMakeProxy(string) any        { return nil }

func TestRequestResponseRoundTrip(t *testing.T) {
	clientPort, serverPort := transport.NewPipe(4)

	server := reqres.Serve(serverPort, func(ctx context.Context, origin string, body any) (any, error) {
		return "echo:" + body.(string), nil
	}, noopMakeRef)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := reqres.Request(ctx, clientPort, "id-1", "addr", "hi", noopMakeProxy)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if result != "echo:hi" {
		t.Fatalf("result = %v, want echo:hi", result)
	}
}

func TestRequestResponseRoundTripOverJSONTransport(t *testing.T) {
	clientPipe, serverPipe := transport.NewPipe(4)
	clientPort := newJSONPort(clientPipe)
	serverPort := newJSONPort(serverPipe)

	server := reqres.Serve(serverPort, func(ctx context.Context, origin string, body any) (any, error) {
		return "echo:" + body.(string), nil
	}, noopMakeRef)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := reqres.Request(ctx, clientPort, "id-json", "addr", "hi", noopMakeProxy)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if result != "echo:hi" {
		t.Fatalf("result = %v, want echo:hi", result)
	}
}

func TestRequestSurfacesHandlerError(t *testing.T) {
	clientPort, serverPort := transport.NewPipe(4)

	server := reqres.Serve(serverPort, func(ctx context.Context, origin string, body any) (any, error) {
		return nil, errors.New("boom")
	}, noopMakeRef)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := reqres.Request(ctx, clientPort, "id-2", "addr", "x", noopMakeProxy)
	if err == nil {
		t.Fatal("expected an error from a failing handler")
	}
}

func TestRequestTimesOutWithoutAServer(t *testing.T) {
	clientPort, _ := transport.NewPipe(4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := reqres.Request(ctx, clientPort, "id-3", "addr", "x", noopMakeProxy)
	if err == nil {
		t.Fatal("expected a timeout error with no server answering")
	}
}

func TestServerCloseIsIdempotent(t *testing.T) {
	_, serverPort := transport.NewPipe(4)
	server := reqres.Serve(serverPort, func(ctx context.Context, origin string, body any) (any, error) {
		return nil, nil
	}, noopMakeRef)

	if err := server.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
