// Package reqres implements the stateless unicast request/response overlay
// for connectionless transports (e.g. a service-worker message target with
// no persistent connection to hang a Socket's state machine off of). It has
// no heartbeat, no buffer, and no state machine — the direct generalization
// of cluster/acceptor.go's unicast gateClient.HandleResponse calls onto the
// narrow transport.Port interface, shorn of the gRPC member-routing it did
// for nano's cluster topology.
package reqres

import (
	"context"

	"github.com/nano-kit/transporter/codec"
	"github.com/nano-kit/transporter/message"
	"github.com/nano-kit/transporter/terrors"
	"github.com/nano-kit/transporter/tlog"
	"github.com/nano-kit/transporter/transport"
)

// Handler answers one request body, given the origin the transport
// attributed to it.
type Handler func(ctx context.Context, origin string, body any) (any, error)

// Server serves Handler over port: every inbound message.Envelope of Kind
// Request is answered with a Response carrying the same ID, posted back on
// the same port. A handler error is reference-encoded the same way any
// other reply payload is, since an error value may itself embed proxies.
type Server struct {
	port    transport.Port
	handler Handler
	makeRef codec.MakeRef
	done    chan struct{}
}

// Serve starts answering requests arriving on port in a background
// goroutine. makeRef is the same reference-encoding hook a session would
// supply; pass a function that always errors if this server's handler
// never returns proxies.
func Serve(port transport.Port, handler Handler, makeRef codec.MakeRef) *Server {
	s := &Server{port: port, handler: handler, makeRef: makeRef, done: make(chan struct{})}
	go s.run()
	return s
}

func (s *Server) run() {
	for {
		select {
		case msg, ok := <-s.port.Receive():
			if !ok {
				return
			}
			env, ok := message.Decode(msg.Payload)
			if !ok || env.Kind != message.Request {
				continue
			}
			go s.handle(msg.Origin, env)
		case <-s.done:
			return
		}
	}
}

func (s *Server) handle(origin string, env message.Envelope) {
	val, err := s.handler(context.Background(), origin, env.Body)

	resp := message.New(message.Response, "", env.ID)
	if err != nil {
		encErr, encFailure := codec.Encode(errorBody(err), s.makeRef)
		if encFailure != nil {
			tlog.Errorf("reqres: failed to encode error response: %v", encFailure)
			return
		}
		resp.Err = encErr
	} else {
		encVal, encErr := codec.Encode(val, s.makeRef)
		if encErr != nil {
			tlog.Errorf("reqres: failed to encode response: %v", encErr)
			return
		}
		resp.Body = encVal
	}

	if err := s.port.Post(resp); err != nil {
		tlog.Warnf("reqres: failed to post response %s: %v", env.ID, err)
	}
}

// Close stops the server's receive loop. It does not close port.
func (s *Server) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

func errorBody(err error) any {
	if re, ok := err.(*terrors.RemoteError); ok {
		return re.Value
	}
	return err.Error()
}

// Request performs one request/response round trip over port, blocking
// until a matching Response arrives or ctx is done.
func Request(ctx context.Context, port transport.Port, id, address string, body any, makeProxy codec.MakeProxy) (any, error) {
	env := message.New(message.Request, address, id)
	env.Body = body

	if err := port.Post(env); err != nil {
		return nil, terrors.Trace(err)
	}

	for {
		select {
		case msg, ok := <-port.Receive():
			if !ok {
				return nil, terrors.ErrClosed
			}
			resp, ok := message.Decode(msg.Payload)
			if !ok || resp.Kind != message.Response || resp.ID != id {
				continue
			}
			if resp.Err != nil {
				return nil, &terrors.RemoteError{Value: codec.Decode(resp.Err, makeProxy)}
			}
			return codec.Decode(resp.Body, makeProxy), nil
		case <-ctx.Done():
			return nil, terrors.ErrTimeout
		}
	}
}
