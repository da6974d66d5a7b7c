package agent

import (
	"context"
	"reflect"

	"github.com/nano-kit/transporter/fiber"
	"github.com/nano-kit/transporter/inject"
	"github.com/nano-kit/transporter/internal/addrbook"
	"github.com/nano-kit/transporter/message"
	"github.com/nano-kit/transporter/terrors"
	"github.com/nano-kit/transporter/tlog"
)

// ServerAgent owns an inbound address and one exposed value. It resolves
// Call paths against that value via reflection, invokes the resolved
// function (optionally prepending a context.Context and injector-supplied
// dependencies), and replies with Set or Error unless the call was
// NoReply. A GarbageCollect addressed to it terminates it, releasing its
// address.
type ServerAgent struct {
	*fiber.Fiber

	address  string
	encode   Encoder
	decode   Decoder
	out      chan<- message.Envelope
	value    any
	injector inject.Injector
	book     *addrbook.Book
}

// NewServerAgent claims address in book (addrbook.Global if book is nil),
// wraps value for dispatch, and registers release-on-terminate. injector
// defaults to inject.NopInjector{} when nil.
func NewServerAgent(address string, encode Encoder, decode Decoder, out chan<- message.Envelope, value any, injector inject.Injector, book *addrbook.Book) (*ServerAgent, error) {
	if book == nil {
		book = addrbook.Global
	}
	if injector == nil {
		injector = inject.NopInjector{}
	}
	if err := book.Add(addrbook.SpaceServerAgent, address); err != nil {
		return nil, err
	}

	sa := &ServerAgent{
		Fiber:    fiber.New(address),
		address:  address,
		encode:   encode,
		decode:   decode,
		out:      out,
		value:    value,
		injector: injector,
		book:     book,
	}
	sa.OnTerminate(func() { book.Release(addrbook.SpaceServerAgent, address) })
	return sa, nil
}

// Address returns the address this server agent was registered under.
func (a *ServerAgent) Address() string { return a.address }

// Value returns the value this agent dispatches calls against.
func (a *ServerAgent) Value() any { return a.value }

// Handle dispatches env, which must be addressed to this agent. Call runs
// synchronously on the calling goroutine; callers that want concurrent
// dispatch across agents (the usual case — session.Session's dispatch does this)
// should invoke Handle from its own goroutine per envelope.
func (a *ServerAgent) Handle(ctx context.Context, env message.Envelope) {
	switch env.Kind {
	case message.Call:
		a.handleCall(ctx, env)
	case message.GarbageCollect:
		a.Terminate()
	default:
		tlog.Warnf("server agent %s: unexpected message kind %s", a.address, env.Kind)
	}
}

func (a *ServerAgent) handleCall(ctx context.Context, env message.Envelope) {
	fnVal, err := resolve(a.value, env.Path)
	if err != nil {
		a.reply(env, nil, err)
		return
	}
	ft := fnVal.Type()

	var deps []reflect.Value
	if ft.NumIn() > 0 && ft.In(0) == ctxType {
		deps = append(deps, reflect.ValueOf(ctx))
	}
	deps = append(deps, a.injector.Dependencies(env.Path, ft)...)

	decodedArgs, _ := a.decode(env.Args).([]any)
	argVals, err := bindArgs(ft, deps, decodedArgs)
	if err != nil {
		a.reply(env, nil, err)
		return
	}

	results := fnVal.Call(argVals)
	val, callErr := splitResults(results)
	if callErr != nil {
		a.reply(env, nil, callErr)
		return
	}
	a.reply(env, val, nil)
}

func (a *ServerAgent) reply(env message.Envelope, val any, callErr error) {
	if env.NoReply {
		return
	}

	if callErr != nil {
		encErr, encErrFailure := a.encode(errorPayload(callErr))
		if encErrFailure != nil {
			tlog.Errorf("server agent %s: failed to encode error reply: %v", a.address, encErrFailure)
			return
		}
		out := message.New(message.Error, "", env.ID)
		out.Err = encErr
		a.send(out)
		return
	}

	encVal, err := a.encode(val)
	if err != nil {
		encErr, _ := a.encode(errorPayload(err))
		out := message.New(message.Error, "", env.ID)
		out.Err = encErr
		a.send(out)
		return
	}
	out := message.New(message.Set, "", env.ID)
	out.Value = encVal
	a.send(out)
}

func (a *ServerAgent) send(env message.Envelope) {
	select {
	case a.out <- env:
	case <-a.Done():
	}
}

// errorPayload turns a Go error into the value encoded onto an Error
// envelope. A *terrors.RemoteError is unwrapped so a re-thrown remote
// exception round-trips as the original value rather than double-wrapping.
func errorPayload(err error) any {
	if re, ok := err.(*terrors.RemoteError); ok {
		return re.Value
	}
	return err.Error()
}
