package session

import (
	"github.com/nano-kit/transporter/idgen"
	"github.com/nano-kit/transporter/inject"
	"github.com/nano-kit/transporter/internal/addrbook"
)

// Config collects everything a Session needs at construction. The root
// transporter package builds one of these from its own functional options
// (options.go) and hands it to New; Session itself takes no variadic
// options, keeping the option-parsing concern at the one public surface.
type Config struct {
	Subprotocol Subprotocol
	Injector    inject.Injector
	IDGenerator idgen.Generator
	Book        *addrbook.Book

	// InputBuffer/OutputBuffer size the channels Input()/Output() expose.
	// A transport adapter that cannot keep up with an unbuffered handoff
	// should size these generously rather than have the session block.
	InputBuffer  int
	OutputBuffer int
}

// DefaultConfig returns the Config a bare session.New(session.DefaultConfig())
// would use: a duplex point-to-point subprotocol, no injected dependencies,
// uuid-backed ids, unbuffered channels. Book is left nil so every session
// gets its own fresh address space (see withDefaults) — addresses are only
// ever compared within one session's envelopes, so sharing a single
// process-wide book across unrelated sessions would make an unrelated
// peer's address collide with this one's.
func DefaultConfig() Config {
	return Config{
		Subprotocol: DefaultSubprotocol,
		Injector:    inject.NopInjector{},
		IDGenerator: idgen.Default,
	}
}

func (c Config) withDefaults() Config {
	if c.Injector == nil {
		c.Injector = inject.NopInjector{}
	}
	if c.IDGenerator == nil {
		c.IDGenerator = idgen.Default
	}
	if c.Book == nil {
		c.Book = addrbook.New()
	}
	return c
}
