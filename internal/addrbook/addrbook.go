// Package addrbook is the map of claimed addresses per address space, the
// Go translation of the specification's Address Book component. It plays
// the same role as the teacher's service.Connections / internal/env
// singletons: Global is one mutex-guarded package-level Book for the whole
// process, and New builds independent Books (each session.Session uses its
// own). Global belongs to one copy of this package: a second copy linked in
// under another import path has its own Global, so uniqueness does not span
// copies.
package addrbook

import (
	"sync"

	"github.com/nano-kit/transporter/terrors"
)

// Space names a scope within the address book (e.g. the teacher's analogous
// per-kind registries: localServices, localHandlers, sessions).
type Space string

const (
	// SpaceClientAgent names the client-agent space. Client agents in this
	// module do not claim addresses in it; nothing registers here.
	SpaceClientAgent Space = "ClientAgent"
	// SpaceServerAgent is the space every exposed value's server agent
	// claims its address under.
	SpaceServerAgent Space = "ServerAgent"
	// SpaceSocketServer is the space socket.Server listeners claim their
	// advertised address under.
	SpaceSocketServer Space = "SocketServer"
)

// Book is a claimed-address registry. The zero value is not usable; use New.
type Book struct {
	mu      sync.Mutex
	claimed map[Space]map[string]struct{}
}

// New returns an empty Book.
func New() *Book {
	return &Book{claimed: make(map[Space]map[string]struct{})}
}

// Global is the process-wide Book socket.Server uses by default and
// agent.NewServerAgent falls back to when given a nil book; sessions use
// their own Books. Analogous to the teacher's package-level
// service.Connections.
var Global = New()

// Add claims addr within space, returning terrors.ErrUniqueAddress if
// another live agent already holds it.
func (b *Book) Add(space Space, addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.claimed[space]
	if !ok {
		set = make(map[string]struct{})
		b.claimed[space] = set
	}
	if _, taken := set[addr]; taken {
		return terrors.ErrUniqueAddress
	}
	set[addr] = struct{}{}
	return nil
}

// Release frees addr within space. It is idempotent: releasing an address
// that was never claimed, or was already released, is a no-op.
func (b *Book) Release(space Space, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.claimed[space]; ok {
		delete(set, addr)
	}
}

// Has reports whether addr is currently claimed within space. Intended for
// tests and diagnostics, not for check-then-act address claiming (use Add).
func (b *Book) Has(space Space, addr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.claimed[space]
	if !ok {
		return false
	}
	_, ok = set[addr]
	return ok
}
