// Package idgen is the narrow seam through which the core consumes ID
// generation — listed in the specification as an external collaborator
// rather than core machinery. The default Generator is backed by
// github.com/google/uuid; callers may substitute their own (the teacher's
// service.connectionService.SessionID plays the analogous role for session
// identifiers, generalized here to cover message ids and auto-assigned
// addresses too).
package idgen

import "github.com/google/uuid"

// Generator produces fresh, process-wide-unique identifiers. Implementations
// must be safe for concurrent use.
type Generator interface {
	// NewID returns a fresh correlation id for a message envelope.
	NewID() string
	// NewAddress returns a fresh address for an agent that was not given an
	// explicit one.
	NewAddress() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string      { return uuid.NewString() }
func (uuidGenerator) NewAddress() string { return uuid.NewString() }

// Default is the package-level Generator used when callers do not supply
// their own via transporter.WithIDGenerator.
var Default Generator = uuidGenerator{}

// namespaced prefixes every generated address with a fixed namespace,
// leaving message ids untouched (ids only need to be unique within one
// session's correlation table, never across addresses).
type namespaced struct {
	Generator
	prefix string
}

// Namespaced wraps g so every address it generates is prefixed with
// namespace + "/", the way transporter.WithNamespace scopes addresses
// spawned by one side of a connection.
func Namespaced(g Generator, namespace string) Generator {
	if namespace == "" {
		return g
	}
	return namespaced{Generator: g, prefix: namespace + "/"}
}

func (n namespaced) NewAddress() string { return n.prefix + n.Generator.NewAddress() }
