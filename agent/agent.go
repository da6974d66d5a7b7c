// Package agent implements the client/server agent pair: the client agent
// owns an outbound address and generates the proxy tree for it; the server
// agent owns an inbound address, resolves call paths against an exposed
// value, and replies. This generalizes the teacher's cluster.agent (which
// owns one user connection's send loop and heartbeat) into two narrower
// roles split along the specification's Client Agent / Server Agent line.
package agent

import (
	"github.com/nano-kit/transporter/message"
)

// Encoder runs the codec's Encode against a session's live makeRef hook. It
// is supplied by the owning session so agents never construct their own
// codec wiring.
type Encoder func(value any) (any, error)

// Decoder runs the codec's Decode against a session's live makeProxy hook.
type Decoder func(value any) any

// PendingTable is the seam a session implements so client agents can await
// a reply without owning their own correlation table — the specification's
// "single outstanding-call table keyed by message id" lives at the session,
// since ids are unique per session regardless of how many client agents it
// hosts.
type PendingTable interface {
	// Await registers id and returns a channel that receives exactly one
	// Set or Error envelope addressed to it, then is never written again.
	Await(id string) <-chan message.Envelope
	// Cancel unregisters id without waiting for a reply (on timeout or
	// cancellation); it is always safe to call even if a reply already
	// arrived.
	Cancel(id string)
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return ""
	}
	out := path[0]
	for _, p := range path[1:] {
		out += "\x1f" + p
	}
	return out
}
