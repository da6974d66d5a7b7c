package agent

import "context"

// Proxy is a handle standing in for a remote function or object reached at
// Address()/Path(). It is the Go translation of the specification's dynamic
// proxy: since Go has no property interception, Get synthesizes child
// handles explicitly and Call performs the remote invocation explicitly,
// per the specification's own Design Notes for statically typed hosts.
//
// Two Proxy values obtained from the same ClientAgent for the same path are
// always the same *Proxy (pointer equality), which is the referential
// stability the specification requires for safe memoization of remote
// calls.
type Proxy struct {
	agent *ClientAgent
	path  []string
}

// IsTransporterProxy satisfies codec.Proxy, marking this value for
// reference-encoding rather than traversal.
func (p *Proxy) IsTransporterProxy() bool { return true }

// Address returns the remote server agent address this proxy targets.
func (p *Proxy) Address() string { return p.agent.serverAddress }

// Path returns the property path synthesized to reach this proxy from its
// root, e.g. []string{"foo", "bar"} for proxy.Get("foo").Get("bar").
func (p *Proxy) Path() []string {
	out := make([]string, len(p.path))
	copy(out, p.path)
	return out
}

// Get returns the memoized child proxy for path()++[name]. Calling Get with
// the same name on proxies reached the same way always returns the same
// *Proxy, even across intervening garbage collection of other proxies.
func (p *Proxy) Get(name string) *Proxy {
	return p.agent.proxyFor(append(append([]string{}, p.path...), name))
}

// Call invokes the remote function this proxy addresses with args, blocking
// until a reply arrives, ctx is done, or the call timeout elapses. A remote
// thrown/rejected value surfaces as *terrors.RemoteError.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	return p.agent.call(ctx, p.path, args)
}

// Release deterministically tears down the underlying client agent,
// sending GarbageCollect to the peer immediately rather than waiting for
// this proxy (or its siblings) to become unreachable. Safe to call more
// than once. This is the explicit escape hatch the specification's Design
// Notes require wherever finalization timing cannot be relied upon.
func (p *Proxy) Release() {
	p.agent.Terminate()
}
