package transporter

import (
	"time"

	"github.com/nano-kit/transporter/agent"
	"github.com/nano-kit/transporter/idgen"
	"github.com/nano-kit/transporter/inject"
	"github.com/nano-kit/transporter/session"
	"github.com/nano-kit/transporter/socket"
	"github.com/nano-kit/transporter/tlog"
)

// config collects every knob Option can set, translated per-call rather
// than into a process-wide mutable struct — unlike the teacher's
// cluster.Options, Transporter has no singleton Listen, so callers may run
// many independent sessions with different configs concurrently.
type config struct {
	address       string
	serverAddress string
	namespace     string
	origin        string
	callTimeout   time.Duration

	session session.Config
	socket  socket.Config
}

func newConfig() config {
	return config{
		session: session.DefaultConfig(),
		socket:  socket.DefaultConfig(),
	}
}

// Option configures Expose, Connect, or Listen.
type Option func(*config)

// WithAddress overrides the address an exposed value's root server agent
// registers under. The default is "", the well-known root a peer's
// Connect resolves to.
func WithAddress(address string) Option {
	return func(c *config) { c.address = address }
}

// WithServerAddress overrides the address a Connect's root client agent
// targets. The default is "", matching a peer's default WithAddress.
func WithServerAddress(address string) Option {
	return func(c *config) { c.serverAddress = address }
}

// WithNamespace prefixes every address this side generates (for spawned
// server agents backing functions/proxies passed as call arguments or
// returns) with namespace + "/".
func WithNamespace(namespace string) Option {
	return func(c *config) { c.namespace = namespace }
}

// WithOrigin sets the origin Listen builds its socket.ServerConfig
// ConnectFilter from (accept only connections whose origin equals it).
// socket.Server does not call ConnectFilter, so this option does not change
// which connections Listen accepts; Expose and Connect ignore it.
func WithOrigin(origin string) Option {
	return func(c *config) { c.origin = origin }
}

// WithTimeout overrides agent.DefaultCallTimeout for calls made through the
// root Proxy Connect returns and proxies derived from it with Get. Expose
// and Listen ignore it, and proxies decoded from call arguments or results
// keep agent.DefaultCallTimeout. Like DefaultCallTimeout, it applies only
// when the call's ctx has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.callTimeout = d }
}

// WithBufferLimit overrides socket.Config.BufferLimit.
func WithBufferLimit(n int) Option {
	return func(c *config) { c.socket.BufferLimit = n }
}

// WithBufferOverflowStrategy overrides socket.Config.OverflowStrategy.
func WithBufferOverflowStrategy(strategy socket.OverflowStrategy) Option {
	return func(c *config) { c.socket.OverflowStrategy = strategy }
}

// WithConnectTimeout overrides socket.Config.ConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) { c.socket.ConnectTimeout = d }
}

// WithDisconnectTimeout overrides socket.Config.DisconnectTimeout.
func WithDisconnectTimeout(d time.Duration) Option {
	return func(c *config) { c.socket.DisconnectTimeout = d }
}

// WithHeartbeatInterval overrides socket.Config.HeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) { c.socket.HeartbeatInterval = d }
}

// WithHeartbeatTimeout overrides socket.Config.HeartbeatTimeout.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *config) { c.socket.HeartbeatTimeout = d }
}

// WithSubprotocol overrides session.DefaultSubprotocol.
func WithSubprotocol(p session.Subprotocol) Option {
	return func(c *config) { c.session.Subprotocol = p }
}

// WithInjector installs the dependency-injection seam a server agent
// consults before invoking an exposed function.
func WithInjector(injector inject.Injector) Option {
	return func(c *config) { c.session.Injector = injector }
}

// WithIDGenerator overrides the default uuid-backed idgen.Generator used
// for both message ids and spawned-agent addresses.
func WithIDGenerator(g idgen.Generator) Option {
	return func(c *config) {
		c.session.IDGenerator = g
	}
}

// WithLogger overrides the package-wide logger every component reaches
// through tlog. Like the teacher's own WithLogger, this is process-global,
// not scoped to one session.
func WithLogger(l tlog.Logger) Option {
	return func(*config) { tlog.SetLogger(l) }
}

func (c config) clientOptions() []agent.ClientOption {
	var opts []agent.ClientOption
	if c.callTimeout > 0 {
		opts = append(opts, agent.WithCallTimeout(c.callTimeout))
	}
	return opts
}
