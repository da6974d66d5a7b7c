// Package message defines the transporter wire envelope: a tagged union of
// call/return/error/gc/heartbeat/handshake/request-response variants, plus
// the reference-encoding rule the codec package applies to payloads. This is
// the Go equivalent of the teacher's internal/message package (Message{Type,
// Route, Data, ID}), generalized from nano's binary packet framing to
// transporter's envelope-plus-native-payload shape.
package message

import (
	"encoding/json"
	"strings"
)

// Protocol is the constant protocol tag every envelope carries.
const Protocol = "transporter"

// Version is this implementation's semver. Compatible peers share a major
// and minor component; patch differences are silent.
const Version = "1.0.0"

// Kind tags which variant an Envelope carries.
type Kind int

const (
	// Call invokes a function at Path with Args.
	Call Kind = iota
	// Set is a successful reply carrying the encoded return Value.
	Set
	// Error is a failure reply carrying the encoded thrown Err.
	Error
	// GarbageCollect notifies a server agent that its client-side proxy has
	// been finalized.
	GarbageCollect
	// Ping is a socket heartbeat probe.
	Ping
	// Pong answers a Ping with the same ID.
	Pong
	// Connect requests a socket handshake at Address.
	Connect
	// Connected acknowledges a Connect.
	Connected
	// Disconnect begins an orderly socket teardown.
	Disconnect
	// Disconnected acknowledges a Disconnect.
	Disconnected
	// Request is a stateless unicast call (reqres package).
	Request
	// Response answers a Request with the same ID.
	Response
)

func (k Kind) String() string {
	switch k {
	case Call:
		return "Call"
	case Set:
		return "Set"
	case Error:
		return "Error"
	case GarbageCollect:
		return "GarbageCollect"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	case Connect:
		return "Connect"
	case Connected:
		return "Connected"
	case Disconnect:
		return "Disconnect"
	case Disconnected:
		return "Disconnected"
	case Request:
		return "Request"
	case Response:
		return "Response"
	default:
		return "Unknown"
	}
}

// Envelope is the single wire struct every message type is carried in.
// Fields irrelevant to a given Kind are left at their zero value;
// `json:",omitempty"` keeps the serialized form close to the specification's
// per-variant field lists.
type Envelope struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
	Address  string `json:"address"`
	ID       string `json:"id"`
	Kind     Kind   `json:"type"`

	// Call
	Path    []string `json:"path,omitempty"`
	Args    []any    `json:"args,omitempty"`
	NoReply bool     `json:"noReply,omitempty"`

	// Set
	Value any `json:"value,omitempty"`

	// Error
	Err any `json:"error,omitempty"`

	// Request/Response
	Origin string `json:"origin,omitempty"`
	Body   any    `json:"body,omitempty"`
}

// New builds an Envelope stamped with the current Protocol/Version.
func New(kind Kind, address, id string) Envelope {
	return Envelope{
		Protocol: Protocol,
		Version:  Version,
		Address:  address,
		ID:       id,
		Kind:     kind,
	}
}

// Ref is the reference-encoding the codec substitutes for any function or
// proxy encountered inside a payload.
type Ref struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// RefType is the tag value Ref.Type always carries.
const RefType = "Proxy"

// NewRef builds a Ref for address.
func NewRef(address string) Ref { return Ref{Type: RefType, Address: address} }

// Undefined is the sentinel substituted for a nil/undefined value when the
// transport's native encoding (encoding/json here) would otherwise drop it
// silently — e.g. a map value of nil, or a missing trailing argument.
type Undefined struct{}

// Compatible reports whether a peer running version `remote` may safely
// exchange envelopes with this build's Version: same major and minor
// component. Patch differences are always compatible and never logged.
func Compatible(remote string) bool {
	lm, ln, _ := splitSemver(Version)
	rm, rn, _ := splitSemver(remote)
	return lm == rm && ln == rn
}

// Decode normalizes a payload handed up from a transport.Port into an
// Envelope. In-memory transports (transport.Pipe) deliver an Envelope
// directly; wire transports (transport/ws included) deliver it JSON-encoded
// as json.RawMessage or []byte, since encoding/json is what decoded the
// frame off the wire in the first place. Any other shape is not an
// Envelope at all and is reported as such.
func Decode(payload any) (Envelope, bool) {
	switch v := payload.(type) {
	case Envelope:
		return v, true
	case json.RawMessage:
		var env Envelope
		if err := json.Unmarshal(v, &env); err != nil {
			return Envelope{}, false
		}
		return env, true
	case []byte:
		var env Envelope
		if err := json.Unmarshal(v, &env); err != nil {
			return Envelope{}, false
		}
		return env, true
	default:
		return Envelope{}, false
	}
}

func splitSemver(v string) (major, minor, patch string) {
	parts := strings.SplitN(v, ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return parts[0], parts[1], parts[2]
}
