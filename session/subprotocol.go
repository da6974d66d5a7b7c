package session

// ConnectionMode describes whether a transport preserves an ordered,
// addressable connection (ConnectionOriented) or merely exchanges
// independent messages against a shared target (Connectionless).
type ConnectionMode int

const (
	Connectionless ConnectionMode = iota
	ConnectionOriented
)

// OperationMode describes how many peers a sent message reaches.
type OperationMode int

const (
	Unicast OperationMode = iota
	Multicast
	Broadcast
)

// TransmissionMode describes which directions a subprotocol carries traffic.
type TransmissionMode int

const (
	Simplex TransmissionMode = iota
	HalfDuplex
	Duplex
)

// Subprotocol is the capability token a session is configured with: the
// combination of modes a transport actually supports, which gates whether
// recursive RPC (functions/proxies appearing in call arguments or returns)
// is permitted at all. It is a plain value passed at construction time,
// never a generic type parameter — Go's type system gives no leverage
// encoding these capabilities into types the way a phantom-typed host might.
type Subprotocol struct {
	ConnectionMode   ConnectionMode
	OperationMode    OperationMode
	TransmissionMode TransmissionMode
}

// Bidirectional reports whether this subprotocol permits recursive RPC:
// true iff operation is unicast (not broadcast/multicast) and transmission
// is not simplex. Only a bidirectional subprotocol lets a session await
// replies; all others force every call to noReply.
func (s Subprotocol) Bidirectional() bool {
	return s.OperationMode == Unicast && s.TransmissionMode != Simplex
}

// DefaultSubprotocol is connection-oriented, unicast, full duplex — the
// shape of a plain point-to-point channel (a MessagePort pair, a TCP or
// WebSocket connection) and the default a session assumes absent
// WithSubprotocol.
var DefaultSubprotocol = Subprotocol{
	ConnectionMode:   ConnectionOriented,
	OperationMode:    Unicast,
	TransmissionMode: Duplex,
}
