package session

// State is a session's position in the handshake state machine.
type State int

const (
	// Unauthenticated is the initial state: no handshake traffic yet.
	Unauthenticated State = iota
	// SentHello: we initiated and are waiting for the peer's Key packet.
	SentHello
	// ReceivedHello: a verified Hello arrived and a Key reply is being
	// composed. Transient — the responder moves on immediately.
	ReceivedHello
	// SentKey: the Key reply has been handed to the transport. Transient
	// on the way to Established.
	SentKey
	// Established is the steady state: session keys are live in both
	// directions. Not terminal; renegotiation re-enters SentHello or
	// ReceivedHello while traffic continues under the old keys.
	Established
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case SentHello:
		return "sent-hello"
	case ReceivedHello:
		return "received-hello"
	case SentKey:
		return "sent-key"
	case Established:
		return "established"
	default:
		return "unknown"
	}
}
