// Package session implements the per-link cryptographic session layer: an
// authenticated Diffie-Hellman handshake, per-direction symmetric keys,
// AEAD protection of every data packet, and sliding-window replay defense,
// all over an unreliable, unordered, adversarial datagram transport.
//
// # Handshake
//
// Two packet types drive the handshake. The initiator sends a Hello carrying
// its permanent and ephemeral public keys, an optional password
// authenticator, and a MAC; the responder answers with a Key packet of the
// same shape. Session keys are derived from three X25519 agreements
// (ephemeral×ephemeral plus each side's permanent key against the other's
// ephemeral) combined with the optional password, split into one key per
// direction. Either side may renegotiate at any time; the old keys keep
// decrypting in-flight packets until the first data packet authenticates
// under the new ones.
//
// # State machine
//
//	initiator: Unauthenticated → SentHello → Established
//	responder: Unauthenticated → ReceivedHello → SentKey → Established
//
// Established is not terminal — renegotiation re-enters the handshake states
// without interrupting traffic.
//
// # Engine
//
// The Engine owns the session registry and exposes the outward contract:
// BeginSession to bind a peer's address, identity key, and optional
// password; TrySend to encrypt application payloads (buffered while the
// handshake is in flight); HandlePacket as the transport-facing sink. A
// PlaintextSink receives decrypted payloads.
//
// # Failure discipline
//
// Every verification failure — bad MAC, bad authenticator, replayed or
// ancient counter, malformed framing — is a silent local drop. Nothing
// distinguishable crosses the wire, so a probe cannot learn whether a
// session, password, or peer exists.
package session
