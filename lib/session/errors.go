package session

import "github.com/samber/oops"

// Failure taxonomy. Every one of these is local to the offending session and
// silent on the wire: packets are dropped, counters ticked, nothing answered.
var (
	// ErrAuthenticationFailure marks a MAC or AEAD tag mismatch.
	ErrAuthenticationFailure = oops.Errorf("packet authentication failed")
	// ErrReplayRejected marks a duplicate or below-window packet counter.
	ErrReplayRejected = oops.Errorf("packet counter replayed or too old")
	// ErrMalformedPacket marks framing the codec refused.
	ErrMalformedPacket = oops.Errorf("malformed packet")
	// ErrHandshakeTimeout marks a handshake that exhausted its retries.
	ErrHandshakeTimeout = oops.Errorf("handshake timed out")
	// ErrUnknownPeer marks traffic for an endpoint with no session.
	ErrUnknownPeer = oops.Errorf("no session for peer")
	// ErrKeyExhaustion marks a send refused because the nonce counter
	// reached its hard ceiling before a rekey completed.
	ErrKeyExhaustion = oops.Errorf("session nonce counter exhausted")
	// ErrSessionFailed marks a session discarded after bounded handshake
	// retries; the caller may begin a fresh session.
	ErrSessionFailed = oops.Errorf("session permanently failed")
	// ErrSendQueueFull marks a payload refused because the pre-handshake
	// buffer is at capacity.
	ErrSendQueueFull = oops.Errorf("session send queue is full")
	// ErrIdentityMismatch marks a handshake whose permanent key does not
	// match the identity pinned for the session.
	ErrIdentityMismatch = oops.Errorf("peer identity key mismatch")
	// ErrEngineClosed is returned by engine calls after Close.
	ErrEngineClosed = oops.Errorf("session engine is closed")
)
