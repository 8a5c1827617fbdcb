package session

import "time"

// Nonce-lifetime thresholds. A nonce value is never reused under a given key
// set: well before the counter could wrap, the session proactively
// renegotiates, and at the hard ceiling sends are refused outright.
const (
	// rekeyAfterMessages is the send counter at which a session starts
	// renegotiating while continuing to run on its current keys. Far
	// below the counter's ceiling, so renegotiation has ample room to
	// complete without a service gap.
	rekeyAfterMessages uint64 = 1 << 60

	// rejectAfterMessages is the hard ceiling: counters at or above it
	// are never sent and never accepted. Leaves a safety margin below
	// the wrap point so an off-by-small-n can't reuse a nonce.
	rejectAfterMessages uint64 = (1 << 64) - (1 << 4) - 1
)

// needsRekey reports whether the active key set has consumed enough of its
// nonce space that a fresh handshake should be started. Called with the
// session lock held.
func (s *Session) needsRekey() bool {
	ks := s.keys.current
	if ks == nil {
		return false
	}
	return ks.sendCounter >= rekeyAfterMessages
}

// maybeRekey starts a renegotiation if the nonce budget demands one and no
// handshake is already in flight. Best-effort: a failure is logged and
// retried on a later packet, exactly like a lost Hello. Called with the
// session lock held.
func (s *Session) maybeRekey() {
	if !s.needsRekey() {
		return
	}
	if s.handshake.localEphemeral != nil {
		// renegotiation in flight; resend only if it has gone stale
		if time.Since(s.handshake.helloSent) < helloRetransmitTimeout ||
			s.handshake.attempts >= maxHandshakeAttempts {
			return
		}
	}
	log.WithField("peer", s.addr).Debug("send counter near exhaustion, renegotiating session keys")
	if err := s.sendHello(); err != nil {
		log.WithError(err).Warn("proactive rekey hello failed, will retry on next packet")
	}
}
