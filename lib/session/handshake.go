package session

import (
	"bytes"
	"crypto/subtle"
	"time"

	"github.com/go-i2p/logger"

	"github.com/eblanton/cjdns/lib/crypto"
)

// sendHello generates a fresh ephemeral key pair and sends a Hello packet,
// entering SentHello (or staying Established during renegotiation). Lock
// held. Requires the peer identity to be pinned: the handshake MAC binds
// both permanent keys, so there is no anonymous initiation.
func (s *Session) sendHello() error {
	if s.peerIdentity.IsZero() {
		return ErrUnknownPeer
	}
	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	s.handshake.reset()
	s.handshake.localEphemeral = ephemeral
	s.handshake.initiator = true
	s.handshake.helloSent = time.Now()
	s.handshake.attempts++

	localIdentity := &s.engine.identity.Public
	auth := passwordAuthenticator(s.password, localIdentity)
	macKey := handshakeMACKey(s.password, localIdentity, &s.peerIdentity)
	defer crypto.ZeroKey(&macKey)
	pkt := buildHandshakePacket(PacketTypeHello, localIdentity, &ephemeral.Public, auth, &macKey)
	if s.state != Established {
		s.state = SentHello
	}
	log.WithFields(logger.Fields{
		"at":      "(Session) sendHello",
		"peer":    s.addr,
		"attempt": s.handshake.attempts,
	}).Debug("sending hello packet")
	return s.engine.transport.SendRaw(pkt, s.addr)
}

// handleHandshake processes a verified-length Hello or Key packet. Every
// failure is a silent drop: no state transition, nothing on the wire, so a
// probe cannot distinguish a wrong password from a nonexistent listener.
func (s *Session) handleHandshake(p *HandshakePacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return ErrSessionFailed
	}
	if !s.peerIdentity.IsZero() && !s.peerIdentity.Equal(&p.SenderPermanent) {
		return ErrIdentityMismatch
	}
	if !s.verifyHandshakeAuth(p) {
		s.handshakeFailure()
		return ErrAuthenticationFailure
	}
	switch p.Type {
	case PacketTypeHello:
		return s.handleHello(p)
	case PacketTypeKey:
		return s.handleKey(p)
	default:
		return ErrMalformedPacket
	}
}

// verifyHandshakeAuth checks the packet MAC and, when a password is
// configured, the password authenticator. Both comparisons are constant
// time. Lock held.
func (s *Session) verifyHandshakeAuth(p *HandshakePacket) bool {
	macKey := handshakeMACKey(s.password, &p.SenderPermanent, &s.engine.identity.Public)
	defer crypto.ZeroKey(&macKey)
	macOK := p.verifyMAC(&macKey)

	authOK := true
	if len(s.password) > 0 {
		expected := passwordAuthenticator(s.password, &p.SenderPermanent)
		authOK = subtle.ConstantTimeCompare(expected[:], p.Authenticator[:]) == 1
	}
	return macOK && authOK
}

// handshakeFailure burns one token from the failure budget; when the budget
// is exhausted the handshake attempt is discarded, and a session that never
// established is abandoned entirely. Lock held.
func (s *Session) handshakeFailure() {
	if s.limiter.Allow() {
		return
	}
	log.WithField("peer", s.addr).Warn("excessive failed handshake attempts, discarding session attempt")
	s.handshake.reset()
	if s.state != Established {
		s.failLocked()
	}
}

// handleHello runs the responder side: derive keys, answer with a Key
// packet, go Established. A Hello bearing the ephemeral that already formed
// an installed key set is a transit duplicate and is dropped without a
// response, so duplication cannot corrupt live keys or double the reply.
// Lock held.
func (s *Session) handleHello(p *HandshakePacket) error {
	for _, ks := range s.keys.candidates() {
		if ks != nil && ks.remoteEphemeral.Equal(&p.SenderEphemeral) {
			log.WithField("peer", s.addr).Debug("duplicate hello for active keys, ignoring")
			return nil
		}
	}
	if s.state == SentHello && s.handshake.initiator {
		// simultaneous hellos: the lower permanent key keeps the
		// initiator role, the higher one answers
		if bytes.Compare(s.engine.identity.Public[:], p.SenderPermanent[:]) < 0 {
			log.WithField("peer", s.addr).Debug("crossed hellos, holding initiator role")
			return nil
		}
		s.handshake.reset()
	}

	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	defer ephemeral.Zero()
	keys, err := deriveSessionKeys(false, s.engine.identity, ephemeral, &p.SenderPermanent, &p.SenderEphemeral, s.password)
	if err != nil {
		return err
	}
	if s.state != Established {
		s.state = ReceivedHello
	}
	s.peerIdentity = p.SenderPermanent

	localIdentity := &s.engine.identity.Public
	auth := passwordAuthenticator(s.password, localIdentity)
	macKey := handshakeMACKey(s.password, localIdentity, &s.peerIdentity)
	pkt := buildHandshakePacket(PacketTypeKey, localIdentity, &ephemeral.Public, auth, &macKey)
	crypto.ZeroKey(&macKey)
	if s.state != Established {
		s.state = SentKey
	}
	if err := s.engine.transport.SendRaw(pkt, s.addr); err != nil {
		keys.wipe()
		return err
	}

	s.keys.install(newKeySet(keys, s.engine.cfg.ReplayWindow, p.SenderEphemeral))
	s.completeHandshake()
	log.WithFields(logger.Fields{
		"at":   "(Session) handleHello",
		"peer": s.addr,
		"key":  s.peerIdentity.String(),
	}).Debug("answered hello, session established")
	return nil
}

// handleKey runs the initiator side: a verified Key packet answers our
// outstanding Hello, completing key agreement. A Key with no Hello in
// flight is dropped. Lock held.
func (s *Session) handleKey(p *HandshakePacket) error {
	if !s.handshake.initiator || s.handshake.localEphemeral == nil {
		return ErrAuthenticationFailure
	}
	keys, err := deriveSessionKeys(true, s.engine.identity, s.handshake.localEphemeral, &p.SenderPermanent, &p.SenderEphemeral, s.password)
	if err != nil {
		return err
	}
	s.peerIdentity = p.SenderPermanent
	s.keys.install(newKeySet(keys, s.engine.cfg.ReplayWindow, p.SenderEphemeral))
	s.completeHandshake()
	log.WithFields(logger.Fields{
		"at":   "(Session) handleKey",
		"peer": s.addr,
		"key":  s.peerIdentity.String(),
	}).Debug("key packet accepted, session established")
	return nil
}

// completeHandshake discards handshake scratch state, settles the session
// into Established, and flushes payloads buffered while the handshake was
// in flight. Lock held; callers install the key set first.
func (s *Session) completeHandshake() {
	s.handshake.reset()
	s.handshake.attempts = 0
	s.state = Established
	now := time.Now()
	s.establishedAt = now
	s.lastPacket = now
	s.engine.stats.handshakes.Add(1)
	s.engine.bindIdentity(s, s.peerIdentity)
	s.flushSendBuffer()
}
