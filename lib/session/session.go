package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eblanton/cjdns/lib/crypto"
	"github.com/eblanton/cjdns/lib/session/replay"
)

const (
	// helloRetransmitTimeout is how long an initiator waits for a Key
	// packet before regenerating its ephemeral and resending the Hello.
	helloRetransmitTimeout = 5 * time.Second

	// maxHandshakeAttempts bounds Hello retransmissions before the
	// session is declared failed.
	maxHandshakeAttempts = 10

	// handshakeFailureRate and handshakeFailureBurst budget how many
	// handshake packets that fail verification a session will keep
	// processing. Beyond the budget the attempt is discarded, bounding
	// the CPU an attacker can burn on forged handshakes.
	handshakeFailureRate  = rate.Limit(4)
	handshakeFailureBurst = 8
)

// keySet is one generation of negotiated session keys with its send counter
// and replay filter. A session holds up to three generations during
// renegotiation (current, previous, next).
type keySet struct {
	keys        *sessionKeys
	sendCounter uint64
	filter      *replay.Filter
	created     time.Time

	// remoteEphemeral is the peer ephemeral that produced this key set,
	// kept to recognize and ignore duplicated handshake packets.
	remoteEphemeral crypto.PublicKey
}

func newKeySet(keys *sessionKeys, window uint64, remoteEphemeral crypto.PublicKey) *keySet {
	return &keySet{
		keys:            keys,
		filter:          replay.New(window),
		created:         time.Now(),
		remoteEphemeral: remoteEphemeral,
	}
}

func (ks *keySet) wipe() {
	if ks == nil || ks.keys == nil {
		return
	}
	ks.keys.wipe()
	ks.keys = nil
}

// keyRotation implements the old-keys-stay-valid rule for renegotiation:
// a completed handshake installs next; the first inbound packet that
// authenticates under next promotes it to current and retires previous.
// In-flight packets sealed under the old keys keep decrypting until then.
type keyRotation struct {
	current  *keySet
	previous *keySet
	next     *keySet
}

// sendKeySet picks the key set for outgoing data: next when a renegotiation
// awaits confirmation (our packet is what confirms it on the far side),
// otherwise current.
func (kr *keyRotation) sendKeySet() *keySet {
	if kr.next != nil {
		return kr.next
	}
	return kr.current
}

// candidates returns key sets in decryption trial order.
func (kr *keyRotation) candidates() [3]*keySet {
	return [3]*keySet{kr.current, kr.next, kr.previous}
}

// install adds a freshly negotiated key set. The first handshake installs
// current directly; later ones stage next, wiping any unconfirmed
// predecessor.
func (kr *keyRotation) install(ks *keySet) {
	if kr.current == nil {
		kr.current = ks
		return
	}
	kr.next.wipe()
	kr.next = ks
}

// promote makes ks current if it is the staged next set.
func (kr *keyRotation) promote(ks *keySet) {
	if ks != kr.next {
		return
	}
	kr.previous.wipe()
	kr.previous = kr.current
	kr.current = kr.next
	kr.next = nil
}

func (kr *keyRotation) wipe() {
	kr.current.wipe()
	kr.previous.wipe()
	kr.next.wipe()
	kr.current, kr.previous, kr.next = nil, nil, nil
}

// handshakeState is the initiator's in-flight handshake bookkeeping. The
// responder side is stateless: it answers a Hello and forgets.
type handshakeState struct {
	localEphemeral *crypto.KeyPair
	initiator      bool
	helloSent      time.Time
	attempts       int
}

func (h *handshakeState) reset() {
	if h.localEphemeral != nil {
		h.localEphemeral.Zero()
	}
	h.localEphemeral = nil
	h.initiator = false
}

// Session is the per-peer cryptographic state: handshake phase, negotiated
// key generations, replay windows, and the pre-handshake send buffer.
// All mutable state is guarded by mu; methods lock internally.
type Session struct {
	mu sync.Mutex

	engine *Engine
	addr   string

	state        State
	peerIdentity crypto.PublicKey
	password     []byte

	keys      keyRotation
	handshake handshakeState

	sendBuffer [][]byte

	created       time.Time
	establishedAt time.Time
	lastPacket    time.Time

	limiter *rate.Limiter
	failed  bool

	// boundIdentity is the identity this session is indexed under in the
	// registry. Guarded by the registry lock, not mu.
	boundIdentity crypto.PublicKey
}

func newSession(e *Engine, addr string) *Session {
	now := time.Now()
	return &Session{
		engine:     e,
		addr:       addr,
		state:      Unauthenticated,
		password:   e.cfg.Password,
		created:    now,
		lastPacket: now,
		limiter:    rate.NewLimiter(handshakeFailureRate, handshakeFailureBurst),
	}
}

// Addr returns the transport endpoint this session is bound to.
func (s *Session) Addr() string {
	return s.addr
}

// State returns the session's handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PeerIdentity returns the remote permanent key, zero until the handshake
// completes or the identity was pinned via BeginSession.
func (s *Session) PeerIdentity() crypto.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerIdentity
}

// configure pins the remote identity and password ahead of the handshake.
func (s *Session) configure(peerKey *crypto.PublicKey, password []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.peerIdentity.IsZero() && !s.peerIdentity.Equal(peerKey) {
		return ErrIdentityMismatch
	}
	s.peerIdentity = *peerKey
	if password != nil {
		s.password = password
	}
	return nil
}

// trySend is the outbound contract: encrypt immediately when Established,
// otherwise drive the handshake forward and buffer the payload.
func (s *Session) trySend(payload []byte) (SendStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return 0, ErrSessionFailed
	}
	switch s.state {
	case Established:
		if err := s.sendData(payload); err != nil {
			return 0, err
		}
		s.maybeRekey()
		return Sent, nil
	case Unauthenticated:
		if err := s.sendHello(); err != nil {
			return 0, err
		}
		return s.buffer(payload)
	default:
		if err := s.maybeRetransmitHello(); err != nil {
			return 0, err
		}
		return s.buffer(payload)
	}
}

// sendData seals payload under the active key set and hands it to the
// transport. Lock held.
func (s *Session) sendData(payload []byte) error {
	ks := s.keys.sendKeySet()
	if ks == nil || ks.keys == nil {
		return ErrSessionFailed
	}
	if ks.sendCounter+1 >= rejectAfterMessages {
		return ErrKeyExhaustion
	}
	ks.sendCounter++
	pkt, err := buildDataPacket(&ks.keys.send, ks.sendCounter, payload)
	if err != nil {
		return err
	}
	s.engine.stats.sent.Add(1)
	return s.engine.transport.SendRaw(pkt, s.addr)
}

// buffer queues a payload for delivery once the handshake completes. Lock
// held.
func (s *Session) buffer(payload []byte) (SendStatus, error) {
	if len(s.sendBuffer) >= s.engine.cfg.MaxBufferedPayloads {
		return 0, ErrSendQueueFull
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.sendBuffer = append(s.sendBuffer, buf)
	return Buffered, nil
}

// flushSendBuffer drains payloads buffered during the handshake. Lock held;
// only called once Established.
func (s *Session) flushSendBuffer() {
	for _, payload := range s.sendBuffer {
		if err := s.sendData(payload); err != nil {
			log.WithError(err).WithField("peer", s.addr).Warn("failed to flush buffered payload")
		}
	}
	s.sendBuffer = nil
}

// receiveData runs the inbound steady-state path: replay check, constant-
// time open, window update — in that order, so a forged packet can neither
// consume a counter slot nor advance the window. Key generations are tried
// current-first; success under a staged next set promotes it.
func (s *Session) receiveData(p *DataPacket) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys.current == nil {
		return nil, ErrUnknownPeer
	}
	sawFreshCounter := false
	for _, ks := range s.keys.candidates() {
		if ks == nil || ks.keys == nil {
			continue
		}
		if !ks.filter.Check(p.Counter, rejectAfterMessages) {
			continue
		}
		sawFreshCounter = true
		plaintext, err := p.open(&ks.keys.recv)
		if err != nil {
			continue
		}
		ks.filter.Update(p.Counter, rejectAfterMessages)
		s.keys.promote(ks)
		s.lastPacket = time.Now()
		return plaintext, nil
	}
	if sawFreshCounter {
		return nil, ErrAuthenticationFailure
	}
	return nil, ErrReplayRejected
}

// maybeRetransmitHello resends the Hello with a fresh ephemeral when the
// previous attempt has gone unanswered. Bounded; exhausting the budget
// fails the session. Lock held.
func (s *Session) maybeRetransmitHello() error {
	if !s.handshake.initiator {
		return nil
	}
	if time.Since(s.handshake.helloSent) < helloRetransmitTimeout {
		return nil
	}
	if s.handshake.attempts >= maxHandshakeAttempts {
		s.failLocked()
		return ErrHandshakeTimeout
	}
	return s.sendHello()
}

// expired reports whether the sweep should evict this session.
func (s *Session) expired(now time.Time, inactivity, handshakeTimeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return true
	}
	if s.state == Established {
		return now.Sub(s.lastPacket) > inactivity
	}
	return now.Sub(s.created) > handshakeTimeout
}

// failLocked marks the session permanently failed and wipes key material.
func (s *Session) failLocked() {
	s.failed = true
	s.handshake.reset()
	s.keys.wipe()
	s.sendBuffer = nil
}

// wipe zeroes all key material. The session must already be out of the
// registry by the time this runs.
func (s *Session) wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked()
}
