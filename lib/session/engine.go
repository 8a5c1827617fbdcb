package session

import (
	"errors"
	"sync"
	"time"

	"github.com/go-i2p/logger"

	"github.com/eblanton/cjdns/lib/crypto"
	"github.com/eblanton/cjdns/lib/transport"
)

// Compile-time check that Engine is a valid transport packet sink.
var _ transport.PacketSink = (*Engine)(nil)

// SendStatus reports what TrySend did with a payload.
type SendStatus int

const (
	// Sent: the payload was encrypted and handed to the transport.
	Sent SendStatus = iota + 1
	// Buffered: a handshake is in flight; the payload will be flushed
	// when the session establishes.
	Buffered
)

func (st SendStatus) String() string {
	switch st {
	case Sent:
		return "sent"
	case Buffered:
		return "buffered"
	default:
		return "unknown"
	}
}

// PlaintextSink receives decrypted application payloads, identified by the
// sending peer's authenticated permanent key. Implemented by the routing
// layer above the engine.
type PlaintextSink interface {
	HandlePlaintext(peer crypto.PublicKey, payload []byte)
}

// Config is the session engine's tuning surface.
type Config struct {
	// ReplayWindow is the replay filter lookback in packets. Must cover
	// realistic transport reordering; memory cost is one bit per packet.
	ReplayWindow uint64
	// InactivityTimeout evicts established sessions with no traffic.
	InactivityTimeout time.Duration
	// HandshakeTimeout evicts sessions stuck mid-handshake.
	HandshakeTimeout time.Duration
	// MaxBufferedPayloads bounds the per-session pre-handshake queue.
	MaxBufferedPayloads int
	// SweepInterval is how often the registry runs eviction.
	SweepInterval time.Duration
	// Password, when set, is required of unsolicited inbound handshakes.
	// BeginSession may override it per peer.
	Password []byte
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		ReplayWindow:        1024,
		InactivityTimeout:   120 * time.Second,
		HandshakeTimeout:    60 * time.Second,
		MaxBufferedPayloads: 32,
		SweepInterval:       30 * time.Second,
	}
}

// Engine is the session layer's outward surface: it owns the registry,
// implements the transport-facing PacketSink, and exposes BeginSession and
// TrySend to the layers above. Safe for concurrent use.
type Engine struct {
	identity  *crypto.KeyPair
	cfg       *Config
	transport transport.RawTransport
	sink      PlaintextSink
	registry  *registry
	stats     engineStats

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewEngine creates a session engine around a local identity key pair and
// starts the registry sweep. Call Close to stop it and wipe all sessions.
func NewEngine(identity *crypto.KeyPair, cfg *Config, tr transport.RawTransport, sink PlaintextSink) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{
		identity:  identity,
		cfg:       cfg,
		transport: tr,
		sink:      sink,
		registry:  newRegistry(),
		done:      make(chan struct{}),
	}
	e.wg.Add(1)
	go e.sweepLoop()
	log.WithFields(logger.Fields{
		"at":       "NewEngine",
		"identity": identity.Public.String(),
	}).Debug("session engine started")
	return e
}

// LocalIdentity returns the engine's permanent public key.
func (e *Engine) LocalIdentity() crypto.PublicKey {
	return e.identity.Public
}

// BeginSession binds a peer's endpoint to its known permanent key and an
// optional shared password. No packet is sent yet; the handshake starts on
// the first TrySend, or when the peer contacts us first.
func (e *Engine) BeginSession(addr string, peerKey *crypto.PublicKey, password []byte) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if peerKey == nil || peerKey.IsZero() {
		return crypto.ErrInvalidPublicKey
	}
	s := e.registry.lookupOrCreate(addr, e)
	return s.configure(peerKey, password)
}

// TrySend delivers a payload to the peer at addr: encrypted immediately on
// an established session, buffered while a handshake is in flight. The peer
// must have been introduced via BeginSession or an inbound handshake.
func (e *Engine) TrySend(addr string, payload []byte) (SendStatus, error) {
	if e.isClosed() {
		return 0, ErrEngineClosed
	}
	s := e.registry.lookup(addr)
	if s == nil {
		return 0, ErrUnknownPeer
	}
	st, err := s.trySend(payload)
	if errors.Is(err, ErrSessionFailed) || errors.Is(err, ErrHandshakeTimeout) {
		e.registry.removeAndWipe(addr)
	}
	return st, err
}

// HandlePacket is the transport callback: decode the type tag once at the
// boundary, route to the owning session, count every drop. Nothing here
// ever answers a bad packet.
func (e *Engine) HandlePacket(raw []byte, from string) {
	if e.isClosed() || len(raw) == 0 {
		return
	}
	switch raw[0] {
	case PacketTypeHello, PacketTypeKey:
		e.handleHandshakePacket(raw, from)
	case PacketTypeData:
		e.handleDataPacket(raw, from)
	default:
		e.stats.malformed.Add(1)
	}
}

func (e *Engine) handleHandshakePacket(raw []byte, from string) {
	p, err := parseHandshakePacket(raw)
	if err != nil {
		e.stats.malformed.Add(1)
		return
	}
	var s *Session
	if p.Type == PacketTypeHello {
		// first contact from an unknown peer creates its session
		s = e.registry.lookupOrCreate(from, e)
	} else if s = e.registry.lookup(from); s == nil {
		e.stats.unknownPeer.Add(1)
		return
	}
	if err := s.handleHandshake(p); err != nil {
		e.countDrop(err)
		log.WithError(err).WithField("peer", from).Debug("handshake packet dropped")
	}
}

func (e *Engine) handleDataPacket(raw []byte, from string) {
	p, err := parseDataPacket(raw)
	if err != nil {
		e.stats.malformed.Add(1)
		return
	}
	s := e.registry.lookup(from)
	if s == nil {
		e.stats.unknownPeer.Add(1)
		return
	}
	plaintext, err := s.receiveData(p)
	if err != nil {
		e.countDrop(err)
		log.WithError(err).WithField("peer", from).Debug("data packet dropped")
		return
	}
	e.stats.delivered.Add(1)
	if e.sink != nil {
		e.sink.HandlePlaintext(s.PeerIdentity(), plaintext)
	}
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	return e.registry.size()
}

// Close stops the sweep and wipes every session's key material.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		e.registry.wipeAll()
		e.identity.Zero()
		log.WithField("at", "(Engine) Close").Debug("session engine closed")
	})
	return nil
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// bindIdentity indexes a freshly authenticated session by remote identity.
func (e *Engine) bindIdentity(s *Session, identity crypto.PublicKey) {
	e.registry.bindIdentity(s, identity)
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.registry.sweep(e.cfg.InactivityTimeout, e.cfg.HandshakeTimeout)
		}
	}
}

func (e *Engine) countDrop(err error) {
	switch {
	case errors.Is(err, ErrAuthenticationFailure), errors.Is(err, ErrIdentityMismatch):
		e.stats.authFailures.Add(1)
	case errors.Is(err, ErrReplayRejected):
		e.stats.replaysRejected.Add(1)
	case errors.Is(err, ErrMalformedPacket):
		e.stats.malformed.Add(1)
	case errors.Is(err, ErrUnknownPeer):
		e.stats.unknownPeer.Add(1)
	default:
		e.stats.otherDrops.Add(1)
	}
}
