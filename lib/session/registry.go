package session

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"

	"github.com/eblanton/cjdns/lib/crypto"
)

// registry maps transport endpoints to sessions and enforces the
// one-active-session invariants: at most one session per endpoint (the
// byAddr map) and at most one per remote identity (the byIdentity index —
// a fresh authenticated handshake from a known identity at a new endpoint
// supersedes and wipes the old session).
type registry struct {
	mu         sync.RWMutex
	byAddr     map[string]*Session
	byIdentity map[crypto.PublicKey]*Session
}

func newRegistry() *registry {
	return &registry{
		byAddr:     make(map[string]*Session),
		byIdentity: make(map[crypto.PublicKey]*Session),
	}
}

// lookup returns the session for an endpoint, or nil.
func (r *registry) lookup(addr string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddr[addr]
}

// lookupOrCreate returns the endpoint's session, creating an
// Unauthenticated one if absent. Creation is serialized under the registry
// lock so racing packets for a new peer share one session.
func (r *registry) lookupOrCreate(addr string, e *Engine) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byAddr[addr]; ok {
		return s
	}
	s := newSession(e, addr)
	r.byAddr[addr] = s
	log.WithFields(logger.Fields{
		"at":       "(registry) lookupOrCreate",
		"peer":     addr,
		"sessions": len(r.byAddr),
	}).Debug("created session")
	return s
}

// bindIdentity indexes a session by its authenticated remote identity. An
// older session for the same identity at a different endpoint is removed
// and wiped; the new handshake supersedes it.
func (r *registry) bindIdentity(s *Session, identity crypto.PublicKey) {
	var stale *Session
	r.mu.Lock()
	if old, ok := r.byIdentity[identity]; ok && old != s {
		delete(r.byAddr, old.addr)
		stale = old
	}
	r.byIdentity[identity] = s
	s.boundIdentity = identity
	r.mu.Unlock()
	if stale != nil {
		log.WithField("peer", stale.addr).Debug("session superseded by fresh handshake from same identity")
		// wiped off this call path: the caller may hold its own
		// session lock, and wipe takes the stale session's
		go stale.wipe()
	}
}

// removeAndWipe drops the endpoint's session and zeroes its key material.
func (r *registry) removeAndWipe(addr string) {
	r.mu.Lock()
	s, ok := r.byAddr[addr]
	if ok {
		delete(r.byAddr, addr)
		r.dropIdentityLocked(s)
	}
	r.mu.Unlock()
	if ok {
		s.wipe()
	}
}

// sweep evicts sessions idle past the inactivity threshold and handshakes
// stalled past the handshake timeout, wiping key material as it goes.
func (r *registry) sweep(inactivity, handshakeTimeout time.Duration) {
	now := time.Now()
	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.byAddr))
	for _, s := range r.byAddr {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	for _, s := range candidates {
		if !s.expired(now, inactivity, handshakeTimeout) {
			continue
		}
		log.WithFields(logger.Fields{
			"at":    "(registry) sweep",
			"peer":  s.addr,
			"state": s.State().String(),
		}).Debug("evicting expired session")
		r.removeAndWipe(s.addr)
	}
}

// wipeAll tears down every session, used on engine shutdown.
func (r *registry) wipeAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byAddr))
	for _, s := range r.byAddr {
		sessions = append(sessions, s)
	}
	r.byAddr = make(map[string]*Session)
	r.byIdentity = make(map[crypto.PublicKey]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.wipe()
	}
}

// size returns the number of live sessions.
func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddr)
}

// dropIdentityLocked removes a session's identity index entry if it still
// points at that session. Registry lock held.
func (r *registry) dropIdentityLocked(s *Session) {
	identity := s.boundIdentity
	if identity.IsZero() {
		return
	}
	if cur, ok := r.byIdentity[identity]; ok && cur == s {
		delete(r.byIdentity, identity)
	}
}
