// Package node wires the daemon together: identity keystore, session
// engine, and UDP transport, with a Start/Stop/Wait lifecycle.
package node

import (
	"sync"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/eblanton/cjdns/lib/config"
	"github.com/eblanton/cjdns/lib/crypto"
	"github.com/eblanton/cjdns/lib/keys"
	"github.com/eblanton/cjdns/lib/session"
	"github.com/eblanton/cjdns/lib/transport/udp"
)

var log = logger.GetGoI2PLogger()

// PlaintextHandler receives decrypted application payloads from peers.
type PlaintextHandler func(peer crypto.PublicKey, payload []byte)

// Node is the running daemon: one identity, one session engine, one UDP
// transport.
type Node struct {
	cfg       *config.NodeConfig
	identity  *crypto.KeyPair
	engine    *session.Engine
	transport *udp.Transport

	mu       sync.Mutex
	handler  PlaintextHandler
	started  bool
	stopping chan struct{}
	stopOnce sync.Once
}

// Compile-time check that Node can receive engine plaintext.
var _ session.PlaintextSink = (*Node)(nil)

// CreateNode loads (or generates) the identity and binds the UDP socket.
// Nothing is processed until Start.
func CreateNode(cfg *config.NodeConfig) (*Node, error) {
	if cfg == nil {
		cfg = config.DefaultNodeConfig()
	}
	identity, err := keys.NewIdentityKeystore(cfg.KeyDir).LoadOrGenerate()
	if err != nil {
		return nil, oops.Errorf("failed to load node identity: %w", err)
	}
	tr, err := udp.Listen(cfg.ListenAddress)
	if err != nil {
		identity.Zero()
		return nil, err
	}
	n := &Node{
		cfg:       cfg,
		identity:  identity,
		transport: tr,
		stopping:  make(chan struct{}),
	}
	n.engine = session.NewEngine(identity, cfg.EngineConfig(), tr, n)
	log.WithFields(logger.Fields{
		"at":       "CreateNode",
		"identity": identity.Public.String(),
		"listen":   tr.LocalAddr(),
	}).Debug("node created")
	return n, nil
}

// Start begins processing packets and connects the statically configured
// peers.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = true
	n.mu.Unlock()

	n.transport.Start(n.engine)
	n.ConnectConfiguredPeers()
	log.WithField("listen", n.transport.LocalAddr()).Info("node started")
	return nil
}

// ConnectConfiguredPeers introduces every peer from the config to the
// engine. Also invoked on SIGHUP reload.
func (n *Node) ConnectConfiguredPeers() {
	for _, peer := range n.cfg.Peers {
		key, err := peer.ParsePublicKey()
		if err != nil {
			log.WithError(err).WithField("peer", peer.Address).Warn("skipping misconfigured peer")
			continue
		}
		var password []byte
		if peer.Password != "" {
			password = []byte(peer.Password)
		}
		if err := n.engine.BeginSession(peer.Address, key, password); err != nil {
			log.WithError(err).WithField("peer", peer.Address).Warn("failed to begin session")
		}
	}
}

// OnPlaintext registers the upward delivery callback.
func (n *Node) OnPlaintext(h PlaintextHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = h
}

// HandlePlaintext implements session.PlaintextSink.
func (n *Node) HandlePlaintext(peer crypto.PublicKey, payload []byte) {
	n.mu.Lock()
	h := n.handler
	n.mu.Unlock()
	if h != nil {
		h(peer, payload)
		return
	}
	log.WithFields(logger.Fields{
		"at":    "(Node) HandlePlaintext",
		"peer":  peer.String(),
		"bytes": len(payload),
	}).Debug("plaintext received with no handler registered")
}

// Engine exposes the session engine for the layers above.
func (n *Node) Engine() *session.Engine {
	return n.engine
}

// Identity returns the node's permanent public key.
func (n *Node) Identity() crypto.PublicKey {
	return n.identity.Public
}

// Stop initiates shutdown.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopping)
	})
}

// Wait blocks until Stop is called.
func (n *Node) Wait() {
	<-n.stopping
}

// Close tears everything down: transport first so no new packets arrive,
// then the engine, wiping all session and identity key material.
func (n *Node) Close() error {
	n.Stop()
	err := n.transport.Close()
	if cerr := n.engine.Close(); cerr != nil && err == nil {
		err = cerr
	}
	log.WithField("at", "(Node) Close").Info("node shut down")
	return err
}
