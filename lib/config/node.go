package config

import (
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/samber/oops"

	"github.com/eblanton/cjdns/lib/crypto"
	"github.com/eblanton/cjdns/lib/session"
)

// SessionConfig is the session-engine tuning block of the config file.
type SessionConfig struct {
	// ReplayWindow is the replay filter lookback in packets.
	ReplayWindow uint64 `mapstructure:"replay_window" yaml:"replay_window"`
	// InactivityTimeout evicts established sessions with no traffic.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" yaml:"inactivity_timeout"`
	// HandshakeTimeout evicts sessions stuck mid-handshake.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	// MaxBufferedPayloads bounds the pre-handshake send queue per peer.
	MaxBufferedPayloads int `mapstructure:"max_buffered_payloads" yaml:"max_buffered_payloads"`
	// SweepInterval is how often idle sessions are evicted.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// PeerConfig describes a statically configured peer.
type PeerConfig struct {
	// Address is the peer's transport endpoint ("host:port" for UDP).
	Address string `mapstructure:"address" yaml:"address"`
	// PublicKey is the peer's permanent Curve25519 key, hex-encoded.
	PublicKey string `mapstructure:"public_key" yaml:"public_key"`
	// Password is an optional shared secret for this peer.
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// ParsePublicKey decodes the peer's hex-encoded permanent key.
func (p *PeerConfig) ParsePublicKey() (*crypto.PublicKey, error) {
	raw, err := hex.DecodeString(p.PublicKey)
	if err != nil {
		return nil, oops.Errorf("peer %s: invalid public key hex: %w", p.Address, err)
	}
	key, err := crypto.NewPublicKeyFromBytes(raw)
	if err != nil {
		return nil, oops.Errorf("peer %s: %w", p.Address, err)
	}
	return key, nil
}

// NodeConfig is the full daemon configuration.
type NodeConfig struct {
	// ListenAddress is the UDP endpoint to bind.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	// KeyDir is where the identity key pair is persisted.
	KeyDir string `mapstructure:"key_dir" yaml:"key_dir"`
	// Password, when set, is required of unsolicited inbound peers.
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	// Session tunes the session engine.
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	// Peers are connected at startup.
	Peers []PeerConfig `mapstructure:"peers" yaml:"peers"`
}

// DefaultNodeConfig returns the daemon defaults.
func DefaultNodeConfig() *NodeConfig {
	engine := session.DefaultConfig()
	return &NodeConfig{
		ListenAddress: "0.0.0.0:13131",
		KeyDir:        filepath.Join(BuildConfigDirPath(), "keys"),
		Session: SessionConfig{
			ReplayWindow:        engine.ReplayWindow,
			InactivityTimeout:   engine.InactivityTimeout,
			HandshakeTimeout:    engine.HandshakeTimeout,
			MaxBufferedPayloads: engine.MaxBufferedPayloads,
			SweepInterval:       engine.SweepInterval,
		},
	}
}

// EngineConfig translates the config file's session block into the session
// engine's Config.
func (c *NodeConfig) EngineConfig() *session.Config {
	cfg := session.DefaultConfig()
	if c.Session.ReplayWindow != 0 {
		cfg.ReplayWindow = c.Session.ReplayWindow
	}
	if c.Session.InactivityTimeout != 0 {
		cfg.InactivityTimeout = c.Session.InactivityTimeout
	}
	if c.Session.HandshakeTimeout != 0 {
		cfg.HandshakeTimeout = c.Session.HandshakeTimeout
	}
	if c.Session.MaxBufferedPayloads != 0 {
		cfg.MaxBufferedPayloads = c.Session.MaxBufferedPayloads
	}
	if c.Session.SweepInterval != 0 {
		cfg.SweepInterval = c.Session.SweepInterval
	}
	if c.Password != "" {
		cfg.Password = []byte(c.Password)
	}
	return cfg
}

// defaultConfigDocument is the YAML document written on first run.
func defaultConfigDocument() *NodeConfig {
	cfg := DefaultNodeConfig()
	cfg.Peers = []PeerConfig{}
	return cfg
}
