// Package keys persists the node's long-term identity key pair.
package keys

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/eblanton/cjdns/lib/crypto"
)

var log = logger.GetGoI2PLogger()

// IdentityFileName is the private key file inside the keystore directory.
const IdentityFileName = "identity.key"

var ErrCorruptKeyFile = oops.Errorf("identity key file has wrong size")

// IdentityKeystore loads and stores the node's permanent Curve25519 key
// pair. The private key lives in a single 32-byte file readable only by the
// owning user.
type IdentityKeystore struct {
	dir string
}

// NewIdentityKeystore creates a keystore rooted at dir. The directory is
// created on first store.
func NewIdentityKeystore(dir string) *IdentityKeystore {
	return &IdentityKeystore{dir: dir}
}

// Path returns the identity key file path.
func (ks *IdentityKeystore) Path() string {
	return filepath.Join(ks.dir, IdentityFileName)
}

// Load reads the identity key pair from disk.
func (ks *IdentityKeystore) Load() (*crypto.KeyPair, error) {
	raw, err := os.ReadFile(ks.Path())
	if err != nil {
		return nil, oops.Errorf("failed to read identity key: %w", err)
	}
	if len(raw) != crypto.PrivateKeySize {
		return nil, ErrCorruptKeyFile
	}
	kp, err := crypto.NewKeyPairFromPrivate(raw)
	for i := range raw {
		raw[i] = 0
	}
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{
		"at":       "(IdentityKeystore) Load",
		"identity": kp.Public.String(),
	}).Debug("loaded identity key pair")
	return kp, nil
}

// Store writes the identity private key with owner-only permissions.
func (ks *IdentityKeystore) Store(kp *crypto.KeyPair) error {
	if _, err := os.Stat(ks.dir); os.IsNotExist(err) {
		// 0700: private key material must not be readable by other users
		if err := os.MkdirAll(ks.dir, 0o700); err != nil {
			return oops.Errorf("failed to create keystore directory: %w", err)
		}
	}
	if err := os.WriteFile(ks.Path(), kp.Private[:], 0o600); err != nil {
		return oops.Errorf("failed to write identity key: %w", err)
	}
	log.WithField("path", ks.Path()).Info("stored identity key pair")
	return nil
}

// LoadOrGenerate returns the stored identity, generating and persisting a
// fresh one on first run.
func (ks *IdentityKeystore) LoadOrGenerate() (*crypto.KeyPair, error) {
	if _, err := os.Stat(ks.Path()); err == nil {
		return ks.Load()
	} else if !os.IsNotExist(err) {
		return nil, oops.Errorf("failed to stat identity key: %w", err)
	}
	log.WithField("path", ks.Path()).Debug("no identity key found, generating")
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := ks.Store(kp); err != nil {
		kp.Zero()
		return nil, err
	}
	return kp, nil
}
