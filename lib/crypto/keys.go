package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"io"

	"github.com/samber/oops"
)

// Key sizes. Both halves of an X25519 key pair are 32 bytes on the wire.
const (
	PublicKeySize  = 32
	PrivateKeySize = 32
)

var (
	ErrInvalidPublicKey  = oops.Errorf("invalid Curve25519 public key")
	ErrInvalidPrivateKey = oops.Errorf("invalid Curve25519 private key")
)

// PublicKey is a 256-bit Curve25519 public key.
type PublicKey [PublicKeySize]byte

// PrivateKey is a 256-bit Curve25519 private key.
type PrivateKey [PrivateKeySize]byte

// KeyPair holds a Curve25519 key pair. Used both for long-term node
// identities and for per-handshake ephemeral keys.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateKeyPair generates a new random Curve25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	kp := new(KeyPair)
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return nil, oops.Errorf("failed to generate Curve25519 key pair: %w", err)
	}
	pub, err := publicFromPrivate(&kp.Private)
	if err != nil {
		return nil, err
	}
	kp.Public = *pub
	return kp, nil
}

// NewKeyPairFromPrivate reconstructs a key pair from raw private key bytes,
// deriving the matching public key.
func NewKeyPairFromPrivate(priv []byte) (*KeyPair, error) {
	if len(priv) != PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	kp := new(KeyPair)
	copy(kp.Private[:], priv)
	pub, err := publicFromPrivate(&kp.Private)
	if err != nil {
		return nil, err
	}
	kp.Public = *pub
	return kp, nil
}

// NewPublicKeyFromBytes copies raw bytes into a PublicKey.
func NewPublicKeyFromBytes(pub []byte) (*PublicKey, error) {
	if len(pub) != PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	k := new(PublicKey)
	copy(k[:], pub)
	return k, nil
}

// Bytes returns the key as a byte slice.
func (k *PublicKey) Bytes() []byte {
	return k[:]
}

// Equal reports whether two public keys are identical, in constant time.
func (k *PublicKey) Equal(other *PublicKey) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

// IsZero reports whether the key is all zeroes (unset).
func (k *PublicKey) IsZero() bool {
	var zero PublicKey
	return subtle.ConstantTimeCompare(k[:], zero[:]) == 1
}

// String returns a short hex prefix for safe use in log messages.
func (k *PublicKey) String() string {
	return hex.EncodeToString(k[:8]) + "..."
}

// Zero clears the private key material.
func (k *PrivateKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// Zero clears the private half of the key pair. The public half is not
// sensitive and is left intact for logging.
func (kp *KeyPair) Zero() {
	kp.Private.Zero()
}
