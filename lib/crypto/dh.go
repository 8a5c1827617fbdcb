package crypto

import (
	"github.com/samber/oops"
	"golang.org/x/crypto/curve25519"
)

// SharedSecretSize is the size of a raw X25519 shared point.
const SharedSecretSize = 32

// ErrLowOrderPoint is returned when a DH partner supplied a low-order public
// key, which would yield an all-zero shared point.
var ErrLowOrderPoint = oops.Errorf("Curve25519 public key is a low-order point")

// SharedSecret performs X25519 key agreement between a local private key and
// a remote public key. The computation is constant-time; low-order remote
// points are rejected rather than silently producing a predictable secret.
func SharedSecret(local *PrivateKey, remote *PublicKey) ([SharedSecretSize]byte, error) {
	var out [SharedSecretSize]byte
	shared, err := curve25519.X25519(local[:], remote[:])
	if err != nil {
		// x/crypto already refuses the all-zero output here
		return out, oops.Errorf("X25519 key agreement failed: %w", err)
	}
	copy(out[:], shared)
	return out, nil
}

func publicFromPrivate(priv *PrivateKey) (*PublicKey, error) {
	raw, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, oops.Errorf("failed to derive Curve25519 public key: %w", err)
	}
	pub := new(PublicKey)
	copy(pub[:], raw)
	return pub, nil
}
