package crypto

import (
	"encoding/binary"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD sizes.
const (
	SymmetricKeySize = chacha20poly1305.KeySize
	TagSize          = chacha20poly1305.Overhead
	nonceSize        = chacha20poly1305.NonceSize
)

var (
	ErrAuthFailed    = oops.Errorf("ChaCha20-Poly1305 authentication failed")
	ErrInvalidCipher = oops.Errorf("failed to construct ChaCha20-Poly1305 cipher")
)

// counterNonce builds the 96-bit cipher nonce from a 64-bit packet counter:
// four zero bytes followed by the counter big-endian. Counters never repeat
// for a given key, so neither do nonces.
func counterNonce(counter uint64) [nonceSize]byte {
	var nonce [nonceSize]byte
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// Seal encrypts and authenticates plaintext under key with the given packet
// counter, binding ad into the authentication tag. The result is
// ciphertext||tag, TagSize bytes longer than the plaintext.
func Seal(key *[SymmetricKeySize]byte, counter uint64, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ErrInvalidCipher
	}
	nonce := counterNonce(counter)
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

// Open verifies and decrypts a ciphertext||tag box produced by Seal. Tag
// verification is constant-time, and no plaintext is returned on failure.
func Open(key *[SymmetricKeySize]byte, counter uint64, box, ad []byte) ([]byte, error) {
	if len(box) < TagSize {
		return nil, ErrAuthFailed
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ErrInvalidCipher
	}
	nonce := counterNonce(counter)
	plaintext, err := aead.Open(nil, nonce[:], box, ad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// ZeroKey wipes a symmetric key in place.
func ZeroKey(key *[SymmetricKeySize]byte) {
	for i := range key {
		key[i] = 0
	}
}
