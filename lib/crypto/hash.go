package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2s"
)

// AuthenticatorSize is the truncated hash width used for password
// authenticators in handshake packets.
const AuthenticatorSize = 16

// DeriveKey hashes a domain-separation context string and any number of
// input slices into a 256-bit symmetric key. Each input is length-prefixed
// so that material boundaries cannot be shifted between inputs.
func DeriveKey(context string, material ...[]byte) [SymmetricKeySize]byte {
	h, _ := blake2s.New256(nil)
	h.Write([]byte(context))
	var lenbuf [2]byte
	for _, m := range material {
		binary.BigEndian.PutUint16(lenbuf[:], uint16(len(m)))
		h.Write(lenbuf[:])
		h.Write(m)
	}
	var key [SymmetricKeySize]byte
	h.Sum(key[:0])
	return key
}

// Authenticator derives the truncated password authenticator carried in
// handshake packets: the first AuthenticatorSize bytes of a domain-separated
// BLAKE2s over the password and the sender's permanent key.
func Authenticator(context string, material ...[]byte) [AuthenticatorSize]byte {
	full := DeriveKey(context, material...)
	var auth [AuthenticatorSize]byte
	copy(auth[:], full[:AuthenticatorSize])
	ZeroKey(&full)
	return auth
}
