// Package crypto wraps the cryptographic primitives used by the session
// engine behind a small, opaque surface.
//
// # Primitives
//
//   - X25519 elliptic-curve Diffie-Hellman for key agreement
//   - ChaCha20-Poly1305 AEAD for packet sealing and opening
//   - BLAKE2s for key derivation and short authenticators
//
// All primitives come from golang.org/x/crypto and are used as constant-time
// black boxes. Nothing outside this package touches raw curve points or
// cipher internals; callers see key pairs, shared secrets, and sealed boxes.
//
// # Key Hygiene
//
// Private key material implements Zero() and is wiped by its owner when a
// session is torn down. Open never returns partial plaintext on an
// authentication failure.
package crypto
