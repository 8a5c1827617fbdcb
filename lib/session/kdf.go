package session

import (
	"github.com/eblanton/cjdns/lib/crypto"
)

// Domain-separation contexts for every derived key. Distinct contexts keep
// handshake MACs, password authenticators, and session keys in unrelated key
// spaces even though they share input material.
const (
	contextSessionSecret = "cjdns-session-secret"
	contextKeyToServer   = "cjdns-initiator-to-responder"
	contextKeyToClient   = "cjdns-responder-to-initiator"
	contextHandshakeMAC  = "cjdns-handshake-mac"
	contextPacketMAC     = "cjdns-packet-mac"
	contextPasswordAuth  = "cjdns-password-auth"
)

// sessionKeys holds one symmetric key per direction, already oriented for
// the local side.
type sessionKeys struct {
	send [crypto.SymmetricKeySize]byte
	recv [crypto.SymmetricKeySize]byte
}

func (k *sessionKeys) wipe() {
	crypto.ZeroKey(&k.send)
	crypto.ZeroKey(&k.recv)
}

// deriveSessionKeys produces the per-direction session keys from three
// X25519 agreements plus the optional password:
//
//	ephemeral × ephemeral
//	initiator-ephemeral × responder-permanent
//	initiator-permanent × responder-ephemeral
//
// Binding both permanent keys defeats key-compromise impersonation — an
// attacker holding one party's ephemeral or permanent key alone cannot
// compute the secret. Direction tags split the secret into two keys so a
// packet sealed by one side can never be reflected back to it.
//
// The initiator flag fixes both the DH pairing (which local private key
// meets which remote public key) and the send/recv orientation, so the two
// sides derive mirror-image results.
func deriveSessionKeys(initiator bool, localPermanent, localEphemeral *crypto.KeyPair, remotePermanent, remoteEphemeral *crypto.PublicKey, password []byte) (*sessionKeys, error) {
	ee, err := crypto.SharedSecret(&localEphemeral.Private, remoteEphemeral)
	if err != nil {
		return nil, err
	}
	var ephPerm, permEph [crypto.SharedSecretSize]byte
	if initiator {
		ephPerm, err = crypto.SharedSecret(&localEphemeral.Private, remotePermanent)
		if err != nil {
			return nil, err
		}
		permEph, err = crypto.SharedSecret(&localPermanent.Private, remoteEphemeral)
		if err != nil {
			return nil, err
		}
	} else {
		ephPerm, err = crypto.SharedSecret(&localPermanent.Private, remoteEphemeral)
		if err != nil {
			return nil, err
		}
		permEph, err = crypto.SharedSecret(&localEphemeral.Private, remotePermanent)
		if err != nil {
			return nil, err
		}
	}

	secret := crypto.DeriveKey(contextSessionSecret, ee[:], ephPerm[:], permEph[:], password)
	toResponder := crypto.DeriveKey(contextKeyToServer, secret[:])
	toInitiator := crypto.DeriveKey(contextKeyToClient, secret[:])

	keys := new(sessionKeys)
	if initiator {
		keys.send = toResponder
		keys.recv = toInitiator
	} else {
		keys.send = toInitiator
		keys.recv = toResponder
	}

	crypto.ZeroKey(&secret)
	crypto.ZeroKey(&toResponder)
	crypto.ZeroKey(&toInitiator)
	zeroShared(&ee)
	zeroShared(&ephPerm)
	zeroShared(&permEph)
	return keys, nil
}

// handshakeMACKey derives the key that authenticates Hello and Key packets.
// Both endpoints can compute it before any DH completes: it depends only on
// the optional password and the two permanent keys, ordered sender first.
func handshakeMACKey(password []byte, sender, receiver *crypto.PublicKey) [crypto.SymmetricKeySize]byte {
	return crypto.DeriveKey(contextHandshakeMAC, password, sender[:], receiver[:])
}

// passwordAuthenticator derives the truncated proof-of-password carried in
// handshake packets. All-zero when no password is configured.
func passwordAuthenticator(password []byte, sender *crypto.PublicKey) [crypto.AuthenticatorSize]byte {
	if len(password) == 0 {
		return [crypto.AuthenticatorSize]byte{}
	}
	return crypto.Authenticator(contextPasswordAuth, password, sender[:])
}

func zeroShared(s *[crypto.SharedSecretSize]byte) {
	for i := range s {
		s[i] = 0
	}
}
