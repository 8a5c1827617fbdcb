package session

import (
	"crypto/subtle"
	"encoding/binary"

	"github.com/eblanton/cjdns/lib/crypto"
)

// Packet type discriminators. One byte precedes every packet on the wire.
const (
	PacketTypeHello byte = 0x01
	PacketTypeKey   byte = 0x02
	PacketTypeData  byte = 0x03
)

// Wire sizes. All multi-byte integers are big-endian.
//
//	Hello / Key: type(1) | permKey(32) | ephKey(32) | authenticator(16) | mac(16)
//	Data:        type(1) | counter(8)  | ciphertext(n) | tag(16)
const (
	handshakeHeaderSize = 1 + 2*crypto.PublicKeySize + crypto.AuthenticatorSize
	// HandshakePacketSize is the exact length of a Hello or Key packet.
	HandshakePacketSize = handshakeHeaderSize + macSize
	macSize             = crypto.AuthenticatorSize
	dataHeaderSize      = 1 + 8
	// DataPacketOverhead is the framing cost of a Data packet on top of
	// its payload.
	DataPacketOverhead = dataHeaderSize + crypto.TagSize
)

// Field offsets within a handshake packet.
const (
	offPermanent     = 1
	offEphemeral     = offPermanent + crypto.PublicKeySize
	offAuthenticator = offEphemeral + crypto.PublicKeySize
	offMAC           = offAuthenticator + crypto.AuthenticatorSize
)

// HandshakePacket is a decoded Hello or Key packet. Packets are decoded once
// at the boundary into this struct; the raw buffer is never reinterpreted
// afterwards. macInput preserves the exact bytes the MAC covers.
type HandshakePacket struct {
	Type            byte
	SenderPermanent crypto.PublicKey
	SenderEphemeral crypto.PublicKey
	Authenticator   [crypto.AuthenticatorSize]byte
	MAC             [macSize]byte

	macInput [handshakeHeaderSize]byte
}

// buildHandshakePacket serializes a Hello or Key packet and stamps it with
// a MAC: a keyed BLAKE2s over the 81 header bytes under macKey.
func buildHandshakePacket(typ byte, permanent, ephemeral *crypto.PublicKey, auth [crypto.AuthenticatorSize]byte, macKey *[crypto.SymmetricKeySize]byte) []byte {
	buf := make([]byte, handshakeHeaderSize, HandshakePacketSize)
	buf[0] = typ
	copy(buf[offPermanent:], permanent[:])
	copy(buf[offEphemeral:], ephemeral[:])
	copy(buf[offAuthenticator:], auth[:])
	mac := crypto.Authenticator(contextPacketMAC, macKey[:], buf)
	return append(buf, mac[:]...)
}

// parseHandshakePacket decodes a Hello or Key packet, checking only framing.
// MAC and authenticator verification happen later, once the receiving
// session has derived the verification keys.
func parseHandshakePacket(raw []byte) (*HandshakePacket, error) {
	if len(raw) != HandshakePacketSize {
		return nil, ErrMalformedPacket
	}
	if raw[0] != PacketTypeHello && raw[0] != PacketTypeKey {
		return nil, ErrMalformedPacket
	}
	p := &HandshakePacket{Type: raw[0]}
	copy(p.SenderPermanent[:], raw[offPermanent:offEphemeral])
	copy(p.SenderEphemeral[:], raw[offEphemeral:offAuthenticator])
	copy(p.Authenticator[:], raw[offAuthenticator:offMAC])
	copy(p.MAC[:], raw[offMAC:])
	copy(p.macInput[:], raw[:handshakeHeaderSize])
	return p, nil
}

// verifyMAC checks the packet MAC under macKey in constant time.
func (p *HandshakePacket) verifyMAC(macKey *[crypto.SymmetricKeySize]byte) bool {
	expected := crypto.Authenticator(contextPacketMAC, macKey[:], p.macInput[:])
	return subtle.ConstantTimeCompare(expected[:], p.MAC[:]) == 1
}

// DataPacket is a decoded Data packet. Box is a view into the received
// buffer covering ciphertext||tag; header holds the 9 authenticated framing
// bytes. Fields stay valid only for the synchronous handling of the packet.
type DataPacket struct {
	Counter uint64
	Box     []byte

	header [dataHeaderSize]byte
}

// buildDataPacket seals payload under key with the given counter and frames
// it as a Data packet. The framing header is bound into the tag as
// associated data.
func buildDataPacket(key *[crypto.SymmetricKeySize]byte, counter uint64, payload []byte) ([]byte, error) {
	buf := make([]byte, dataHeaderSize, dataHeaderSize+len(payload)+crypto.TagSize)
	buf[0] = PacketTypeData
	binary.BigEndian.PutUint64(buf[1:], counter)
	box, err := crypto.Seal(key, counter, payload, buf)
	if err != nil {
		return nil, err
	}
	return append(buf, box...), nil
}

// parseDataPacket decodes Data packet framing. Authentication happens when
// the owning session opens the box.
func parseDataPacket(raw []byte) (*DataPacket, error) {
	if len(raw) < DataPacketOverhead || raw[0] != PacketTypeData {
		return nil, ErrMalformedPacket
	}
	p := &DataPacket{
		Counter: binary.BigEndian.Uint64(raw[1:dataHeaderSize]),
		Box:     raw[dataHeaderSize:],
	}
	copy(p.header[:], raw[:dataHeaderSize])
	return p, nil
}

// open verifies and decrypts the packet's box under key.
func (p *DataPacket) open(key *[crypto.SymmetricKeySize]byte) ([]byte, error) {
	return crypto.Open(key, p.Counter, p.Box, p.header[:])
}
