package transport

// RawTransport is the capability the session engine consumes to put raw
// datagrams on a link. Addresses are opaque endpoint strings owned by the
// transport (for UDP, "host:port").
//
// Implementations must be safe for concurrent use.
type RawTransport interface {
	// SendRaw transmits one datagram to the given endpoint. Best-effort:
	// a nil error does not imply delivery.
	SendRaw(b []byte, addr string) error
	// Close releases the underlying link. Sends after Close fail with
	// ErrTransportClosed.
	Close() error
}

// PacketSink is the capability a transport invokes for every datagram it
// receives. The session engine implements this; transports must not retain
// or mutate b after the call returns.
type PacketSink interface {
	HandlePacket(b []byte, from string)
}
