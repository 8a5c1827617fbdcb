// Package transport defines the boundary between the session engine and the
// physical packet transports that carry its datagrams.
//
// # Overview
//
// The session engine never touches sockets. It consumes a RawTransport to
// emit encrypted datagrams and implements a PacketSink that transports
// invoke for every datagram received. The two interfaces are deliberately
// narrow: no shared state, no connection semantics, no delivery guarantees.
// Datagrams may be lost, duplicated, or reordered; the session layer is
// built to tolerate all three.
//
// # Implementations
//
//   - lib/transport/udp: UDP datagram transport
//
// Additional link types (Ethernet framing, tunnels) plug in by implementing
// RawTransport and handing received datagrams to the engine's PacketSink.
package transport
