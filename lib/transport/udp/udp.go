// Package udp implements the RawTransport boundary over a UDP socket. One
// datagram in, one engine callback out; peers are identified by their
// "host:port" source address.
package udp

import (
	"errors"
	"net"
	"sync"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/eblanton/cjdns/lib/transport"
)

var log = logger.GetGoI2PLogger()

// MaxDatagramSize is the largest UDP payload the read loop accepts.
const MaxDatagramSize = 65535

// Compile-time check that Transport satisfies the engine's boundary.
var _ transport.RawTransport = (*Transport)(nil)

// Transport is a UDP datagram transport. Create with Listen, attach the
// engine with Start, tear down with Close.
type Transport struct {
	conn *net.UDPConn

	mu        sync.Mutex
	started   bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen binds a UDP socket on addr ("host:port").
func Listen(addr string) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, oops.Errorf("invalid listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, oops.Errorf("failed to bind UDP socket: %w", err)
	}
	log.WithField("addr", conn.LocalAddr().String()).Debug("UDP transport listening")
	return &Transport{conn: conn}, nil
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// Start launches the read loop, delivering every received datagram to sink.
// Call once.
func (t *Transport) Start(sink transport.PacketSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.wg.Add(1)
	go t.readLoop(sink)
}

// SendRaw transmits one datagram to addr. Best-effort, like the medium.
func (t *Transport) SendRaw(b []byte, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return transport.ErrInvalidAddress
	}
	if _, err := t.conn.WriteToUDP(b, udpAddr); err != nil {
		if isClosedConn(err) {
			return transport.ErrTransportClosed
		}
		return oops.Errorf("UDP send to %s failed: %w", addr, err)
	}
	return nil
}

// Close shuts the socket and waits for the read loop to drain.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.conn.Close()
		t.wg.Wait()
		log.WithField("addr", t.conn.LocalAddr().String()).Debug("UDP transport closed")
	})
	return nil
}

func (t *Transport) readLoop(sink transport.PacketSink) {
	defer t.wg.Done()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if isClosedConn(err) {
				return
			}
			log.WithError(err).Warn("UDP read error")
			continue
		}
		// the sink processes synchronously and must not retain the
		// buffer, so one read buffer serves the whole loop
		sink.HandlePacket(buf[:n], from.String())
	}
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
