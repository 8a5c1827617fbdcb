package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eblanton/cjdns/lib/crypto"
	"github.com/eblanton/cjdns/lib/transport"
)

// datagram is one in-flight packet on the test network.
type datagram struct {
	raw  []byte
	from string
	to   string
}

// testNetwork is an in-memory packet network connecting engines in one test.
// Sends enqueue; nothing is delivered until the test pumps the queue. That
// keeps delivery outside any engine lock and lets tests drop, duplicate, or
// tamper with packets in flight.
type testNetwork struct {
	mu    sync.Mutex
	queue []datagram
	sinks map[string]transport.PacketSink
}

func newTestNetwork() *testNetwork {
	return &testNetwork{sinks: make(map[string]transport.PacketSink)}
}

func (n *testNetwork) attach(addr string, sink transport.PacketSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks[addr] = sink
}

// endpoint returns a transport bound to addr on this network.
func (n *testNetwork) endpoint(addr string) *testTransport {
	return &testTransport{net: n, addr: addr}
}

func (n *testNetwork) send(raw []byte, from, to string) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, datagram{raw: buf, from: from, to: to})
}

// pop removes and returns the oldest in-flight datagram.
func (n *testNetwork) pop() (datagram, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return datagram{}, false
	}
	d := n.queue[0]
	n.queue = n.queue[1:]
	return d, true
}

// deliver hands a datagram to its destination engine.
func (n *testNetwork) deliver(d datagram) {
	n.mu.Lock()
	sink := n.sinks[d.to]
	n.mu.Unlock()
	if sink != nil {
		sink.HandlePacket(d.raw, d.from)
	}
}

// pump delivers queued datagrams, including any enqueued by the deliveries
// themselves, until the network is quiet.
func (n *testNetwork) pump() {
	for {
		d, ok := n.pop()
		if !ok {
			return
		}
		n.deliver(d)
	}
}

func (n *testNetwork) pendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

type testTransport struct {
	net  *testNetwork
	addr string
}

var _ transport.RawTransport = (*testTransport)(nil)

func (t *testTransport) SendRaw(raw []byte, addr string) error {
	t.net.send(raw, t.addr, addr)
	return nil
}

func (t *testTransport) Close() error {
	return nil
}

// captureSink records delivered plaintexts with their authenticated peers.
type captureSink struct {
	mu       sync.Mutex
	peers    []crypto.PublicKey
	payloads []string
}

var _ PlaintextSink = (*captureSink)(nil)

func (c *captureSink) HandlePlaintext(peer crypto.PublicKey, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers = append(c.peers, peer)
	c.payloads = append(c.payloads, string(payload))
}

func (c *captureSink) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.payloads))
	copy(out, c.payloads)
	return out
}

func (c *captureSink) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers = nil
	c.payloads = nil
}

func (c *captureSink) lastPeer() crypto.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.peers) == 0 {
		return crypto.PublicKey{}
	}
	return c.peers[len(c.peers)-1]
}

// testConfig keeps the background sweep out of the way so tests control
// eviction explicitly.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	return cfg
}

// newTestNode starts an engine on the network at addr and registers its
// teardown.
func newTestNode(t *testing.T, net *testNetwork, addr string, cfg *Config) (*Engine, *captureSink) {
	t.Helper()
	identity, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	sink := &captureSink{}
	if cfg == nil {
		cfg = testConfig()
	}
	e := NewEngine(identity, cfg, net.endpoint(addr), sink)
	net.attach(addr, e)
	t.Cleanup(func() { _ = e.Close() })
	return e, sink
}
