package udp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblanton/cjdns/lib/transport"
)

type received struct {
	raw  []byte
	from string
}

// chanSink funnels delivered datagrams to the test goroutine. The read loop
// reuses its buffer, so the sink copies.
type chanSink struct {
	ch chan received
}

var _ transport.PacketSink = (*chanSink)(nil)

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan received, 16)}
}

func (s *chanSink) HandlePacket(raw []byte, from string) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	s.ch <- received{raw: buf, from: from}
}

func (s *chanSink) next(t *testing.T) received {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for datagram")
		return received{}
	}
}

func newLoopbackTransport(t *testing.T) (*Transport, *chanSink) {
	t.Helper()
	tr, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	sink := newChanSink()
	tr.Start(sink)
	return tr, sink
}

func TestTransport_SendReceive(t *testing.T) {
	a, _ := newLoopbackTransport(t)
	b, sinkB := newLoopbackTransport(t)

	payload := []byte{0x01, 0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, a.SendRaw(payload, b.LocalAddr()))

	got := sinkB.next(t)
	assert.Equal(t, payload, got.raw)
	assert.Equal(t, a.LocalAddr(), got.from)
}

func TestTransport_RoundTrip(t *testing.T) {
	a, sinkA := newLoopbackTransport(t)
	b, sinkB := newLoopbackTransport(t)

	require.NoError(t, a.SendRaw([]byte("ping"), b.LocalAddr()))
	got := sinkB.next(t)
	assert.Equal(t, []byte("ping"), got.raw)

	// answer to the observed source address, as the engine does
	require.NoError(t, b.SendRaw([]byte("pong"), got.from))
	back := sinkA.next(t)
	assert.Equal(t, []byte("pong"), back.raw)
	assert.Equal(t, b.LocalAddr(), back.from)
}

func TestTransport_SendInvalidAddress(t *testing.T) {
	a, _ := newLoopbackTransport(t)
	err := a.SendRaw([]byte("x"), "not-an-address")
	assert.ErrorIs(t, err, transport.ErrInvalidAddress)
}

func TestTransport_Close(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	a.Start(newChanSink())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")

	err = a.SendRaw([]byte("x"), "127.0.0.1:13131")
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
}

func TestTransport_StartTwice(t *testing.T) {
	a, sinkA := newLoopbackTransport(t)
	b, _ := newLoopbackTransport(t)

	// a second Start must not spawn a second read loop
	a.Start(newChanSink())
	require.NoError(t, b.SendRaw([]byte("once"), a.LocalAddr()))
	got := sinkA.next(t)
	assert.Equal(t, []byte("once"), got.raw)
}

func TestListen_InvalidAddress(t *testing.T) {
	_, err := Listen("999.999.999.999:0")
	assert.Error(t, err)
}
