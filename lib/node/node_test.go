package node

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblanton/cjdns/lib/config"
	"github.com/eblanton/cjdns/lib/crypto"
	"github.com/eblanton/cjdns/lib/session"
)

func newTestNode(t *testing.T, cfg *config.NodeConfig) *Node {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultNodeConfig()
	}
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.KeyDir = t.TempDir()
	n, err := CreateNode(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

type plaintext struct {
	peer    crypto.PublicKey
	payload string
}

func collectPlaintext(n *Node) chan plaintext {
	ch := make(chan plaintext, 16)
	n.OnPlaintext(func(peer crypto.PublicKey, payload []byte) {
		ch <- plaintext{peer: peer, payload: string(payload)}
	})
	return ch
}

func waitPlaintext(t *testing.T, ch chan plaintext) plaintext {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for plaintext delivery")
		return plaintext{}
	}
}

func TestNode_IdentityPersistsAcrossRestart(t *testing.T) {
	cfg := config.DefaultNodeConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.KeyDir = t.TempDir()

	n1, err := CreateNode(cfg)
	require.NoError(t, err)
	id := n1.Identity()
	require.NoError(t, n1.Close())

	n2, err := CreateNode(cfg)
	require.NoError(t, err)
	defer n2.Close()
	id2 := n2.Identity()
	assert.True(t, id.Equal(&id2), "restart must reuse the stored identity")
}

func TestNode_EndToEndExchange(t *testing.T) {
	b := newTestNode(t, nil)
	require.NoError(t, b.Start())
	bPlaintext := collectPlaintext(b)
	bAddr := b.transport.LocalAddr()
	bKey := b.Identity()

	cfgA := config.DefaultNodeConfig()
	cfgA.Peers = []config.PeerConfig{{
		Address:   bAddr,
		PublicKey: hex.EncodeToString(bKey.Bytes()),
	}}
	a := newTestNode(t, cfgA)
	aPlaintext := collectPlaintext(a)
	require.NoError(t, a.Start(), "start connects configured peers")

	st, err := a.Engine().TrySend(bAddr, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, session.Buffered, st, "first send buffers behind the handshake")

	got := waitPlaintext(t, bPlaintext)
	assert.Equal(t, "ping", got.payload)
	aKey := a.Identity()
	assert.True(t, got.peer.Equal(&aKey), "delivery must carry the sender's authenticated identity")

	// the responder answers over the now-established session
	aAddr := a.transport.LocalAddr()
	require.Eventually(t, func() bool {
		st, err := b.Engine().TrySend(aAddr, []byte("pong"))
		return err == nil && st == session.Sent
	}, 10*time.Second, 50*time.Millisecond)

	back := waitPlaintext(t, aPlaintext)
	assert.Equal(t, "pong", back.payload)
	assert.True(t, back.peer.Equal(&bKey))

	assert.Equal(t, uint64(1), a.Engine().Stats().HandshakesCompleted)
	assert.Equal(t, uint64(1), b.Engine().Stats().HandshakesCompleted)
}

func TestNode_ConnectConfiguredPeersSkipsBadKeys(t *testing.T) {
	cfg := config.DefaultNodeConfig()
	cfg.Peers = []config.PeerConfig{
		{Address: "192.0.2.1:13131", PublicKey: "not-hex"},
	}
	n := newTestNode(t, cfg)
	require.NoError(t, n.Start())
	assert.Equal(t, 0, n.Engine().SessionCount(), "a misconfigured peer is skipped, not fatal")
}

func TestNode_StopUnblocksWait(t *testing.T) {
	n := newTestNode(t, nil)
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	n.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}
