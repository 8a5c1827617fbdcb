package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblanton/cjdns/lib/crypto"
)

func TestIdentityKeystore_GenerateAndReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	ks := NewIdentityKeystore(dir)

	generated, err := ks.LoadOrGenerate()
	require.NoError(t, err)
	assert.False(t, generated.Public.IsZero())

	// a second load must return the same identity, not a fresh one
	reloaded, err := ks.LoadOrGenerate()
	require.NoError(t, err)
	assert.True(t, generated.Public.Equal(&reloaded.Public))
}

func TestIdentityKeystore_FilePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	ks := NewIdentityKeystore(dir)

	_, err := ks.LoadOrGenerate()
	require.NoError(t, err)

	info, err := os.Stat(ks.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "private key must be owner-only")

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestIdentityKeystore_StoreLoadRoundTrip(t *testing.T) {
	ks := NewIdentityKeystore(t.TempDir())
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, ks.Store(kp))

	loaded, err := ks.Load()
	require.NoError(t, err)
	assert.Equal(t, kp.Private, loaded.Private)
	assert.True(t, kp.Public.Equal(&loaded.Public))
}

func TestIdentityKeystore_LoadMissing(t *testing.T) {
	ks := NewIdentityKeystore(t.TempDir())
	_, err := ks.Load()
	assert.Error(t, err)
}

func TestIdentityKeystore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	ks := NewIdentityKeystore(dir)
	require.NoError(t, os.WriteFile(ks.Path(), []byte("truncated"), 0o600))
	_, err := ks.Load()
	assert.ErrorIs(t, err, ErrCorruptKeyFile)
}
