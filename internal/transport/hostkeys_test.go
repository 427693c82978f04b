package transport_test

import (
	"crypto/ed25519"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/shellgrid/shellgrid/internal/transport"
)

func generateKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func testAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 22}
}

func TestHostKeyStore(t *testing.T) {
	t.Run("strict rejects unknown hosts", func(t *testing.T) {
		store := transport.NewHostKeyStore(filepath.Join(t.TempDir(), "known_hosts"))
		cb, err := store.Callback(transport.PolicyStrict)
		require.NoError(t, err)
		assert.Error(t, cb("shell.example.com:22", testAddr(), generateKey(t)))
	})

	t.Run("accept-new persists first-seen keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "known_hosts")
		store := transport.NewHostKeyStore(path)
		key := generateKey(t)

		cb, err := store.Callback(transport.PolicyAcceptNew)
		require.NoError(t, err)
		require.NoError(t, cb("shell.example.com:22", testAddr(), key))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "shell.example.com")

		// A strict verifier built afterwards trusts the persisted key but
		// still rejects a conflicting one.
		strict, err := store.Callback(transport.PolicyStrict)
		require.NoError(t, err)
		assert.NoError(t, strict("shell.example.com:22", testAddr(), key))
		assert.Error(t, strict("shell.example.com:22", testAddr(), generateKey(t)))
	})

	t.Run("accept-new rejects a changed key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "known_hosts")
		store := transport.NewHostKeyStore(path)

		cb, err := store.Callback(transport.PolicyAcceptNew)
		require.NoError(t, err)
		require.NoError(t, cb("shell.example.com:22", testAddr(), generateKey(t)))

		// The verifier snapshot predates the persist, so rebuild it the way
		// a new dial would.
		cb, err = store.Callback(transport.PolicyAcceptNew)
		require.NoError(t, err)
		assert.Error(t, cb("shell.example.com:22", testAddr(), generateKey(t)))
	})

	t.Run("stale verifier snapshots do not duplicate entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "known_hosts")
		store := transport.NewHostKeyStore(path)
		key := generateKey(t)

		// Both callbacks snapshot the trust store before either persists,
		// as two sessions racing their first connection would.
		cb1, err := store.Callback(transport.PolicyAcceptNew)
		require.NoError(t, err)
		cb2, err := store.Callback(transport.PolicyAcceptNew)
		require.NoError(t, err)

		require.NoError(t, cb1("shell.example.com:22", testAddr(), key))
		require.NoError(t, cb2("shell.example.com:22", testAddr(), key))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(string(data), "shell.example.com"))
	})

	t.Run("trust-all accepts anything", func(t *testing.T) {
		store := transport.NewHostKeyStore(filepath.Join(t.TempDir(), "known_hosts"))
		cb, err := store.Callback(transport.PolicyTrustAll)
		require.NoError(t, err)
		assert.NoError(t, cb("anything:22", testAddr(), generateKey(t)))
	})

	t.Run("unknown policy is an error", func(t *testing.T) {
		store := transport.NewHostKeyStore(filepath.Join(t.TempDir(), "known_hosts"))
		_, err := store.Callback("SOMETIMES")
		assert.Error(t, err)
	})
}
