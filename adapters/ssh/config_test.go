package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

func TestConfig_defaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "localhost:2222", cfg.addr())
	require.NotEmpty(t, cfg.username())
	require.Equal(t, DefaultKeepAlive, cfg.keepAlive())

	cfg = Config{Host: "collab.example.com", Port: 22, User: "ada", KeepAlive: -1}
	require.Equal(t, "collab.example.com:22", cfg.addr())
	require.Equal(t, "ada", cfg.username())
	require.Zero(t, cfg.keepAlive())
}

func TestAuthFromKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := gossh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	auth, err := AuthFromKey(pem.EncodeToMemory(block), "")
	require.NoError(t, err)
	require.NotNil(t, auth)
}

func TestAuthFromKey_garbage(t *testing.T) {
	_, err := AuthFromKey([]byte("not a key"), "")
	require.Error(t, err)
}

func TestNewDialer_requires_host_key_callback(t *testing.T) {
	_, err := NewDialer(Config{Auth: []gossh.AuthMethod{gossh.Password("x")}})
	require.Error(t, err)
}
