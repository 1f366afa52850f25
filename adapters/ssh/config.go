// Package ssh dials the collaboration server over SSH and exposes the two
// protocol channels as an rpc transport. Calls travel on the "collab-rpc"
// channel, server pushes on "collab-events".
package ssh

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"strconv"
	"time"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 2222

	// DefaultKeepAlive is the interval between keepalive requests on an
	// idle connection.
	DefaultKeepAlive = 30 * time.Second
)

// Config describes how to reach and authenticate against the server.
type Config struct {
	Host string // default "localhost"
	Port int    // default 2222
	User string // default $USER

	// Auth methods tried in order. If empty, the SSH agent at
	// SSH_AUTH_SOCK is used.
	Auth []gossh.AuthMethod

	// HostKeyCallback verifies the server key. If nil, the known_hosts
	// handling is up to the caller; an insecure accept-all is NOT applied.
	HostKeyCallback gossh.HostKeyCallback

	// KeepAlive interval; zero means DefaultKeepAlive, negative disables.
	KeepAlive time.Duration

	Log *slog.Logger
}

func (c Config) addr() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c Config) username() string {
	if c.User != "" {
		return c.User
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "collab"
}

func (c Config) keepAlive() time.Duration {
	switch {
	case c.KeepAlive < 0:
		return 0
	case c.KeepAlive == 0:
		return DefaultKeepAlive
	default:
		return c.KeepAlive
	}
}

func (c Config) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.New(slog.DiscardHandler)
}

// AuthFromAgent authenticates with the keys held by the SSH agent at
// SSH_AUTH_SOCK.
func AuthFromAgent() (gossh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("ssh: SSH_AUTH_SOCK not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("ssh: dial agent: %w", err)
	}
	return gossh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// AuthFromKeyFile authenticates with a private key read from path.
// passphrase may be empty for unencrypted keys.
func AuthFromKeyFile(path, passphrase string) (gossh.AuthMethod, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ssh: read key: %w", err)
	}
	return AuthFromKey(pem, passphrase)
}

// AuthFromKey authenticates with a PEM-encoded private key.
func AuthFromKey(pem []byte, passphrase string) (gossh.AuthMethod, error) {
	var signer gossh.Signer
	var err error
	if passphrase != "" {
		signer, err = gossh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = gossh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("ssh: parse key: %w", err)
	}
	return gossh.PublicKeys(signer), nil
}
