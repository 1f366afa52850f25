package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"

	"github.com/codewandler/collab-go/core/rpc"
)

// responseFrame mirrors the reply encoding in core/rpc.
type responseFrame struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
	Cap  string          `json:"cap,omitempty"`
	Err  string          `json:"err,omitempty"`
}

type testServer struct {
	addr    string
	hostKey gossh.PublicKey

	mu     sync.Mutex
	events []gossh.Channel
}

// pushEvent sends one envelope on every open events channel.
func (s *testServer) pushEvent(t *testing.T, method string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.events {
		require.NoError(t, rpc.WriteFrame(ch, rpc.Envelope{Method: method, Data: data}))
	}
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &gossh.ServerConfig{
		PasswordCallback: func(meta gossh.ConnMetadata, pass []byte) (*gossh.Permissions, error) {
			return nil, nil
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := &testServer{addr: ln.Addr().String(), hostKey: signer.PublicKey()}

	go func() {
		for {
			tcp, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serveConn(tcp, cfg)
		}
	}()
	return srv
}

func (s *testServer) serveConn(tcp net.Conn, cfg *gossh.ServerConfig) {
	_, chans, reqs, err := gossh.NewServerConn(tcp, cfg)
	if err != nil {
		return
	}
	go gossh.DiscardRequests(reqs)

	for newCh := range chans {
		switch newCh.ChannelType() {
		case channelRPC:
			ch, chReqs, err := newCh.Accept()
			if err != nil {
				return
			}
			go gossh.DiscardRequests(chReqs)
			go s.serveRPC(ch)
		case channelEvents:
			ch, chReqs, err := newCh.Accept()
			if err != nil {
				return
			}
			go gossh.DiscardRequests(chReqs)
			s.mu.Lock()
			s.events = append(s.events, ch)
			s.mu.Unlock()
		default:
			_ = newCh.Reject(gossh.UnknownChannelType, "unknown channel")
		}
	}
}

func (s *testServer) serveRPC(ch gossh.Channel) {
	var writeMu sync.Mutex
	for {
		var env rpc.Envelope
		if err := rpc.ReadFrame(ch, &env); err != nil {
			return
		}
		rf := responseFrame{ID: env.ID}
		switch env.Method {
		case rpc.MethodHello:
			rf.Data, _ = json.Marshal(rpc.HelloInfo{Protocol: rpc.ProtocolVersion, Session: "sess-ssh"})
		case rpc.MethodWhoami:
			rf.Data, _ = json.Marshal(rpc.Identity{Nick: "ada", User: "ada", Host: "dev1"})
		default:
			rf.Err = "unknown method " + env.Method
		}
		writeMu.Lock()
		_ = rpc.WriteFrame(ch, rf)
		writeMu.Unlock()
	}
}

func testDialer(t *testing.T, srv *testServer) *Dialer {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.addr)
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	d, err := NewDialer(Config{
		Host:            host,
		Port:            portNum,
		User:            "ada",
		Auth:            []gossh.AuthMethod{gossh.Password("secret")},
		HostKeyCallback: gossh.FixedHostKey(srv.hostKey),
		KeepAlive:       -1,
	})
	require.NoError(t, err)
	return d
}

func TestDialer_end_to_end(t *testing.T) {
	srv := startTestServer(t)
	d := testDialer(t, srv)

	tr, err := d.Dial(t.Context())
	require.NoError(t, err)
	defer tr.Close()

	conn, err := rpc.NewConn(t.Context(), tr)
	require.NoError(t, err)
	require.Equal(t, "sess-ssh", conn.SessionID())

	id, err := conn.Whoami(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ada", id.Nick)

	srv.pushEvent(t, rpc.EventResourceUpdated, map[string]string{"server": "files", "uri": "file:///main.go"})
	select {
	case env := <-conn.Events():
		require.Equal(t, rpc.EventResourceUpdated, env.Method)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestDialer_close_tears_down_client(t *testing.T) {
	srv := startTestServer(t)
	d := testDialer(t, srv)

	tr, err := d.Dial(t.Context())
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
}
