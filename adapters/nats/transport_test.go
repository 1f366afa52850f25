package nats

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/collab-go/core/rpc"
)

// serveStub answers the session protocol on <prefix>.rpc and pushes events
// to the caller's private events subject on demand.
func serveStub(t *testing.T, connect Connector, prefix string) (pushEvent func(method string, payload any)) {
	t.Helper()
	nc, closeNc, err := connect()
	require.NoError(t, err)
	t.Cleanup(closeNc)

	var mu sync.Mutex
	var evSubject string

	sub, err := nc.Subscribe(prefix+".rpc", func(msg *natsgo.Msg) {
		var env rpc.Envelope
		require.NoError(t, json.Unmarshal(msg.Data, &env))
		if s := msg.Header.Get(HeaderEventsSubject); s != "" {
			mu.Lock()
			evSubject = s
			mu.Unlock()
		}

		rf := responseFrame{ID: env.ID}
		switch env.Method {
		case rpc.MethodHello:
			rf.Data, _ = json.Marshal(rpc.HelloInfo{Protocol: rpc.ProtocolVersion, Session: "sess-1"})
		case rpc.MethodWhoami:
			rf.Data, _ = json.Marshal(rpc.Identity{Nick: "ada", User: "ada"})
		default:
			rf.Err = fmt.Sprintf("unknown method %q", env.Method)
		}
		b, _ := json.Marshal(rf)
		require.NoError(t, msg.Respond(b))
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	return func(method string, payload any) {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		env := rpc.Envelope{Method: method, Data: data}
		b, _ := json.Marshal(env)
		mu.Lock()
		subject := evSubject
		mu.Unlock()
		require.NotEmpty(t, subject)
		require.NoError(t, nc.Publish(subject, b))
	}
}

func TestNats_Transport(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))
	pushEvent := serveStub(t, connect, "test")

	tp, err := NewTransport(TransportConfig{
		Connect:       connect,
		SubjectPrefix: "test",
	})
	require.NoError(t, err)

	conn, err := rpc.NewConn(t.Context(), tp)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, "sess-1", conn.SessionID())

	id, err := conn.Whoami(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ada", id.Nick)

	// remote errors surface per call without killing the transport
	_, err = conn.CreateWorkspace(t.Context(), "x")
	require.True(t, rpc.IsRemote(err))

	pushEvent(rpc.EventResourceListChanged, map[string]string{"server": "files"})
	select {
	case env := <-conn.Events():
		require.Equal(t, rpc.EventResourceListChanged, env.Method)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestNats_Dialer(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))
	serveStub(t, connect, "dial")

	d := Dialer(TransportConfig{Connect: connect, SubjectPrefix: "dial"})

	tp, err := d.Dial(t.Context())
	require.NoError(t, err)
	require.NoError(t, tp.Close())

	select {
	case <-tp.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}
