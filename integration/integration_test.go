package integration

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/collab-go/core/rpc"
	"github.com/codewandler/collab-go/core/rpc/rpctest"
	"github.com/codewandler/collab-go/core/session"
)

// Full client lifecycle against a stub server: lazy connect, a typed
// round-trip, connection loss surfaced through the status stream, and a
// transparent reconnect on the next command.
func TestSession_lifecycle(t *testing.T) {
	peer := rpctest.NewPeer()
	defer peer.Close()
	peer.SetIdentity(rpc.Identity{Nick: "ada", User: "ada", Host: "dev1"})

	h, err := session.Start(session.Options{
		Dialer:        peer.Dialer(),
		Context:       t.Context(),
		RetryInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer h.Stop()

	states := h.SubscribeState()
	defer states.Close()
	events := h.SubscribeEvents()
	defer events.Close()

	// nothing connects until the first command
	require.Equal(t, session.PhaseDisconnected, h.State().Phase)
	require.Equal(t, 0, peer.Dials())

	id, err := h.Whoami(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ada", id.Nick)
	require.Equal(t, 1, peer.Dials())

	// a full workspace round-trip over the same connection
	ws, err := h.CreateWorkspace(t.Context(), "kata")
	require.NoError(t, err)
	seat, err := h.JoinWorkspace(t.Context(), ws.ID, "laptop")
	require.NoError(t, err)
	require.Equal(t, "laptop", seat.Info().Instance)

	seq, err := h.ApplyOps(t.Context(), "doc-1", []byte(`[{"retain":3}]`))
	require.NoError(t, err)
	require.NotZero(t, seq)
	require.Equal(t, 1, peer.Dials())

	// server push arrives as a typed event
	require.NoError(t, peer.PushEvent(rpc.EventCellStatusChanged, session.CellStatusChanged{
		Document: "doc-1", Cell: "cell-2", Status: "running",
	}))
	ev, err := events.Recv(t.Context())
	require.NoError(t, err)
	require.Equal(t, session.CellStatusChanged{
		Document: "doc-1", Cell: "cell-2", Status: "running",
	}, ev)

	// sever the link; the next command reconnects transparently
	peer.Sever()
	require.Eventually(t, func() bool {
		return h.State().Phase == session.PhaseDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	id, err = h.Whoami(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ada", id.Nick)
	require.Equal(t, 2, peer.Dials())

	var phases []session.ConnPhase
	for len(phases) < 5 {
		st, err := states.Recv(t.Context())
		require.NoError(t, err)
		phases = append(phases, st.Phase)
	}
	require.Equal(t, []session.ConnPhase{
		session.PhaseConnecting,
		session.PhaseConnected,
		session.PhaseDisconnected,
		session.PhaseConnecting,
		session.PhaseConnected,
	}, phases)
}

// Many writers against one document: the sequence numbers handed back are
// unique, and writes keep flowing across an induced reconnect.
func TestSession_concurrent_writers_with_reconnect(t *testing.T) {
	peer := rpctest.NewPeer()
	defer peer.Close()

	// slow the writes down so the sever lands mid-run
	var srvSeq atomic.Uint64
	peer.Handle(rpc.MethodOpsApply, func(string, json.RawMessage) (any, string, error) {
		time.Sleep(5 * time.Millisecond)
		return rpc.SeqResult{Seq: srvSeq.Add(1)}, "", nil
	})

	h, err := session.Start(session.Options{
		Dialer:        peer.Dialer(),
		Context:       t.Context(),
		RetryInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer h.Stop()

	const writers = 8
	const perWriter = 10

	var mu sync.Mutex
	seen := make(map[uint64]bool)

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ops, _ := json.Marshal([]map[string]any{{"insert": "x", "writer": w}})
				seq, err := h.ApplyOps(t.Context(), "doc-1", ops)
				if err != nil {
					// a write can land on a dying connection; retry once
					seq, err = h.ApplyOps(t.Context(), "doc-1", ops)
				}
				if err != nil {
					continue
				}
				mu.Lock()
				require.False(t, seen[seq], "duplicate seq %d", seq)
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}

	// induce a mid-run reconnect
	time.Sleep(20 * time.Millisecond)
	peer.Sever()

	wg.Wait()
	require.NotEmpty(t, seen)
	require.GreaterOrEqual(t, peer.Dials(), 2)
}
