package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/collab-go/core/rpc"
	"github.com/codewandler/collab-go/core/sf"
)

// supervisor owns the connection lifecycle: it dials on demand, watches the
// live connection for failure, and publishes every phase change on the
// status broadcaster. Connection attempts are serialized through a
// single-flight so concurrent commands arriving while disconnected share
// one dial.
type supervisor struct {
	dialer         rpc.Dialer
	log            *slog.Logger
	metrics        SessionMetrics
	status         *Broadcaster[ConnState]
	connectTimeout time.Duration
	retryInterval  time.Duration

	// onConnected runs once per established connection, before any command
	// is dispatched on it.
	onConnected func(*rpc.Conn)

	flight sf.Singleflight[rpc.Conn]
	state  atomic.Value // ConnState

	mu          sync.Mutex
	conn        *rpc.Conn
	attempt     int
	lastFailure time.Time
}

func newSupervisor(dialer rpc.Dialer, status *Broadcaster[ConnState], log *slog.Logger, metrics SessionMetrics, connectTimeout, retryInterval time.Duration) *supervisor {
	s := &supervisor{
		dialer:         dialer,
		log:            log,
		metrics:        metrics,
		status:         status,
		connectTimeout: connectTimeout,
		retryInterval:  retryInterval,
	}
	s.state.Store(ConnState{Phase: PhaseDisconnected})
	return s
}

// State returns the most recently published connection state.
func (s *supervisor) State() ConnState {
	return s.state.Load().(ConnState)
}

func (s *supervisor) current() *rpc.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// ensureConnected returns the live connection, dialing one if none exists.
// Concurrent callers share a single attempt; each failed attempt is
// followed by a retry gate before the next dial starts.
func (s *supervisor) ensureConnected(ctx context.Context) (*rpc.Conn, error) {
	if c := s.current(); c != nil {
		return c, nil
	}
	return s.flight.Do("connect", func() (*rpc.Conn, error) {
		// another caller may have connected while we waited on the flight
		if c := s.current(); c != nil {
			return c, nil
		}
		return s.connect(ctx)
	})
}

func (s *supervisor) connect(ctx context.Context) (*rpc.Conn, error) {
	s.mu.Lock()
	attempt := s.attempt + 1
	gate := time.Duration(0)
	if !s.lastFailure.IsZero() {
		gate = s.retryInterval - time.Since(s.lastFailure)
	}
	s.mu.Unlock()

	if gate > 0 {
		timer := time.NewTimer(gate)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	// a failed epoch ends in Error; close it out before opening a new one
	if st := s.State(); st.Phase == PhaseError {
		s.setState(ConnState{Phase: PhaseDisconnected, Reason: st.Reason})
	}
	s.setState(ConnState{Phase: PhaseConnecting, Attempt: attempt})
	s.log.Info("connecting", "attempt", attempt)

	start := time.Now()
	conn, err := s.dial(ctx)
	if err != nil {
		cerr := err
		var kind *ConnectError
		if !errors.As(cerr, &kind) {
			cerr = &ConnectError{Kind: ConnectTransport, Err: err}
		}
		s.mu.Lock()
		s.attempt = attempt
		s.lastFailure = time.Now()
		s.mu.Unlock()
		s.metrics.ConnectCompleted(false)
		s.setState(ConnState{Phase: PhaseError, Attempt: attempt, Reason: cerr.Error()})
		s.log.Warn("connect failed", "attempt", attempt, "error", cerr)
		return nil, cerr
	}

	s.mu.Lock()
	s.conn = conn
	s.attempt = 0
	s.lastFailure = time.Time{}
	s.mu.Unlock()
	s.metrics.ConnectCompleted(true)
	s.setState(ConnState{Phase: PhaseConnected})
	s.log.Info("connected", "attempt", attempt, "elapsed", time.Since(start))

	if s.onConnected != nil {
		s.onConnected(conn)
	}
	go s.watch(conn)
	return conn, nil
}

// dial performs one bounded connection attempt: transport dial followed by
// the hello exchange. Errors are classified so callers can tell a refused
// transport from a rejected handshake from a timeout.
func (s *supervisor) dial(ctx context.Context) (*rpc.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	t, err := s.dialer.Dial(dctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &ConnectError{Kind: ConnectTimeout, Err: err}
		}
		return nil, &ConnectError{Kind: ConnectTransport, Err: err}
	}
	conn, err := rpc.NewConn(dctx, t)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &ConnectError{Kind: ConnectTimeout, Err: err}
		}
		return nil, &ConnectError{Kind: ConnectBootstrap, Err: err}
	}
	return conn, nil
}

// watch blocks until the connection's transport terminates, then reports
// the loss. One watcher runs per established connection.
func (s *supervisor) watch(conn *rpc.Conn) {
	<-conn.Done()
	s.connLost(conn, conn.Err())
}

// connLost tears down the given connection if it is still current. The
// pointer comparison guards against a stale watcher or a failed in-flight
// call clobbering a newer connection.
func (s *supervisor) connLost(conn *rpc.Conn, reason error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	_ = conn.Close()
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	s.setState(ConnState{Phase: PhaseDisconnected, Reason: msg})
	s.log.Warn("connection lost", "reason", msg)
}

// close tears down the current connection, if any. Used on shutdown.
func (s *supervisor) close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.setState(ConnState{Phase: PhaseDisconnected, Reason: "closed"})
}

func (s *supervisor) setState(st ConnState) {
	s.state.Store(st)
	s.metrics.StateChanged(st.Phase.String())
	s.status.Publish(st)
}
