package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codewandler/collab-go/core/perkey"
	"github.com/codewandler/collab-go/core/rpc"
)

const (
	// DefaultMailboxSize bounds outstanding commands; enqueue beyond it
	// suspends the caller.
	DefaultMailboxSize = 32
	// DefaultEventBacklog is the per-subscriber server event buffer.
	DefaultEventBacklog = 256
	// DefaultStatusBacklog is the per-subscriber connection state buffer.
	DefaultStatusBacklog = 16
	// DefaultConnectTimeout bounds one connection attempt end to end.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRetryInterval is the minimum gap between failed attempts.
	DefaultRetryInterval = 5 * time.Second
)

// Options configures a Session. Dialer is required; everything else has a
// usable default.
type Options struct {
	// Dialer establishes the transport for each connection attempt.
	Dialer rpc.Dialer

	// Context bounds the session's lifetime. Defaults to
	// context.Background().
	Context context.Context

	// Logger receives structured lifecycle and dispatch logs. Defaults to
	// a discard logger.
	Logger *slog.Logger

	// Metrics receives session instrumentation. Defaults to no-op.
	Metrics SessionMetrics

	MailboxSize    int
	EventBacklog   int
	StatusBacklog  int
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
}

func (o *Options) defaults() error {
	if o.Dialer == nil {
		return errors.New("session: Options.Dialer is required")
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Metrics == nil {
		o.Metrics = NopSessionMetrics()
	}
	if o.MailboxSize <= 0 {
		o.MailboxSize = DefaultMailboxSize
	}
	if o.EventBacklog <= 0 {
		o.EventBacklog = DefaultEventBacklog
	}
	if o.StatusBacklog <= 0 {
		o.StatusBacklog = DefaultStatusBacklog
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	return nil
}

// Session is the dispatch actor. A single goroutine owns the loop: it
// drains the mailbox, lazily connects through the supervisor, and fans each
// command out to a bounded child task. Remote server events and connection
// state changes are published to subscribers through the Handle.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
	m      SessionMetrics

	mb     *mailbox
	sup    *supervisor
	sched  *scheduler
	writes *perkey.Scheduler[string]
	events *Broadcaster[ServerEvent]
	status *Broadcaster[ConnState]

	done chan struct{}
}

// Start builds a Session from opts and spawns its dispatch loop. The
// returned Handle is the only way to interact with the actor.
func Start(opts Options) (*Handle, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(opts.Context)
	s := &Session{
		ctx:    ctx,
		cancel: cancel,
		log:    opts.Logger,
		m:      opts.Metrics,
		mb:     newMailbox(opts.MailboxSize),
		writes: perkey.New[string](),
		done:   make(chan struct{}),
	}
	s.events = NewBroadcaster[ServerEvent](opts.EventBacklog).
		WithDropHook(func(n int) { s.m.EventsDropped(n) })
	s.status = NewBroadcaster[ConnState](opts.StatusBacklog)
	s.sup = newSupervisor(opts.Dialer, s.status, s.log, s.m,
		opts.ConnectTimeout, opts.RetryInterval)
	s.sup.onConnected = s.attachForwarder
	s.sched = newScheduler(ctx, s.log, opts.MailboxSize, s.m)

	go s.loop()

	return &Handle{s: s}, nil
}

// loop is the actor body. It is the only goroutine that triggers connection
// attempts, so at most one attempt is in flight for the whole session.
func (s *Session) loop() {
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.mb.ch:
			s.m.MailboxDepth(s.mb.depth())
			s.dispatch(cmd)
		}
	}
}

// dispatch resolves a connection and hands the command to a child task.
// Commands that arrive while disconnected block the loop on the connect
// attempt; everything enqueued meanwhile waits its mailbox turn and then
// reuses the established connection.
func (s *Session) dispatch(cmd command) {
	conn, err := s.sup.ensureConnected(s.ctx)
	if err != nil {
		failCommand(cmd, err)
		s.mb.release()
		return
	}

	switch c := cmd.(type) {
	case *whoamiCmd:
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) (*rpc.Identity, error) {
			return conn.Whoami(ctx)
		})
	case *listWorkspacesCmd:
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) ([]rpc.WorkspaceInfo, error) {
			return conn.ListWorkspaces(ctx)
		})
	case *createWorkspaceCmd:
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) (*rpc.WorkspaceInfo, error) {
			return conn.CreateWorkspace(ctx, c.name)
		})
	case *joinWorkspaceCmd:
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) (*rpc.Seat, error) {
			return conn.JoinWorkspace(ctx, c.workspace, c.instance)
		})
	case *pushContentCmd:
		// writes to one workspace keep submission order
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) (uint64, error) {
			var seq uint64
			if err := s.writes.DoContext(ctx, "ws:"+c.workspace, func() error {
				var err error
				seq, err = conn.PushContent(ctx, c.workspace, c.content)
				return err
			}); err != nil {
				return 0, err
			}
			return seq, nil
		})
	case *applyOpsCmd:
		// ops against one document apply in submission order
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) (uint64, error) {
			var seq uint64
			if err := s.writes.DoContext(ctx, "doc:"+c.document, func() error {
				var err error
				seq, err = conn.ApplyOps(ctx, c.document, c.ops)
				return err
			}); err != nil {
				return 0, err
			}
			return seq, nil
		})
	case *documentStateCmd:
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) (*rpc.DocumentState, error) {
			return conn.DocumentState(ctx, c.document)
		})
	case *executeToolCmd:
		dispatchCall(s, conn, c.op(), c.reply, func(ctx context.Context) (*rpc.ToolResult, error) {
			return conn.ExecuteTool(ctx, c.tool, c.params)
		})
	default:
		failCommand(cmd, ErrActorUnavailable)
		s.mb.release()
	}
}

// dispatchCall runs one remote call as a child task. A transport-level
// failure reports the connection as lost; a remote application error does
// not, since the transport is still healthy.
func dispatchCall[T any](s *Session, conn *rpc.Conn, op string, reply replySlot[T], fn func(ctx context.Context) (T, error)) {
	s.sched.schedule(func() {
		timer := s.m.CommandDuration(op)
		val, err := fn(s.ctx)
		timer.ObserveDuration()
		s.m.CommandCompleted(op, err == nil)
		if err != nil && !rpc.IsRemote(err) && !errors.Is(err, context.Canceled) {
			s.sup.connLost(conn, err)
		}
		reply.deliver(val, err)
		s.mb.release()
	}, func() {
		var zero T
		reply.deliver(zero, ErrActorUnavailable)
		s.mb.release()
	})
}

// shutdown fails everything still queued, waits out child tasks, and tears
// down the connection and broadcasters. Runs once, on the loop goroutine.
func (s *Session) shutdown() {
	s.mb.close()
drain:
	for {
		select {
		case cmd := <-s.mb.ch:
			failCommand(cmd, ErrActorUnavailable)
			s.mb.release()
		default:
			break drain
		}
	}
	s.sched.wait()
	s.writes.Close()
	s.sup.close()
	s.events.Close()
	s.status.Close()
	s.log.Debug("session stopped")
}

func (s *Session) stop() {
	s.cancel()
	s.mb.close()
	<-s.done
}
