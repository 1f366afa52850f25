package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/collab-go/core/rpc"
)

// HeaderEventsSubject tells the server where to push events for this
// client. Each transport subscribes to its own subject.
const HeaderEventsSubject = "Collab-Events-Subject"

type TransportConfig struct {
	Connect       Connector    // Connect creates the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix for call subjects, e.g. "collab" -> collab.rpc
}

func (c TransportConfig) subjectPrefix() string {
	if c.SubjectPrefix == "" {
		return "collab"
	}
	return c.SubjectPrefix
}

// Transport carries the session protocol over NATS. Calls go out as
// request/reply on <prefix>.rpc; the server pushes events to the private
// subject named in the request header.
type Transport struct {
	nc        *natsgo.Conn
	closeNc   closeFunc
	log       *slog.Logger
	prefix    string
	evSubject string
	evSub     *natsgo.Subscription
	events    chan rpc.Envelope
	done      chan struct{}

	closed   atomic.Bool
	failOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// responseFrame is the reply encoding for one call. Must match core/rpc
// and rpctest.
type responseFrame struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
	Cap  string          `json:"cap,omitempty"`
	Err  string          `json:"err,omitempty"`
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	prefix := cfg.subjectPrefix()
	t := &Transport{
		nc:        nc,
		closeNc:   closeNc,
		log:       log.With(slog.String("transport", "nats")),
		prefix:    prefix,
		evSubject: prefix + ".events." + gonanoid.Must(8),
		events:    make(chan rpc.Envelope, 64),
		done:      make(chan struct{}),
	}

	t.evSub, err = nc.Subscribe(t.evSubject, t.onEvent)
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: subscribe events: %w", err)
	}
	nc.SetClosedHandler(func(*natsgo.Conn) {
		t.fail(rpc.ErrConnClosed)
	})
	return t, nil
}

func (t *Transport) onEvent(msg *natsgo.Msg) {
	var env rpc.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.log.Warn("dropping malformed event", slog.Any("error", err))
		return
	}
	select {
	case t.events <- env:
	case <-t.done:
	default:
		t.log.Warn("event buffer full, dropping", slog.String("method", env.Method))
	}
}

func (t *Transport) Invoke(ctx context.Context, target, method string, data []byte) (rpc.Result, error) {
	if t.closed.Load() {
		return rpc.Result{}, rpc.ErrConnClosed
	}

	env := rpc.Envelope{
		ID:     gonanoid.Must(12),
		Target: target,
		Method: method,
		Data:   data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return rpc.Result{}, fmt.Errorf("encode envelope: %w", err)
	}

	msg := natsgo.NewMsg(t.prefix + ".rpc")
	msg.Header.Set(HeaderEventsSubject, t.evSubject)
	msg.Data = payload

	resp, err := t.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return rpc.Result{}, fmt.Errorf("nats: request: %w", err)
	}

	var rf responseFrame
	if err := json.Unmarshal(resp.Data, &rf); err != nil {
		return rpc.Result{}, fmt.Errorf("decode response: %w", err)
	}
	if rf.Err != "" {
		return rpc.Result{}, &rpc.RemoteError{Method: method, Message: rf.Err}
	}
	return rpc.Result{Data: rf.Data, Cap: rf.Cap}, nil
}

func (t *Transport) Events() <-chan rpc.Envelope { return t.events }
func (t *Transport) Done() <-chan struct{}       { return t.done }

func (t *Transport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *Transport) Close() error {
	t.fail(nil)
	return nil
}

func (t *Transport) fail(cause error) {
	t.failOnce.Do(func() {
		t.closed.Store(true)
		t.errMu.Lock()
		t.err = cause
		t.errMu.Unlock()
		if t.evSub != nil {
			_ = t.evSub.Unsubscribe()
		}
		t.closeNc()
		close(t.done)
	})
}

// Dialer returns a dialer producing one Transport per connection attempt.
// Pair it with [ReuseConnection] to share a single NATS connection across
// reconnects.
func Dialer(cfg TransportConfig) rpc.Dialer {
	return rpc.DialerFunc(func(ctx context.Context) (rpc.Transport, error) {
		return NewTransport(cfg)
	})
}
