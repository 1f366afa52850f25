package rpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Channels are the sub-channels of one established connection.
type Channels struct {
	// RPC carries call/reply frames.
	RPC io.ReadWriteCloser
	// Events carries pushed envelopes.
	Events io.ReadCloser
	// Session, if set, is closed last when the transport dies (e.g. the
	// SSH client owning both channels).
	Session io.Closer
}

// StreamTransport multiplexes concurrent calls over one framed byte stream,
// matching replies to callers by call id, and decodes pushes from a second
// stream. The first read/write failure on either stream kills the whole
// transport and fails every pending call.
type StreamTransport struct {
	ch  Channels
	log *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan responseFrame
	err     error
	closed  bool

	events chan Envelope
	done   chan struct{}
}

const eventBuffer = 64

// NewStreamTransport starts the read loops for both streams. Pass a nil
// logger to discard diagnostics.
func NewStreamTransport(ch Channels, log *slog.Logger) *StreamTransport {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	t := &StreamTransport{
		ch:      ch,
		log:     log.With(slog.String("transport", "stream")),
		pending: make(map[string]chan responseFrame),
		events:  make(chan Envelope, eventBuffer),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	go t.eventLoop()
	return t
}

func (t *StreamTransport) Invoke(ctx context.Context, target, method string, data []byte) (Result, error) {
	id := gonanoid.Must()
	ch := make(chan responseFrame, 1)

	t.mu.Lock()
	if t.closed {
		err := t.err
		t.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %w", ErrConnClosed, err)
	}
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	env := Envelope{ID: id, Target: target, Method: method, Data: data}
	if err := t.send(env); err != nil {
		t.fail(err)
		return Result{}, fmt.Errorf("%w: %w", ErrConnClosed, err)
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-t.done:
		return Result{}, fmt.Errorf("%w: %w", ErrConnClosed, t.Err())
	case rf := <-ch:
		if rf.Err != "" {
			return Result{}, &RemoteError{Method: method, Message: rf.Err}
		}
		return Result{Data: rf.Data, Cap: rf.Cap}, nil
	}
}

func (t *StreamTransport) Events() <-chan Envelope { return t.events }
func (t *StreamTransport) Done() <-chan struct{}   { return t.done }

func (t *StreamTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *StreamTransport) Close() error {
	t.fail(ErrConnClosed)
	return nil
}

func (t *StreamTransport) send(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return WriteFrame(t.ch.RPC, v)
}

// readLoop delivers call replies to their pending waiters.
func (t *StreamTransport) readLoop() {
	for {
		var rf responseFrame
		if err := ReadFrame(t.ch.RPC, &rf); err != nil {
			t.fail(err)
			return
		}
		t.mu.Lock()
		ch := t.pending[rf.ID]
		t.mu.Unlock()
		if ch == nil {
			// waiter gave up; reply is discarded
			t.log.Debug("dropping orphan reply", slog.String("id", rf.ID))
			continue
		}
		ch <- rf
	}
}

func (t *StreamTransport) eventLoop() {
	for {
		var env Envelope
		if err := ReadFrame(t.ch.Events, &env); err != nil {
			t.fail(err)
			return
		}
		select {
		case t.events <- env:
		case <-t.done:
			return
		}
	}
}

// fail records the first cause, wakes all pending calls, and tears the
// streams down. Safe to call from any goroutine, any number of times.
func (t *StreamTransport) fail(cause error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.err = cause
	close(t.done)
	t.mu.Unlock()

	t.log.Debug("transport down", slog.Any("cause", cause))

	_ = t.ch.RPC.Close()
	_ = t.ch.Events.Close()
	if t.ch.Session != nil {
		_ = t.ch.Session.Close()
	}
}

var _ Transport = (*StreamTransport)(nil)
