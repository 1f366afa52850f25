package session

import (
	"context"
	"sync"
)

// mailbox is the bounded FIFO queue feeding the dispatch actor. A command
// occupies one of the fixed slots from enqueue until its reply slot is
// written, so enqueue suspends the caller while capacity commands are
// outstanding — queued or in flight. This is the system's only backpressure
// mechanism. A closed mailbox fails every pending and future enqueue with
// ErrActorUnavailable.
type mailbox struct {
	tokens chan struct{}
	ch     chan command
	stop   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{
		tokens: make(chan struct{}, capacity),
		ch:     make(chan command, capacity),
		stop:   make(chan struct{}),
	}
}

func (m *mailbox) enqueue(ctx context.Context, cmd command) error {
	if m.isClosed() {
		return ErrActorUnavailable
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stop:
		return ErrActorUnavailable
	case m.tokens <- struct{}{}:
	}
	// The send is serialized with close so that once the shutdown drain
	// runs, no further command can land in the channel. The token bounds
	// outstanding commands, so the send itself cannot block.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.tokens
		return ErrActorUnavailable
	}
	m.ch <- cmd
	m.mu.Unlock()
	return nil
}

// release frees one slot after a command's reply slot has been written.
func (m *mailbox) release() {
	select {
	case <-m.tokens:
	default:
	}
}

func (m *mailbox) depth() int { return len(m.ch) }

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stop)
}

func (m *mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
