package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLagged matches any LagError via errors.Is.
	ErrLagged = errors.New("session: subscription lagged")

	// ErrSubscriptionClosed is returned by Recv after the subscription or
	// its broadcaster has been closed.
	ErrSubscriptionClosed = errors.New("session: subscription closed")
)

// LagError is returned by [Subscription.Recv] when the subscriber fell
// behind by more than the broadcaster's backlog. Missed is the number of
// items dropped since the previous read.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("session: subscription lagged, missed %d items", e.Missed)
}

func (e *LagError) Is(target error) bool { return target == ErrLagged }

// Broadcaster fans values out to any number of independent subscribers.
// Publish never blocks: a subscriber whose backlog is full loses its oldest
// undelivered item and learns about the gap through a LagError on its next
// Recv. Subscribers join and leave at any time without affecting each other
// or the publisher.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	subs     map[*Subscription[T]]struct{}
	capacity int
	closed   bool
	onDrop   func(n int)
}

func NewBroadcaster[T any](capacity int) *Broadcaster[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Broadcaster[T]{
		subs:     make(map[*Subscription[T]]struct{}),
		capacity: capacity,
	}
}

// WithDropHook installs a callback invoked with the number of items dropped
// on each overflow. Set before the first Publish.
func (b *Broadcaster[T]) WithDropHook(fn func(n int)) *Broadcaster[T] {
	b.onDrop = fn
	return b
}

// Subscribe attaches a new subscriber with an empty backlog.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{b: b, ch: make(chan T, b.capacity)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers v to every current subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.offer(v, b.onDrop)
	}
}

// Close detaches and closes every subscription. Further Publish calls are
// no-ops; further Subscribe calls return closed subscriptions.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

// Subscription is one subscriber's handle on a broadcaster.
type Subscription[T any] struct {
	b  *Broadcaster[T]
	ch chan T

	mu     sync.Mutex
	missed uint64
}

// offer runs under the broadcaster lock; only the drop accounting needs the
// subscription lock, because Recv reads missed concurrently.
func (s *Subscription[T]) offer(v T, onDrop func(int)) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		// backlog full: drop the oldest undelivered item and retry
		select {
		case <-s.ch:
			s.mu.Lock()
			s.missed++
			s.mu.Unlock()
			if onDrop != nil {
				onDrop(1)
			}
		default:
			// receiver drained concurrently; retry the send
		}
	}
}

// Recv returns the next item in publish order. If items were dropped since
// the previous read it returns a [LagError] first; the subsequent Recv
// resumes with the oldest retained item. Recv returns
// [ErrSubscriptionClosed] once the subscription is closed and drained.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T

	s.mu.Lock()
	if s.missed > 0 {
		n := s.missed
		s.missed = 0
		s.mu.Unlock()
		return zero, &LagError{Missed: n}
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-s.ch:
		if !ok {
			return zero, ErrSubscriptionClosed
		}
		return v, nil
	}
}

// Close detaches the subscription from its broadcaster.
func (s *Subscription[T]) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; ok {
		delete(s.b.subs, s)
		close(s.ch)
	}
}
