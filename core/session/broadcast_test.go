package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroadcaster_fanout_order(t *testing.T) {
	b := NewBroadcaster[int](8)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	for i := range 5 {
		b.Publish(i)
	}

	for _, sub := range []*Subscription[int]{s1, s2} {
		for i := range 5 {
			v, err := sub.Recv(t.Context())
			require.NoError(t, err)
			require.Equal(t, i, v)
		}
	}
}

func TestBroadcaster_drop_oldest_reports_lag(t *testing.T) {
	dropped := 0
	b := NewBroadcaster[int](4).WithDropHook(func(n int) { dropped += n })
	defer b.Close()

	sub := b.Subscribe()

	// 7 published into a buffer of 4: the oldest 3 must go.
	for i := range 7 {
		b.Publish(i)
	}

	_, err := sub.Recv(t.Context())
	require.ErrorIs(t, err, ErrLagged)
	var lag *LagError
	require.ErrorAs(t, err, &lag)
	require.EqualValues(t, 3, lag.Missed)
	require.Equal(t, 3, dropped)

	// After the lag signal the retained items arrive in order.
	for i := 3; i < 7; i++ {
		v, err := sub.Recv(t.Context())
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestBroadcaster_lag_precedes_newer_items(t *testing.T) {
	b := NewBroadcaster[int](2)
	defer b.Close()

	sub := b.Subscribe()
	for i := range 4 {
		b.Publish(i)
	}

	_, err := sub.Recv(t.Context())
	require.ErrorIs(t, err, ErrLagged)

	v, err := sub.Recv(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestBroadcaster_slow_subscriber_does_not_block_publisher(t *testing.T) {
	b := NewBroadcaster[int](1)
	defer b.Close()

	_ = b.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 100 {
			b.Publish(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a stalled subscriber")
	}
}

func TestBroadcaster_close_ends_subscriptions(t *testing.T) {
	b := NewBroadcaster[int](4)
	sub := b.Subscribe()
	b.Close()

	_, err := sub.Recv(t.Context())
	require.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestSubscription_recv_honors_context(t *testing.T) {
	b := NewBroadcaster[int](4)
	defer b.Close()
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := sub.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
