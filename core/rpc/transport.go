package rpc

import (
	"context"
	"encoding/json"
)

// Result is the decoded reply for one call. Cap, when set, is a capability
// id the caller may use as the Target of later calls.
type Result struct {
	Data json.RawMessage
	Cap  string
}

// Transport issues calls and delivers pushed envelopes for one live
// connection. Invoke is safe for concurrent use; Close is not idempotent
// with respect to in-flight calls (they fail with [ErrConnClosed]).
type Transport interface {
	// Invoke sends one call and waits for its reply, a transport failure,
	// or ctx cancellation. Application-level failures surface as
	// [RemoteError]; anything else means the connection is suspect.
	Invoke(ctx context.Context, target, method string, data []byte) (Result, error)

	// Events yields server-pushed envelopes. The channel is never closed;
	// select on Done to detect teardown.
	Events() <-chan Envelope

	// Done is closed when the transport dies, whatever the cause.
	Done() <-chan struct{}

	// Err returns the first failure after Done is closed, nil before.
	Err() error

	Close() error
}

// Dialer produces a fresh Transport. Implementations live in the adapters
// (SSH, NATS) and in rpctest.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) { return f(ctx) }
