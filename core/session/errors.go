package session

import (
	"errors"
	"fmt"
)

var (
	// ErrActorUnavailable means the dispatch actor has shut down; present
	// and future commands fail with it immediately.
	ErrActorUnavailable = errors.New("session: actor unavailable")
)

// ConnectKind classifies a failed connection attempt.
type ConnectKind int

const (
	// ConnectTransport: the transport handshake (dial, auth) failed.
	ConnectTransport ConnectKind = iota
	// ConnectBootstrap: the transport came up but the protocol hello failed.
	ConnectBootstrap
	// ConnectTimeout: the overall connect deadline elapsed.
	ConnectTimeout
)

func (k ConnectKind) String() string {
	switch k {
	case ConnectTransport:
		return "transport"
	case ConnectBootstrap:
		return "bootstrap"
	case ConnectTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ConnectError is a failed connection attempt. It is recorded in the Error
// connection state and returned to every command that waited on the attempt.
type ConnectError struct {
	Kind ConnectKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: connect failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
