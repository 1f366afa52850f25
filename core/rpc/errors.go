package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrConnClosed is returned for calls issued on (or interrupted by) a
	// dead transport.
	ErrConnClosed = errors.New("rpc: connection closed")

	// ErrMissingCapability is returned when the server reply omits a
	// capability the operation requires.
	ErrMissingCapability = errors.New("rpc: reply carries no capability")
)

// RemoteError is an application-level failure reported by the peer for a
// single call. It says nothing about the health of the connection.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote error in %s: %s", e.Method, e.Message)
}

// IsRemote reports whether err (or anything it wraps) is a RemoteError.
// Callers use this to distinguish per-call failures from connection loss.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
