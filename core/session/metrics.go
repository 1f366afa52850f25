package session

import "github.com/codewandler/collab-go/core/metrics"

// SessionMetrics defines the metrics interface for the session core.
// All methods are safe for concurrent use.
type SessionMetrics interface {
	// Commands
	CommandDuration(op string) metrics.Timer
	CommandCompleted(op string, success bool)
	MailboxDepth(depth int)
	CallsInflight(count int)

	// Connection
	ConnectCompleted(success bool)
	StateChanged(phase string)

	// Events
	EventPublished(kind string)
	EventsDropped(count int)
}

// nopSessionMetrics is a no-op implementation of SessionMetrics.
type nopSessionMetrics struct{}

func (nopSessionMetrics) CommandDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopSessionMetrics) CommandCompleted(string, bool)        {}
func (nopSessionMetrics) MailboxDepth(int)                     {}
func (nopSessionMetrics) CallsInflight(int)                    {}

func (nopSessionMetrics) ConnectCompleted(bool) {}
func (nopSessionMetrics) StateChanged(string)   {}

func (nopSessionMetrics) EventPublished(string) {}
func (nopSessionMetrics) EventsDropped(int)     {}

// NopSessionMetrics returns a no-op SessionMetrics implementation.
func NopSessionMetrics() SessionMetrics { return nopSessionMetrics{} }
