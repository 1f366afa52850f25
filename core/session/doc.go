// Package session provides the actor-based client core for a collaborative
// session server: a single remote connection, owned by one goroutine, serving
// any number of concurrent callers with bounded concurrency, automatic
// reconnection, and fan-out of server-pushed events.
//
// # Architecture
//
//	Handle (safe to share)      mailbox       dispatch actor (one goroutine)
//	┌──────────────────────┐  ──────────▶  ┌────────────────────────────────┐
//	│ .Whoami()            │               │ supervisor: ensureConnected    │
//	│ .PushContent()       │  ◀──────────  │ scheduler: one child task per  │
//	│ .ApplyOps()          │   reply slot  │ command, concurrent calls      │
//	│ .SubscribeEvents()   │               │ conn: exclusively owned here   │
//	└──────────────────────┘               └────────────────────────────────┘
//
// The connection object is confined: only the dispatch actor's goroutine
// (started by [Start]) creates and tears it down. Everything else talks to
// the core through a [Handle], which touches only the mailbox and the
// broadcasters and can be freely shared across goroutines.
//
// Commands enter a bounded mailbox (capacity [DefaultMailboxSize]); a full
// mailbox suspends the caller, which is the system's only backpressure
// mechanism. The actor dequeues in FIFO order, ensures connectivity serially,
// then runs each remote call in its own child task — so dispatch order is
// FIFO but completion order is not.
//
// Connection establishment is serialized via singleflight and retried on a
// fixed interval, driven by the next command that needs a connection rather
// than a timer loop. Connection loss fails only the calls that were in
// flight; the next command reconnects transparently. State transitions and
// server-pushed events are published on broadcast channels; a slow
// subscriber loses the oldest items and observes an explicit [LagError]
// instead of a silent gap.
//
// A caller that abandons a reply (its ctx expires) does not cancel the
// remote call; the call runs to completion on the actor side and the unread
// reply is discarded. There is no wire-level cancellation.
package session
