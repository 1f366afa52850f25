// Package rpc implements the client side of the collab RPC boundary: a
// binary, capability-passing request/response protocol multiplexed over a
// transport that exposes one sub-channel for calls and one for server-pushed
// events.
//
// The package is split into three layers:
//
//   - [Transport]: the abstract boundary. A transport issues calls addressed
//     by method name (and optionally a capability target), delivers pushed
//     [Envelope] records, and reports its own death via Done/Err.
//   - [StreamTransport]: the standard implementation over two framed byte
//     streams (an SSH channel pair in production, net.Pipe in tests).
//     Concurrent calls are multiplexed by call id with a pending-reply map.
//   - [Conn]: the typed client. It performs the protocol hello on creation
//     and exposes one method per remote operation. Operations that return
//     remote objects (e.g. [Conn.JoinWorkspace]) yield capability handles
//     such as [Seat] whose methods are themselves remote calls.
//
// A Transport is safe for concurrent calls from many goroutines; creation
// and teardown of the underlying connection belong to a single owner (the
// session supervisor).
package rpc
