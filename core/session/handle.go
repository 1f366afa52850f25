package session

import (
	"context"

	"github.com/codewandler/collab-go/core/rpc"
)

// Handle is the public face of a Session. Every method is safe for
// concurrent use from any goroutine: commands are enqueued on the bounded
// mailbox and the caller blocks until the reply slot is written or ctx
// ends. Abandoning a wait never leaks the command; it completes in the
// background and its one-shot reply is discarded.
type Handle struct {
	s *Session
}

// Whoami returns the server's view of the caller's identity.
func (h *Handle) Whoami(ctx context.Context) (*rpc.Identity, error) {
	cmd := &whoamiCmd{reply: newReplySlot[*rpc.Identity]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.await(ctx)
}

// ListWorkspaces returns all workspaces visible to the caller.
func (h *Handle) ListWorkspaces(ctx context.Context) ([]rpc.WorkspaceInfo, error) {
	cmd := &listWorkspacesCmd{reply: newReplySlot[[]rpc.WorkspaceInfo]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.await(ctx)
}

// CreateWorkspace creates a named workspace and returns its descriptor.
func (h *Handle) CreateWorkspace(ctx context.Context, name string) (*rpc.WorkspaceInfo, error) {
	cmd := &createWorkspaceCmd{name: name, reply: newReplySlot[*rpc.WorkspaceInfo]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.await(ctx)
}

// JoinWorkspace joins a workspace under the given instance name and returns
// the resulting seat. The seat is bound to the connection that produced it;
// after a reconnect it must be reacquired.
func (h *Handle) JoinWorkspace(ctx context.Context, workspace, instance string) (*rpc.Seat, error) {
	cmd := &joinWorkspaceCmd{workspace: workspace, instance: instance, reply: newReplySlot[*rpc.Seat]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.await(ctx)
}

// PushContent replaces the workspace's shared content and returns the new
// sequence number.
func (h *Handle) PushContent(ctx context.Context, workspace, content string) (uint64, error) {
	cmd := &pushContentCmd{workspace: workspace, content: content, reply: newReplySlot[uint64]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return 0, err
	}
	return cmd.reply.await(ctx)
}

// ApplyOps applies an encoded operation batch to a document and returns the
// resulting sequence number.
func (h *Handle) ApplyOps(ctx context.Context, document string, ops []byte) (uint64, error) {
	cmd := &applyOpsCmd{document: document, ops: ops, reply: newReplySlot[uint64]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return 0, err
	}
	return cmd.reply.await(ctx)
}

// DocumentState fetches the full materialized state of a document.
func (h *Handle) DocumentState(ctx context.Context, document string) (*rpc.DocumentState, error) {
	cmd := &documentStateCmd{document: document, reply: newReplySlot[*rpc.DocumentState]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.await(ctx)
}

// ExecuteTool runs a named server-side tool with JSON-encoded params.
func (h *Handle) ExecuteTool(ctx context.Context, tool, params string) (*rpc.ToolResult, error) {
	cmd := &executeToolCmd{tool: tool, params: params, reply: newReplySlot[*rpc.ToolResult]()}
	if err := h.s.mb.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.await(ctx)
}

// SubscribeEvents returns a subscription to server events. A slow consumer
// loses the oldest buffered events and observes the loss as a LagError on
// its next Recv.
func (h *Handle) SubscribeEvents() *Subscription[ServerEvent] {
	return h.s.events.Subscribe()
}

// SubscribeState returns a subscription to connection state changes.
func (h *Handle) SubscribeState() *Subscription[ConnState] {
	return h.s.status.Subscribe()
}

// State returns the current connection state without subscribing.
func (h *Handle) State() ConnState {
	return h.s.sup.State()
}

// Done is closed once the session has fully stopped.
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Stop shuts the session down: pending and queued commands fail with
// ErrActorUnavailable, in-flight child tasks are waited out, and the
// connection is closed. Stop blocks until teardown completes and is safe to
// call more than once.
func (h *Handle) Stop() {
	h.s.stop()
}
