package session

import (
	"context"

	"github.com/codewandler/collab-go/core/rpc"
)

// result carries one command outcome through a reply slot.
type result[T any] struct {
	val T
	err error
}

// replySlot is a one-shot reply channel. It is written at most once; the
// buffer of one means delivery never blocks even if the caller abandoned
// the wait.
type replySlot[T any] struct {
	ch chan result[T]
}

func newReplySlot[T any]() replySlot[T] {
	return replySlot[T]{ch: make(chan result[T], 1)}
}

func (s replySlot[T]) deliver(val T, err error) {
	select {
	case s.ch <- result[T]{val: val, err: err}:
	default:
		// already written; the slot contract forbids a second delivery
	}
}

func (s replySlot[T]) await(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-s.ch:
		return r.val, r.err
	}
}

// command is the closed set of requests the dispatch actor understands.
// Each variant pairs its typed arguments with a one-shot reply slot and is
// consumed by exactly one child task.
type command interface {
	op() string
}

type whoamiCmd struct {
	reply replySlot[*rpc.Identity]
}

type listWorkspacesCmd struct {
	reply replySlot[[]rpc.WorkspaceInfo]
}

type createWorkspaceCmd struct {
	name  string
	reply replySlot[*rpc.WorkspaceInfo]
}

type joinWorkspaceCmd struct {
	workspace string
	instance  string
	reply     replySlot[*rpc.Seat]
}

type pushContentCmd struct {
	workspace string
	content   string
	reply     replySlot[uint64]
}

type applyOpsCmd struct {
	document string
	ops      []byte
	reply    replySlot[uint64]
}

type documentStateCmd struct {
	document string
	reply    replySlot[*rpc.DocumentState]
}

type executeToolCmd struct {
	tool   string
	params string
	reply  replySlot[*rpc.ToolResult]
}

func (*whoamiCmd) op() string          { return "whoami" }
func (*listWorkspacesCmd) op() string  { return "workspace.list" }
func (*createWorkspaceCmd) op() string { return "workspace.create" }
func (*joinWorkspaceCmd) op() string   { return "workspace.join" }
func (*pushContentCmd) op() string     { return "content.push" }
func (*applyOpsCmd) op() string        { return "ops.apply" }
func (*documentStateCmd) op() string   { return "document.state" }
func (*executeToolCmd) op() string     { return "tool.execute" }

// failCommand writes err into a command's reply slot without dispatching it.
func failCommand(cmd command, err error) {
	switch c := cmd.(type) {
	case *whoamiCmd:
		c.reply.deliver(nil, err)
	case *listWorkspacesCmd:
		c.reply.deliver(nil, err)
	case *createWorkspaceCmd:
		c.reply.deliver(nil, err)
	case *joinWorkspaceCmd:
		c.reply.deliver(nil, err)
	case *pushContentCmd:
		c.reply.deliver(0, err)
	case *applyOpsCmd:
		c.reply.deliver(0, err)
	case *documentStateCmd:
		c.reply.deliver(nil, err)
	case *executeToolCmd:
		c.reply.deliver(nil, err)
	}
}
