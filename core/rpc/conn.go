package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is negotiated during the hello exchange; the server must
// speak exactly this version.
const ProtocolVersion = 1

const clientName = "collab-go"

// Conn is the typed client for one live connection. It is cheap to share:
// all methods delegate to the underlying Transport, which is safe for
// concurrent calls. Creating and closing a Conn belongs to a single owner.
type Conn struct {
	t       Transport
	session string
}

// NewConn performs the protocol hello on t and returns the typed client.
// On failure the transport is closed.
func NewConn(ctx context.Context, t Transport) (*Conn, error) {
	c := &Conn{t: t}
	info, _, err := call[HelloArgs, HelloInfo](ctx, c, "", MethodHello, HelloArgs{
		Protocol: ProtocolVersion,
		Client:   clientName,
	})
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}
	if info.Protocol != ProtocolVersion {
		_ = t.Close()
		return nil, fmt.Errorf("hello: protocol mismatch: server=%d client=%d", info.Protocol, ProtocolVersion)
	}
	c.session = info.Session
	return c, nil
}

// SessionID is the server-assigned id for this connection epoch.
func (c *Conn) SessionID() string { return c.session }

func (c *Conn) Whoami(ctx context.Context) (*Identity, error) {
	id, _, err := call[struct{}, Identity](ctx, c, "", MethodWhoami, struct{}{})
	return id, err
}

func (c *Conn) ListWorkspaces(ctx context.Context) ([]WorkspaceInfo, error) {
	res, _, err := call[struct{}, WorkspaceListResult](ctx, c, "", MethodWorkspaceList, struct{}{})
	if err != nil {
		return nil, err
	}
	return res.Workspaces, nil
}

func (c *Conn) CreateWorkspace(ctx context.Context, name string) (*WorkspaceInfo, error) {
	ws, _, err := call[CreateWorkspaceArgs, WorkspaceInfo](ctx, c, "", MethodWorkspaceCreate, CreateWorkspaceArgs{Name: name})
	return ws, err
}

// JoinWorkspace registers presence in a workspace and returns the seat
// capability the server handed back.
func (c *Conn) JoinWorkspace(ctx context.Context, workspace, instance string) (*Seat, error) {
	info, capID, err := call[JoinWorkspaceArgs, SeatInfo](ctx, c, "", MethodWorkspaceJoin, JoinWorkspaceArgs{
		Workspace: workspace,
		Instance:  instance,
	})
	if err != nil {
		return nil, err
	}
	if capID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCapability, MethodWorkspaceJoin)
	}
	return &Seat{conn: c, id: capID, info: *info}, nil
}

func (c *Conn) PushContent(ctx context.Context, workspace, content string) (uint64, error) {
	res, _, err := call[PushContentArgs, SeqResult](ctx, c, "", MethodContentPush, PushContentArgs{
		Workspace: workspace,
		Content:   content,
	})
	if err != nil {
		return 0, err
	}
	return res.Seq, nil
}

// ApplyOps submits replicated-document operations and returns the sequence
// the server assigned to the batch.
func (c *Conn) ApplyOps(ctx context.Context, documentID string, ops []byte) (uint64, error) {
	res, _, err := call[ApplyOpsArgs, SeqResult](ctx, c, "", MethodOpsApply, ApplyOpsArgs{
		Document: documentID,
		Ops:      ops,
	})
	if err != nil {
		return 0, err
	}
	return res.Seq, nil
}

func (c *Conn) DocumentState(ctx context.Context, documentID string) (*DocumentState, error) {
	st, _, err := call[DocumentStateArgs, DocumentState](ctx, c, "", MethodDocumentState, DocumentStateArgs{Document: documentID})
	return st, err
}

func (c *Conn) ExecuteTool(ctx context.Context, tool, params string) (*ToolResult, error) {
	res, _, err := call[ExecuteToolArgs, ToolResult](ctx, c, "", MethodToolExecute, ExecuteToolArgs{
		Tool:   tool,
		Params: params,
	})
	return res, err
}

func (c *Conn) Events() <-chan Envelope { return c.t.Events() }
func (c *Conn) Done() <-chan struct{}   { return c.t.Done() }
func (c *Conn) Err() error              { return c.t.Err() }
func (c *Conn) Close() error            { return c.t.Close() }

// Seat is the capability returned by [Conn.JoinWorkspace]. Its methods are
// remote calls addressed to the seat object on the server.
type Seat struct {
	conn *Conn
	id   string
	info SeatInfo
}

// Info is the seat snapshot taken at join time.
func (s *Seat) Info() SeatInfo { return s.info }

// State fetches the current seat state from the server.
func (s *Seat) State(ctx context.Context) (*SeatInfo, error) {
	info, _, err := call[struct{}, SeatInfo](ctx, s.conn, s.id, MethodSeatInfo, struct{}{})
	return info, err
}

func (s *Seat) SetStatus(ctx context.Context, status string) error {
	_, _, err := call[SetSeatStatusArgs, struct{}](ctx, s.conn, s.id, MethodSeatStatus, SetSeatStatusArgs{Status: status})
	return err
}

// Leave releases the seat. The capability is dead afterwards.
func (s *Seat) Leave(ctx context.Context) error {
	_, _, err := call[struct{}, struct{}](ctx, s.conn, s.id, MethodSeatLeave, struct{}{})
	return err
}

// call marshals in, invokes method on the connection, and unmarshals the
// reply. The returned string is the capability id, if the reply carried one.
func call[IN any, OUT any](ctx context.Context, c *Conn, target, method string, in IN) (*OUT, string, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", method, err)
	}
	res, err := c.t.Invoke(ctx, target, method, data)
	if err != nil {
		return nil, "", err
	}
	out := new(OUT)
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, out); err != nil {
			return nil, "", fmt.Errorf("decode %s reply: %w", method, err)
		}
	}
	return out, res.Cap, nil
}
