package rpc

// Identity describes the authenticated caller, as seen by the server.
type Identity struct {
	Nick string `json:"nick"`
	User string `json:"user"`
	Host string `json:"host,omitempty"`
}

// WorkspaceInfo is a snapshot of one workspace on the server.
type WorkspaceInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Documents []string `json:"documents,omitempty"`
	Seats     int      `json:"seats"`
}

// SeatInfo is a snapshot of one participant's seat in a workspace.
type SeatInfo struct {
	ID        string `json:"id"`
	Nick      string `json:"nick"`
	Instance  string `json:"instance"`
	Workspace string `json:"workspace"`
	Status    string `json:"status"`
}

// CellSnapshot is a point-in-time copy of one document cell. Events carry
// snapshots, never references into server state.
type CellSnapshot struct {
	ID      string `json:"id"`
	Kind    string `json:"kind,omitempty"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

// DocumentState is the full replicated state of a document at a version.
type DocumentState struct {
	DocumentID string `json:"document_id"`
	Version    uint64 `json:"version"`
	Snapshot   []byte `json:"snapshot,omitempty"`
}

// ToolResult is the outcome of a server-side tool execution.
type ToolResult struct {
	Ok     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
}

// --- request/reply payloads (shared wire schema) ---

type HelloArgs struct {
	Protocol int    `json:"protocol"`
	Client   string `json:"client"`
}

type HelloInfo struct {
	Protocol int    `json:"protocol"`
	Session  string `json:"session"`
}

type CreateWorkspaceArgs struct {
	Name string `json:"name"`
}

type JoinWorkspaceArgs struct {
	Workspace string `json:"workspace"`
	Instance  string `json:"instance"`
}

type PushContentArgs struct {
	Workspace string `json:"workspace"`
	Content   string `json:"content"`
}

type ApplyOpsArgs struct {
	Document string `json:"document"`
	Ops      []byte `json:"ops"`
}

type DocumentStateArgs struct {
	Document string `json:"document"`
}

type ExecuteToolArgs struct {
	Tool   string `json:"tool"`
	Params string `json:"params,omitempty"`
}

type SetSeatStatusArgs struct {
	Status string `json:"status"`
}

// SeqResult acknowledges an accepted mutation with its server sequence.
type SeqResult struct {
	Seq uint64 `json:"seq"`
}

// WorkspaceListResult wraps workspace listings.
type WorkspaceListResult struct {
	Workspaces []WorkspaceInfo `json:"workspaces"`
}
