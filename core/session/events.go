package session

import "github.com/codewandler/collab-go/core/rpc"

// ConnPhase is the connection lifecycle phase. Transitions are driven solely
// by the supervisor and never skip a phase within an epoch.
type ConnPhase int

const (
	PhaseDisconnected ConnPhase = iota
	PhaseConnecting
	PhaseConnected
	PhaseError
)

func (p ConnPhase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnState is one observed connection state. Attempt counts consecutive
// connect attempts since the last success; Reason is set for the
// Disconnected and Error phases.
type ConnState struct {
	Phase   ConnPhase
	Attempt int
	Reason  string
}

// ServerEvent is the closed set of events the server pushes to the client.
// Every variant carries a snapshot, never a reference into connection-owned
// state. Subscribe via [Handle.SubscribeEvents].
type ServerEvent interface {
	isServerEvent()
}

// CellInserted: a new cell appeared in a document.
type CellInserted struct {
	Document string           `json:"document"`
	Cell     rpc.CellSnapshot `json:"cell"`
	Ops      []byte           `json:"ops,omitempty"`
}

// ContentChanged: replicated text operations were applied to a cell.
type ContentChanged struct {
	Document string `json:"document"`
	Cell     string `json:"cell"`
	Ops      []byte `json:"ops,omitempty"`
}

// CellRemoved: a cell was deleted from a document.
type CellRemoved struct {
	Document string `json:"document"`
	Cell     string `json:"cell"`
}

// CellStatusChanged: a cell's execution status moved.
type CellStatusChanged struct {
	Document string `json:"document"`
	Cell     string `json:"cell"`
	Status   string `json:"status"`
}

// ResourceUpdated: a server-side resource's content changed.
type ResourceUpdated struct {
	Server string `json:"server"`
	URI    string `json:"uri"`
}

// ResourceListChanged: a server's resource list changed.
type ResourceListChanged struct {
	Server string `json:"server"`
}

func (CellInserted) isServerEvent()        {}
func (ContentChanged) isServerEvent()      {}
func (CellRemoved) isServerEvent()         {}
func (CellStatusChanged) isServerEvent()   {}
func (ResourceUpdated) isServerEvent()     {}
func (ResourceListChanged) isServerEvent() {}
