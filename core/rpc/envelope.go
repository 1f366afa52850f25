package rpc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Wire method names. The server routes on these; capability calls
// additionally carry a target id.
const (
	MethodHello = "hello"

	MethodWhoami          = "whoami"
	MethodWorkspaceList   = "workspace.list"
	MethodWorkspaceCreate = "workspace.create"
	MethodWorkspaceJoin   = "workspace.join"
	MethodContentPush     = "content.push"
	MethodOpsApply        = "document.applyOps"
	MethodDocumentState   = "document.state"
	MethodToolExecute     = "tool.execute"

	MethodSeatInfo   = "seat.info"
	MethodSeatStatus = "seat.status"
	MethodSeatLeave  = "seat.leave"
)

// Push event names carried on the events sub-channel.
const (
	EventCellInserted        = "document.cellInserted"
	EventContentChanged      = "document.contentChanged"
	EventCellRemoved         = "document.cellRemoved"
	EventCellStatusChanged   = "document.cellStatus"
	EventResourceUpdated     = "resource.updated"
	EventResourceListChanged = "resource.listChanged"
)

// Envelope is one record on the wire: a call on the rpc sub-channel, or a
// push on the events sub-channel (then ID and Target are empty).
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Target string          `json:"target,omitempty"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// responseFrame is the reply record for one call. Must match the encoding in
// rpctest and the nats adapter.
type responseFrame struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
	Cap  string          `json:"cap,omitempty"`
	Err  string          `json:"err,omitempty"`
}

// maxFrame bounds a single frame; anything larger is a protocol error.
const maxFrame = 8 << 20

// WriteFrame writes v as a length-prefixed JSON frame. Callers serialize
// access to w themselves.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > maxFrame {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed JSON frame into v.
func ReadFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return fmt.Errorf("frame too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
