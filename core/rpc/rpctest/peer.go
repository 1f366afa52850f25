// Package rpctest provides an in-process stub peer speaking the stream
// protocol over net.Pipe. Tests use it to drive a real client stack without
// a network: handlers are scriptable, dials can be made to fail, and live
// connections can be severed to exercise reconnect paths.
package rpctest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/codewandler/collab-go/core/rpc"
)

// HandlerFunc serves one call. The returned value is marshaled as the reply
// payload; cap, when non-empty, is attached as a capability id.
type HandlerFunc func(target string, data json.RawMessage) (out any, cap string, err error)

// responseFrame must match the encoding in core/rpc.
type responseFrame struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
	Cap  string          `json:"cap,omitempty"`
	Err  string          `json:"err,omitempty"`
}

// Peer is a scriptable stub server. A fresh Peer answers the whole call
// surface against in-memory state; individual methods can be overridden
// with [Peer.Handle].
type Peer struct {
	log *slog.Logger

	mu         sync.Mutex
	handlers   map[string]HandlerFunc
	conns      map[*peerConn]struct{}
	dialErr    error
	dials      int
	sessions   int
	seq        uint64
	seats      int
	identity   rpc.Identity
	workspaces map[string]*rpc.WorkspaceInfo
	seatInfos  map[string]*rpc.SeatInfo
}

func NewPeer() *Peer {
	p := &Peer{
		log:        slog.New(slog.DiscardHandler),
		handlers:   make(map[string]HandlerFunc),
		conns:      make(map[*peerConn]struct{}),
		identity:   rpc.Identity{Nick: "tester", User: "tester", Host: "stub"},
		workspaces: make(map[string]*rpc.WorkspaceInfo),
		seatInfos:  make(map[string]*rpc.SeatInfo),
	}
	p.installDefaults()
	return p
}

func (p *Peer) WithLog(log *slog.Logger) *Peer {
	p.log = log.With(slog.String("peer", "stub"))
	return p
}

// SetIdentity changes what whoami echoes back.
func (p *Peer) SetIdentity(id rpc.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = id
}

// Handle overrides the handler for one method.
func (p *Peer) Handle(method string, fn HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = fn
}

// FailDials makes subsequent dials fail with err; pass nil to heal.
func (p *Peer) FailDials(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialErr = err
}

// Dials reports how many dial attempts reached the peer (failed ones included).
func (p *Peer) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// Dialer returns a dialer producing transports wired to this peer.
func (p *Peer) Dialer() rpc.Dialer {
	return rpc.DialerFunc(func(ctx context.Context) (rpc.Transport, error) {
		p.mu.Lock()
		p.dials++
		if p.dialErr != nil {
			err := p.dialErr
			p.mu.Unlock()
			return nil, err
		}
		p.mu.Unlock()

		rpcClient, rpcServer := net.Pipe()
		evClient, evServer := net.Pipe()
		pc := &peerConn{p: p, rpc: rpcServer, events: evServer}

		p.mu.Lock()
		p.conns[pc] = struct{}{}
		p.mu.Unlock()

		go pc.serve()
		return rpc.NewStreamTransport(rpc.Channels{RPC: rpcClient, Events: evClient}, nil), nil
	})
}

// PushEvent broadcasts one event to every live connection.
func (p *Peer) PushEvent(method string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := rpc.Envelope{Method: method, Data: data}

	p.mu.Lock()
	conns := make([]*peerConn, 0, len(p.conns))
	for pc := range p.conns {
		conns = append(conns, pc)
	}
	p.mu.Unlock()

	for _, pc := range conns {
		pc.pushEvent(env)
	}
	return nil
}

// Sever drops every live connection; clients observe a transport failure.
func (p *Peer) Sever() {
	p.mu.Lock()
	conns := make([]*peerConn, 0, len(p.conns))
	for pc := range p.conns {
		conns = append(conns, pc)
	}
	p.mu.Unlock()

	for _, pc := range conns {
		pc.close()
	}
}

// Live reports the number of live connections.
func (p *Peer) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *Peer) Close() { p.Sever() }

func (p *Peer) lookup(method string) (HandlerFunc, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn, ok := p.handlers[method]
	return fn, ok
}

func (p *Peer) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// --- default call surface ---

func (p *Peer) installDefaults() {
	p.handlers[rpc.MethodHello] = func(_ string, data json.RawMessage) (any, string, error) {
		var args rpc.HelloArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		if args.Protocol != rpc.ProtocolVersion {
			return nil, "", fmt.Errorf("unsupported protocol %d", args.Protocol)
		}
		p.mu.Lock()
		p.sessions++
		n := p.sessions
		p.mu.Unlock()
		return rpc.HelloInfo{Protocol: rpc.ProtocolVersion, Session: fmt.Sprintf("sess-%d", n)}, "", nil
	}

	p.handlers[rpc.MethodWhoami] = func(string, json.RawMessage) (any, string, error) {
		p.mu.Lock()
		id := p.identity
		p.mu.Unlock()
		return id, "", nil
	}

	p.handlers[rpc.MethodWorkspaceList] = func(string, json.RawMessage) (any, string, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		res := rpc.WorkspaceListResult{}
		for _, ws := range p.workspaces {
			res.Workspaces = append(res.Workspaces, *ws)
		}
		return res, "", nil
	}

	p.handlers[rpc.MethodWorkspaceCreate] = func(_ string, data json.RawMessage) (any, string, error) {
		var args rpc.CreateWorkspaceArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.workspaces[args.Name]; ok {
			return nil, "", fmt.Errorf("workspace %q exists", args.Name)
		}
		ws := &rpc.WorkspaceInfo{ID: fmt.Sprintf("ws-%d", len(p.workspaces)+1), Name: args.Name}
		p.workspaces[args.Name] = ws
		return *ws, "", nil
	}

	p.handlers[rpc.MethodWorkspaceJoin] = func(_ string, data json.RawMessage) (any, string, error) {
		var args rpc.JoinWorkspaceArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.workspaces[args.Workspace]; !ok {
			p.workspaces[args.Workspace] = &rpc.WorkspaceInfo{
				ID:   fmt.Sprintf("ws-%d", len(p.workspaces)+1),
				Name: args.Workspace,
			}
		}
		p.workspaces[args.Workspace].Seats++
		p.seats++
		capID := fmt.Sprintf("seat-%d", p.seats)
		info := &rpc.SeatInfo{
			ID:        capID,
			Nick:      p.identity.Nick,
			Instance:  args.Instance,
			Workspace: args.Workspace,
			Status:    "active",
		}
		p.seatInfos[capID] = info
		return *info, capID, nil
	}

	p.handlers[rpc.MethodContentPush] = func(_ string, data json.RawMessage) (any, string, error) {
		var args rpc.PushContentArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		return rpc.SeqResult{Seq: p.nextSeq()}, "", nil
	}

	p.handlers[rpc.MethodOpsApply] = func(_ string, data json.RawMessage) (any, string, error) {
		var args rpc.ApplyOpsArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		return rpc.SeqResult{Seq: p.nextSeq()}, "", nil
	}

	p.handlers[rpc.MethodDocumentState] = func(_ string, data json.RawMessage) (any, string, error) {
		var args rpc.DocumentStateArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		p.mu.Lock()
		v := p.seq
		p.mu.Unlock()
		return rpc.DocumentState{DocumentID: args.Document, Version: v}, "", nil
	}

	p.handlers[rpc.MethodToolExecute] = func(_ string, data json.RawMessage) (any, string, error) {
		var args rpc.ExecuteToolArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		return rpc.ToolResult{Ok: true, Output: args.Tool + ":" + args.Params}, "", nil
	}

	p.handlers[rpc.MethodSeatInfo] = func(target string, _ json.RawMessage) (any, string, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		info, ok := p.seatInfos[target]
		if !ok {
			return nil, "", fmt.Errorf("no such seat %q", target)
		}
		return *info, "", nil
	}

	p.handlers[rpc.MethodSeatStatus] = func(target string, data json.RawMessage) (any, string, error) {
		var args rpc.SetSeatStatusArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, "", err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		info, ok := p.seatInfos[target]
		if !ok {
			return nil, "", fmt.Errorf("no such seat %q", target)
		}
		info.Status = args.Status
		return struct{}{}, "", nil
	}

	p.handlers[rpc.MethodSeatLeave] = func(target string, _ json.RawMessage) (any, string, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		info, ok := p.seatInfos[target]
		if !ok {
			return nil, "", fmt.Errorf("no such seat %q", target)
		}
		delete(p.seatInfos, target)
		if ws, ok := p.workspaces[info.Workspace]; ok && ws.Seats > 0 {
			ws.Seats--
		}
		return struct{}{}, "", nil
	}
}

// --- one server-side connection ---

type peerConn struct {
	p      *Peer
	rpc    net.Conn
	events net.Conn

	writeMu sync.Mutex
	evMu    sync.Mutex
	once    sync.Once
}

func (pc *peerConn) serve() {
	defer pc.close()
	for {
		var env rpc.Envelope
		if err := rpc.ReadFrame(pc.rpc, &env); err != nil {
			return
		}
		// Calls run concurrently, like a real server.
		go pc.handle(env)
	}
}

func (pc *peerConn) handle(env rpc.Envelope) {
	rf := responseFrame{ID: env.ID}

	fn, ok := pc.p.lookup(env.Method)
	if !ok {
		rf.Err = fmt.Sprintf("unknown method %q", env.Method)
	} else if out, capID, err := fn(env.Target, env.Data); err != nil {
		rf.Err = err.Error()
	} else {
		data, merr := json.Marshal(out)
		if merr != nil {
			rf.Err = merr.Error()
		} else {
			rf.Data = data
			rf.Cap = capID
		}
	}

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if err := rpc.WriteFrame(pc.rpc, rf); err != nil {
		pc.p.log.Debug("reply write failed", slog.Any("error", err))
	}
}

func (pc *peerConn) pushEvent(env rpc.Envelope) {
	pc.evMu.Lock()
	defer pc.evMu.Unlock()
	if err := rpc.WriteFrame(pc.events, env); err != nil {
		pc.p.log.Debug("event write failed", slog.Any("error", err))
	}
}

func (pc *peerConn) close() {
	pc.once.Do(func() {
		_ = pc.rpc.Close()
		_ = pc.events.Close()
		pc.p.mu.Lock()
		delete(pc.p.conns, pc)
		pc.p.mu.Unlock()
	})
}
