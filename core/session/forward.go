package session

import (
	"encoding/json"

	"github.com/codewandler/collab-go/core/rpc"
)

// attachForwarder starts the event pump for a freshly established
// connection. It runs until the connection or the session ends; each
// connection gets its own forwarder, so a reconnect never interleaves
// events from two transports.
func (s *Session) attachForwarder(conn *rpc.Conn) {
	go func() {
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-conn.Done():
				return
			case env, ok := <-conn.Events():
				if !ok {
					return
				}
				ev, err := decodeEvent(env)
				if err != nil {
					s.log.Warn("dropping malformed event",
						"method", env.Method, "error", err)
					continue
				}
				s.events.Publish(ev)
				s.m.EventPublished(env.Method)
			}
		}
	}()
}

// decodeEvent maps a wire event envelope onto its typed variant.
func decodeEvent(env rpc.Envelope) (ServerEvent, error) {
	switch env.Method {
	case rpc.EventCellInserted:
		var ev CellInserted
		return ev, json.Unmarshal(env.Data, &ev)
	case rpc.EventContentChanged:
		var ev ContentChanged
		return ev, json.Unmarshal(env.Data, &ev)
	case rpc.EventCellRemoved:
		var ev CellRemoved
		return ev, json.Unmarshal(env.Data, &ev)
	case rpc.EventCellStatusChanged:
		var ev CellStatusChanged
		return ev, json.Unmarshal(env.Data, &ev)
	case rpc.EventResourceUpdated:
		var ev ResourceUpdated
		return ev, json.Unmarshal(env.Data, &ev)
	case rpc.EventResourceListChanged:
		var ev ResourceListChanged
		return ev, json.Unmarshal(env.Data, &ev)
	default:
		return nil, &UnknownEventError{Method: env.Method}
	}
}

// UnknownEventError reports a server event the client does not understand.
// Unknown events are logged and dropped rather than terminating the stream.
type UnknownEventError struct {
	Method string
}

func (e *UnknownEventError) Error() string {
	return "session: unknown server event " + e.Method
}
