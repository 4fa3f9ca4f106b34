// Package collab implements the real-time document synchronization core:
// connection registry, per-document rooms, edit fan-out and file lifecycle
// notifications. It is transport agnostic; handlers/websocket bridges it to
// socket.io and raw WebSocket clients.
package collab

import "sync"

// ConnID identifies one registered connection.
type ConnID string

// State is the lifecycle state of a connection as seen by the gateway.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbound is the write side of one connection. Deliver must not block on a
// slow peer; implementations return ErrOutboxFull or ErrConnectionClosed
// instead.
type Outbound interface {
	Deliver(event string, payload any) error
}

// Connection is a registry entry. Its mutex serializes room membership
// changes and unregistration of this connection.
type Connection struct {
	id  ConnID
	out Outbound

	mu    sync.Mutex
	state State
	room  string
}

func (c *Connection) ID() ConnID { return c.id }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the document the connection has joined, if any.
func (c *Connection) Room() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.room != ""
}
