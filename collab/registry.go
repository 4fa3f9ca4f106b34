package collab

import (
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Registry tracks every live connection.
type Registry struct {
	mu       sync.RWMutex
	conns    map[ConnID]*Connection
	release  []func(*Connection)
	observer Observer
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[ConnID]*Connection),
		observer: nopObserver{},
	}
}

// SetObserver installs an observer for connection open/close events.
func (r *Registry) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// OnRelease registers a hook run once for every unregistered connection.
// Hooks run with the connection's lock held and must not call back into the
// registry.
func (r *Registry) OnRelease(fn func(*Connection)) {
	r.mu.Lock()
	r.release = append(r.release, fn)
	r.mu.Unlock()
}

// Register adds a connection in the connected state and returns its id.
func (r *Registry) Register(out Outbound) ConnID {
	c := &Connection{
		id:    ConnID(ulid.Make().String()),
		out:   out,
		state: StateConnected,
	}

	r.mu.Lock()
	r.conns[c.id] = c
	observer := r.observer
	r.mu.Unlock()

	observer.ConnectionOpened()
	logrus.WithField("conn_id", c.id).Debug("Connection registered")
	return c.id
}

// Unregister removes the connection and releases its room membership. It
// reports whether this call performed the removal; unknown or already
// removed ids are a no-op.
func (r *Registry) Unregister(id ConnID) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	hooks := r.release
	observer := r.observer
	r.mu.Unlock()

	if !ok {
		return false
	}

	c.mu.Lock()
	for _, hook := range hooks {
		hook(c)
	}
	c.room = ""
	c.state = StateClosed
	c.mu.Unlock()

	observer.ConnectionClosed()
	logrus.WithField("conn_id", id).Debug("Connection unregistered")
	return true
}

func (r *Registry) IsAlive(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Lookup(id ConnID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the connections registered at call time.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
