package collab

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

type room struct {
	id      string
	mu      sync.RWMutex
	members map[ConnID]Outbound
	// closed is set once the room emptied; joiners that still hold a
	// reference retry against the rooms map.
	closed bool
}

// RoomStats is a point-in-time view of one live room.
type RoomStats struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// RoomManager owns the per-document rooms. Each room has its own lock so
// joins, leaves and broadcasts on unrelated documents do not contend.
type RoomManager struct {
	registry *Registry
	observer Observer

	mu    sync.Mutex
	rooms map[string]*room
}

// NewRoomManager creates a manager bound to registry. Unregistering a
// connection from registry removes it from its room.
func NewRoomManager(registry *Registry) *RoomManager {
	m := &RoomManager{
		registry: registry,
		observer: nopObserver{},
		rooms:    make(map[string]*room),
	}
	registry.OnRelease(m.releaseLocked)
	return m
}

func (m *RoomManager) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// Join moves the connection into the room for documentID, leaving any room it
// currently occupies. It returns false for unknown or closed connections and
// for an empty document id.
func (m *RoomManager) Join(id ConnID, documentID string) bool {
	if documentID == "" {
		return false
	}

	c, ok := m.registry.Lookup(id)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}
	if c.room == documentID {
		return true
	}
	if c.room != "" {
		m.removeMember(c.room, id)
	}
	m.addMember(documentID, id, c.out)
	c.room = documentID
	c.state = StateJoined

	logrus.WithFields(logrus.Fields{
		"conn_id":     id,
		"document_id": documentID,
	}).Debug("Connection joined document")
	return true
}

// Leave removes the connection from its room, if any. Calling it on an
// unjoined or unknown connection is a no-op.
func (m *RoomManager) Leave(id ConnID) bool {
	c, ok := m.registry.Lookup(id)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == "" {
		return false
	}
	m.removeMember(c.room, id)
	c.room = ""
	if c.state == StateJoined {
		c.state = StateConnected
	}
	return true
}

// MembersOf returns a sorted snapshot of the room's member ids. A document
// with no room yields an empty slice.
func (m *RoomManager) MembersOf(documentID string) []ConnID {
	recipients := m.recipients(documentID)
	ids := make([]ConnID, 0, len(recipients))
	for id := range recipients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RoomOf is the reverse lookup of Join.
func (m *RoomManager) RoomOf(id ConnID) (string, bool) {
	c, ok := m.registry.Lookup(id)
	if !ok {
		return "", false
	}
	return c.Room()
}

// Rooms lists every live room ordered by document id.
func (m *RoomManager) Rooms() []RoomStats {
	m.mu.Lock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	stats := make([]RoomStats, 0, len(rooms))
	for _, r := range rooms {
		r.mu.RLock()
		n := len(r.members)
		r.mu.RUnlock()
		if n > 0 {
			stats = append(stats, RoomStats{ID: r.id, Members: n})
		}
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

func (m *RoomManager) recipients(documentID string) map[ConnID]Outbound {
	m.mu.Lock()
	r, ok := m.rooms[documentID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ConnID]Outbound, len(r.members))
	for id, ob := range r.members {
		out[id] = ob
	}
	return out
}

// releaseLocked is the registry release hook; c.mu is held by the caller.
func (m *RoomManager) releaseLocked(c *Connection) {
	if c.room == "" {
		return
	}
	m.removeMember(c.room, c.id)
	c.room = ""
}

func (m *RoomManager) addMember(documentID string, id ConnID, out Outbound) {
	for {
		m.mu.Lock()
		r, ok := m.rooms[documentID]
		if !ok {
			r = &room{id: documentID, members: make(map[ConnID]Outbound)}
			m.rooms[documentID] = r
			m.observer.RoomOpened()
		}
		m.mu.Unlock()

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		r.members[id] = out
		r.mu.Unlock()
		return
	}
}

func (m *RoomManager) removeMember(documentID string, id ConnID) {
	m.mu.Lock()
	r, ok := m.rooms[documentID]
	m.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	delete(r.members, id)
	empty := len(r.members) == 0
	if empty {
		r.closed = true
	}
	r.mu.Unlock()

	if !empty {
		return
	}

	m.mu.Lock()
	if m.rooms[documentID] == r {
		delete(m.rooms, documentID)
		m.observer.RoomClosed()
	}
	m.mu.Unlock()

	logrus.WithField("document_id", documentID).Debug("Room closed")
}
