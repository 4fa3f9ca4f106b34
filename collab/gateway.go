package collab

import (
	"fmt"
	"sync"

	"docsync-server/core"

	"github.com/sirupsen/logrus"
)

// Gateway turns accepted connections into sessions and dispatches their
// inbound events to the rooms and the edit broadcaster.
type Gateway struct {
	registry    *Registry
	rooms       *RoomManager
	broadcaster *Broadcaster
	activity    *ActivityRecorder
}

func NewGateway(registry *Registry, rooms *RoomManager, broadcaster *Broadcaster) *Gateway {
	return &Gateway{
		registry:    registry,
		rooms:       rooms,
		broadcaster: broadcaster,
	}
}

// SetActivity records room activity (joins and edits) in registry. Writes
// happen off the dispatch path. It must be called before sessions are
// accepted.
func (g *Gateway) SetActivity(registry core.RoomRegistry) {
	if g.activity != nil {
		g.activity.Close()
	}
	g.activity = NewActivityRecorder(registry)
}

// Close stops background activity recording.
func (g *Gateway) Close() {
	if g.activity != nil {
		g.activity.Close()
	}
}

func (g *Gateway) Rooms() *RoomManager { return g.rooms }

// Accept registers out and returns the session driving it.
func (g *Gateway) Accept(out Outbound) *Session {
	id := g.registry.Register(out)
	return &Session{
		gateway: g,
		id:      id,
		log:     logrus.WithField("conn_id", id),
	}
}

// Session is the server side of one connection. Dispatch must be called
// sequentially per session.
type Session struct {
	gateway   *Gateway
	id        ConnID
	closeOnce sync.Once
	log       *logrus.Entry
}

func (s *Session) ID() ConnID { return s.id }

func (s *Session) State() State {
	c, ok := s.gateway.registry.Lookup(s.id)
	if !ok {
		return StateClosed
	}
	return c.State()
}

// Room returns the joined document and its current member count.
func (s *Session) Room() (string, int) {
	doc, ok := s.gateway.rooms.RoomOf(s.id)
	if !ok {
		return "", 0
	}
	return doc, len(s.gateway.rooms.MembersOf(doc))
}

// Dispatch handles one inbound event. Returned errors describe a dropped
// request; the session stays usable.
func (s *Session) Dispatch(event string, args ...any) error {
	var arg any
	if len(args) > 0 {
		arg = args[0]
	}

	switch event {
	case EventJoinDocument:
		documentID, err := parseDocumentID(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", event, err)
		}
		return s.Join(documentID)
	case EventEditDocument:
		req, err := parseEditRequest(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", event, err)
		}
		return s.Edit(req)
	default:
		return fmt.Errorf("%s: %w", event, ErrUnknownEvent)
	}
}

// Join moves the session into documentID's room.
func (s *Session) Join(documentID string) error {
	if documentID == "" {
		return ErrMissingDocumentID
	}
	if !s.gateway.rooms.Join(s.id, documentID) {
		return ErrConnectionClosed
	}
	s.log.WithField("document_id", documentID).Info("Joined document")
	s.touch(documentID)
	return nil
}

// Edit relays req to the rest of the joined room. An edit sent before any
// join is ignored.
func (s *Session) Edit(req EditRequest) error {
	joined, ok := s.gateway.rooms.RoomOf(s.id)
	if !ok {
		s.log.WithField("document_id", req.DocumentID).Debug("Ignoring edit from unjoined connection")
		return nil
	}
	if req.DocumentID != "" && req.DocumentID != joined {
		return ErrDocumentMismatch
	}

	s.gateway.broadcaster.BroadcastEdit(s.id, joined, req.Content)
	s.touch(joined)
	return nil
}

// Close releases the session's registry entry and room membership. Only the
// first call has an effect.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.gateway.registry.Unregister(s.id)
		s.log.WithField("reason", reason).Info("Connection closed")
	})
}

func (s *Session) touch(documentID string) {
	if s.gateway.activity != nil {
		s.gateway.activity.Touch(documentID)
	}
}
