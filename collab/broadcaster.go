package collab

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Mirror receives events fanned out by this instance so they can be
// forwarded to other instances.
type Mirror interface {
	MirrorEdit(documentID, content string)
	MirrorLifecycle(event string, payload any)
}

// Delivery reports the outcome of one fan-out.
type Delivery struct {
	Recipients int
	Delivered  int
	Failed     []ConnID
}

// Broadcaster propagates edits to the other members of a document's room.
// It does not validate, transform or persist content.
type Broadcaster struct {
	registry *Registry
	rooms    *RoomManager
	mirror   Mirror
	observer Observer
}

func NewBroadcaster(registry *Registry, rooms *RoomManager) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		rooms:    rooms,
		observer: nopObserver{},
	}
}

// SetMirror must be called before the broadcaster is shared.
func (b *Broadcaster) SetMirror(m Mirror) { b.mirror = m }

// SetObserver must be called before the broadcaster is shared.
func (b *Broadcaster) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	b.observer = o
}

// BroadcastEdit delivers content to every member of documentID except sender.
func (b *Broadcaster) BroadcastEdit(sender ConnID, documentID, content string) Delivery {
	d := b.fanout(sender, documentID, content)
	if b.mirror != nil {
		b.mirror.MirrorEdit(documentID, content)
	}
	return d
}

// DeliverRemote fans out an edit that originated on another instance.
func (b *Broadcaster) DeliverRemote(documentID, content string) Delivery {
	return b.fanout("", documentID, content)
}

func (b *Broadcaster) fanout(sender ConnID, documentID, content string) Delivery {
	var d Delivery
	for id, out := range b.rooms.recipients(documentID) {
		if id == sender {
			continue
		}
		d.Recipients++
		if err := out.Deliver(EventDocumentUpdated, content); err != nil {
			d.Failed = append(d.Failed, id)
			deliveryFailed(b.registry, b.observer, id, EventDocumentUpdated, err)
			continue
		}
		d.Delivered++
	}

	b.observer.Delivered(EventDocumentUpdated, d.Delivered)
	logrus.WithFields(logrus.Fields{
		"conn_id":     sender,
		"document_id": documentID,
		"recipients":  d.Recipients,
		"failed":      len(d.Failed),
	}).Debug("Edit broadcast")
	return d
}

// deliveryFailed logs a per-recipient failure and prunes recipients whose
// connection is gone.
func deliveryFailed(registry *Registry, observer Observer, id ConnID, event string, err error) {
	observer.DeliveryFailed(event, err)
	logrus.WithFields(logrus.Fields{
		"conn_id": id,
		"event":   event,
		"error":   err,
	}).Warn("Failed to deliver event")

	if errors.Is(err, ErrConnectionClosed) {
		registry.Unregister(id)
	}
}
