package collab

import "github.com/sirupsen/logrus"

// Notifier fans file lifecycle events out to every registered connection,
// regardless of room membership.
type Notifier struct {
	registry *Registry
	mirror   Mirror
	observer Observer
}

func NewNotifier(registry *Registry) *Notifier {
	return &Notifier{registry: registry, observer: nopObserver{}}
}

// SetMirror must be called before the notifier is shared.
func (n *Notifier) SetMirror(m Mirror) { n.mirror = m }

// SetObserver must be called before the notifier is shared.
func (n *Notifier) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	n.observer = o
}

// NotifyCreated announces a new file and returns the number of connections
// it was delivered to.
func (n *Notifier) NotifyCreated(file any) int {
	return n.publish(EventFileCreated, file)
}

// NotifyDeleted announces a removed file.
func (n *Notifier) NotifyDeleted(info any) int {
	return n.publish(EventFileDeleted, info)
}

// DeliverRemote fans out a lifecycle event that originated on another
// instance without mirroring it again.
func (n *Notifier) DeliverRemote(event string, payload any) int {
	return n.fanout(event, payload)
}

func (n *Notifier) publish(event string, payload any) int {
	delivered := n.fanout(event, payload)
	if n.mirror != nil {
		n.mirror.MirrorLifecycle(event, payload)
	}
	return delivered
}

func (n *Notifier) fanout(event string, payload any) int {
	delivered := 0
	for _, c := range n.registry.Snapshot() {
		if err := c.out.Deliver(event, payload); err != nil {
			deliveryFailed(n.registry, n.observer, c.id, event, err)
			continue
		}
		delivered++
	}

	n.observer.Delivered(event, delivered)
	logrus.WithFields(logrus.Fields{
		"event":     event,
		"delivered": delivered,
	}).Debug("Lifecycle event broadcast")
	return delivered
}
