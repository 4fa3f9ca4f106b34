package collab

// Hub bundles the synchronization components wired to one registry.
type Hub struct {
	Registry    *Registry
	Rooms       *RoomManager
	Broadcaster *Broadcaster
	Notifier    *Notifier
	Gateway     *Gateway
}

func NewHub() *Hub {
	registry := NewRegistry()
	rooms := NewRoomManager(registry)
	broadcaster := NewBroadcaster(registry, rooms)
	return &Hub{
		Registry:    registry,
		Rooms:       rooms,
		Broadcaster: broadcaster,
		Notifier:    NewNotifier(registry),
		Gateway:     NewGateway(registry, rooms, broadcaster),
	}
}

// SetObserver installs o on every component.
func (h *Hub) SetObserver(o Observer) {
	h.Registry.SetObserver(o)
	h.Rooms.SetObserver(o)
	h.Broadcaster.SetObserver(o)
	h.Notifier.SetObserver(o)
}

// SetMirror installs m on the broadcaster and the notifier.
func (h *Hub) SetMirror(m Mirror) {
	h.Broadcaster.SetMirror(m)
	h.Notifier.SetMirror(m)
}
