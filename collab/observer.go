package collab

// Observer receives counters from the synchronization core. The metrics
// package provides the Prometheus implementation.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	RoomOpened()
	RoomClosed()
	Delivered(event string, n int)
	DeliveryFailed(event string, err error)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened() {}
func (nopObserver) ConnectionClosed() {}
func (nopObserver) RoomOpened() {}
func (nopObserver) RoomClosed() {}
func (nopObserver) Delivered(string, int) {}
func (nopObserver) DeliveryFailed(string, error) {}
