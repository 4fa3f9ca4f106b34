package collab

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultOutboxSize bounds the frames queued for one peer before deliveries
// start failing with ErrOutboxFull.
const DefaultOutboxSize = 256

// Sink writes one event to the underlying transport. It is only ever called
// from the outbox writer goroutine.
type Sink func(event string, payload any) error

type frame struct {
	event   string
	payload any
}

// Outbox is a bounded FIFO in front of a connection's transport. A single
// writer goroutine drains it, so frames reach the peer in Deliver order.
type Outbox struct {
	frames    chan frame
	sink      Sink
	done      chan struct{}
	closeOnce sync.Once
	log       *logrus.Entry
}

func NewOutbox(size int, sink Sink) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &Outbox{
		frames: make(chan frame, size),
		sink:   sink,
		done:   make(chan struct{}),
		log:    logrus.WithField("component", "outbox"),
	}
	go o.run()
	return o
}

// Deliver queues an event without blocking.
func (o *Outbox) Deliver(event string, payload any) error {
	select {
	case <-o.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case o.frames <- frame{event: event, payload: payload}:
		return nil
	case <-o.done:
		return ErrConnectionClosed
	default:
		return ErrOutboxFull
	}
}

// Close stops the writer. Frames still queued are dropped.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Done is closed once the outbox stops accepting frames, either through
// Close or after a sink error.
func (o *Outbox) Done() <-chan struct{} { return o.done }

func (o *Outbox) run() {
	for {
		select {
		case <-o.done:
			return
		case f := <-o.frames:
			if err := o.sink(f.event, f.payload); err != nil {
				o.log.WithError(err).WithField("event", f.event).Warn("Failed to write frame, closing outbox")
				o.Close()
				return
			}
		}
	}
}
