package collab

import (
	"context"
	"sync"
	"time"

	"docsync-server/core"

	"github.com/sirupsen/logrus"
)

const (
	activityTimeout = 2 * time.Second
	// maxPendingRooms bounds the rooms waiting to be written. Touches for
	// new rooms beyond it are dropped.
	maxPendingRooms = 1024
)

// ActivityRecorder writes room activity to a RoomRegistry from a single
// goroutine. Touch never blocks: touches for the same room are merged until
// the writer picks them up.
type ActivityRecorder struct {
	registry core.RoomRegistry

	mu      sync.Mutex
	pending map[string]struct{}

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	log       *logrus.Entry
}

func NewActivityRecorder(registry core.RoomRegistry) *ActivityRecorder {
	a := &ActivityRecorder{
		registry: registry,
		pending:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		log:      logrus.WithField("component", "activity"),
	}
	go a.run()
	return a
}

// Touch marks documentID as active.
func (a *ActivityRecorder) Touch(documentID string) {
	a.mu.Lock()
	_, queued := a.pending[documentID]
	if !queued && len(a.pending) >= maxPendingRooms {
		a.mu.Unlock()
		a.log.WithField("document_id", documentID).Warn("Activity queue full, dropping touch")
		return
	}
	a.pending[documentID] = struct{}{}
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Close stops the writer and waits for an in-flight write to finish.
// Pending touches are dropped.
func (a *ActivityRecorder) Close() {
	a.closeOnce.Do(func() { close(a.done) })
	<-a.stopped
}

func (a *ActivityRecorder) run() {
	defer close(a.stopped)
	for {
		select {
		case <-a.done:
			return
		case <-a.wake:
		}

		a.mu.Lock()
		batch := a.pending
		a.pending = make(map[string]struct{})
		a.mu.Unlock()

		for documentID := range batch {
			select {
			case <-a.done:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
			err := a.registry.TouchRoom(ctx, documentID)
			cancel()
			if err != nil {
				a.log.WithError(err).WithField("document_id", documentID).Warn("Failed to record room activity")
			}
		}
	}
}
