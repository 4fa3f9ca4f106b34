// Package relay mirrors locally originated events to other server instances
// over Redis pub/sub and delivers theirs to local clients.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"docsync-server/collab"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultChannel = "docsync:events"

	kindEdit      = "edit"
	kindLifecycle = "lifecycle"

	pendingSize    = 1024
	publishTimeout = 2 * time.Second
)

// Envelope is the message published on the relay channel.
type Envelope struct {
	Origin     string          `json:"origin"`
	Kind       string          `json:"kind"`
	DocumentID string          `json:"documentId,omitempty"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}

// EditSink delivers edits that originated on another instance.
type EditSink interface {
	DeliverRemote(documentID, content string) collab.Delivery
}

// LifecycleSink delivers lifecycle events that originated on another instance.
type LifecycleSink interface {
	DeliverRemote(event string, payload any) int
}

// Relay implements collab.Mirror. Publishing is asynchronous and ordered;
// when the pending queue is full new messages are dropped.
type Relay struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	edits      EditSink
	lifecycle  LifecycleSink

	pending   chan Envelope
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	log       *logrus.Entry
}

func New(rdb *redis.Client, channel string, edits EditSink, lifecycle LifecycleSink) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	id := uuid.New().String()
	return &Relay{
		rdb:        rdb,
		channel:    channel,
		instanceID: id,
		edits:      edits,
		lifecycle:  lifecycle,
		pending:    make(chan Envelope, pendingSize),
		log: logrus.WithFields(logrus.Fields{
			"instance_id": id,
			"channel":     channel,
		}),
	}
}

func (r *Relay) InstanceID() string { return r.instanceID }

// Start subscribes to the channel and starts the publish and receive loops.
// The subscription is confirmed before Start returns.
func (r *Relay) Start(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.pubsub = pubsub

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(2)
	go r.publishLoop(ctx)
	go r.receiveLoop(ctx, pubsub.Channel())

	r.log.Info("Relay subscribed")
	return nil
}

// Close stops both loops and drops unpublished messages.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.pubsub != nil {
			err = r.pubsub.Close()
		}
		r.wg.Wait()
	})
	return err
}

func (r *Relay) MirrorEdit(documentID, content string) {
	payload, _ := json.Marshal(content)
	r.enqueue(Envelope{
		Kind:       kindEdit,
		DocumentID: documentID,
		Event:      collab.EventDocumentUpdated,
		Payload:    payload,
	})
}

func (r *Relay) MirrorLifecycle(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.WithError(err).WithField("event", event).Warn("Cannot encode lifecycle payload")
		return
	}
	r.enqueue(Envelope{Kind: kindLifecycle, Event: event, Payload: data})
}

func (r *Relay) enqueue(env Envelope) {
	env.Origin = r.instanceID
	select {
	case r.pending <- env:
	default:
		r.log.WithField("event", env.Event).Warn("Relay queue full, dropping message")
	}
}

func (r *Relay) publishLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.pending:
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err = r.rdb.Publish(pctx, r.channel, data).Err()
			cancel()
			if err != nil {
				r.log.WithError(err).WithField("event", env.Event).Warn("Relay publish failed")
			}
		}
	}
}

func (r *Relay) receiveLoop(ctx context.Context, ch <-chan *redis.Message) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(raw string) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.log.WithError(err).Warn("Dropped undecodable relay message")
		return
	}
	if env.Origin == r.instanceID {
		return
	}

	log := r.log.WithFields(logrus.Fields{
		"origin": env.Origin,
		"event":  env.Event,
	})

	switch env.Kind {
	case kindEdit:
		var content string
		if err := json.Unmarshal(env.Payload, &content); err != nil || env.DocumentID == "" {
			log.Warn("Dropped malformed relayed edit")
			return
		}
		d := r.edits.DeliverRemote(env.DocumentID, content)
		log.WithField("recipients", d.Recipients).Debug("Delivered relayed edit")
	case kindLifecycle:
		var payload any
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.WithError(err).Warn("Dropped malformed relayed lifecycle event")
			return
		}
		n := r.lifecycle.DeliverRemote(env.Event, payload)
		log.WithField("recipients", n).Debug("Delivered relayed lifecycle event")
	default:
		log.WithField("kind", env.Kind).Debug("Ignoring unknown relay message kind")
	}
}
