package websocket

import (
	"errors"
	"sync"

	"docsync-server/collab"

	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// inboxSize bounds the events buffered between the socket.io reader and the
// per-connection dispatch loop. A full inbox blocks the reader.
const inboxSize = 64

type ackInvoker func(payload map[string]any)

// SetupSocketIO creates the socket.io server for the /socket.io/ endpoint.
func SetupSocketIO(gateway *collab.Gateway, origins OriginPolicy, outboxSize int) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(origins.SocketIOCors())
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		attachSocket(gateway, socket, outboxSize)
	})

	return srv
}

// attachSocket bridges one socket.io socket to a gateway session. Events are
// captured with OnAny, which socket.io invokes in packet order, and handled
// by a single goroutine so a sender's edits keep their order.
func attachSocket(gateway *collab.Gateway, socket *socketio.Socket, outboxSize int) {
	outbox := collab.NewOutbox(outboxSize, func(event string, payload any) error {
		return socket.Emit(event, payload)
	})
	session := gateway.Accept(outbox)
	log := logrus.WithFields(logrus.Fields{
		"conn_id":   session.ID(),
		"socket_id": socket.Id(),
		"transport": "socket.io",
	})
	log.Info("Socket connected")

	inbox := make(chan []any, inboxSize)
	done := make(chan struct{})
	var once sync.Once
	closeSession := func(reason string) {
		once.Do(func() {
			close(done)
			outbox.Close()
			session.Close(reason)
		})
	}

	socket.OnAny(func(args ...any) {
		select {
		case inbox <- args:
		case <-done:
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnect", func(reasons ...any) {
		reason := "disconnect"
		if len(reasons) > 0 {
			if r, ok := reasons[0].(string); ok {
				reason = r
			}
		}
		closeSession(reason)
	})

	go func() {
		for {
			select {
			case <-done:
				return
			case args := <-inbox:
				handleEvent(session, log, args)
			}
		}
	}()

	go func() {
		select {
		case <-done:
		case <-outbox.Done():
			log.Warn("Outbound stream failed, disconnecting socket")
			socket.Disconnect(true)
			closeSession("write error")
		}
	}()
}

func handleEvent(session *collab.Session, log *logrus.Entry, datas []any) {
	if len(datas) == 0 {
		return
	}
	event, ok := datas[0].(string)
	if !ok {
		return
	}
	ack, args := extractAck(datas[1:])

	err := session.Dispatch(event, args...)
	if err != nil {
		entry := log.WithError(err).WithField("event", event)
		if errors.Is(err, collab.ErrUnknownEvent) {
			entry.Debug("Ignoring unknown event")
		} else {
			entry.Warn("Dropped malformed request")
		}
	}

	if ack != nil {
		ack(ackPayload(session, event, err))
	}
}

func ackPayload(session *collab.Session, event string, err error) map[string]any {
	if err != nil {
		return map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	response := map[string]any{"status": "ok"}
	if event == collab.EventJoinDocument {
		doc, members := session.Room()
		response["documentId"] = doc
		response["members"] = members
	}
	return response
}

// extractAck splits off a trailing acknowledgement callback, if the client
// sent one.
func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	fn, ok := datas[len(datas)-1].(socketio.Ack)
	if !ok || fn == nil {
		return nil, datas
	}

	return func(payload map[string]any) {
		fn([]any{payload}, nil)
	}, datas[:len(datas)-1]
}
