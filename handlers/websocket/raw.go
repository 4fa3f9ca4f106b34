package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"docsync-server/collab"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 5000000
)

// Frame is the JSON envelope used by the raw WebSocket transport in both
// directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// HandleRaw serves the event protocol as JSON frames over a plain WebSocket,
// for clients that do not speak socket.io.
func HandleRaw(gateway *collab.Gateway, origins OriginPolicy, outboxSize int) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     origins.CheckRequest,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("WebSocket upgrade failed")
			return
		}
		serveRaw(gateway, conn, outboxSize)
	}
}

func serveRaw(gateway *collab.Gateway, conn *websocket.Conn, outboxSize int) {
	outbox := collab.NewOutbox(outboxSize, func(event string, payload any) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return conn.WriteJSON(outboundFrame{Event: event, Data: payload})
	})
	session := gateway.Accept(outbox)
	log := logrus.WithFields(logrus.Fields{
		"conn_id":   session.ID(),
		"remote":    conn.RemoteAddr().String(),
		"transport": "websocket",
	})
	log.Info("WebSocket connected")

	reason := "client closed"
	defer func() {
		outbox.Close()
		session.Close(reason)
		_ = conn.Close()
	}()

	go keepAlive(conn, outbox)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("WebSocket closed unexpectedly")
				reason = "transport error"
			}
			return
		}

		event, args, err := decodeFrame(msg)
		if err != nil {
			log.WithError(err).Warn("Dropped undecodable frame")
			continue
		}
		if err := session.Dispatch(event, args...); err != nil {
			entry := log.WithError(err).WithField("event", event)
			if errors.Is(err, collab.ErrUnknownEvent) {
				entry.Debug("Ignoring unknown event")
			} else {
				entry.Warn("Dropped malformed request")
			}
		}
	}
}

// keepAlive pings the peer until the outbox closes. A failed ping closes the
// connection, which unblocks the reader.
func keepAlive(conn *websocket.Conn, outbox *collab.Outbox) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-outbox.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func decodeFrame(msg []byte) (string, []any, error) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return "", nil, err
	}
	if f.Event == "" {
		return "", nil, collab.ErrUnknownEvent
	}
	if len(f.Data) == 0 {
		return f.Event, nil, nil
	}

	var data any
	if err := json.Unmarshal(f.Data, &data); err != nil {
		return "", nil, err
	}
	return f.Event, []any{data}, nil
}
