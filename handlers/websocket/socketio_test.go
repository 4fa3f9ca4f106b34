package websocket

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docsync-server/collab"

	"github.com/gorilla/websocket"
)

func startSocketIOServer(t *testing.T) (*collab.Hub, string) {
	t.Helper()
	hub := collab.NewHub()
	ioo := SetupSocketIO(hub.Gateway, NewOriginPolicy(nil), 16)
	server := httptest.NewServer(ioo.ServeHandler(nil))
	t.Cleanup(server.Close)
	t.Cleanup(func() { ioo.Close(nil) })
	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

// dialSocketIO opens an engine.io websocket and connects to the default
// namespace.
func dialSocketIO(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn := dial(t, url)
	if p := readPacket(t, conn); !strings.HasPrefix(p, "0") {
		t.Fatalf("expected engine.io open packet, got %q", p)
	}
	writePacket(t, conn, "40")
	if p := readPacket(t, conn); !strings.HasPrefix(p, "40") {
		t.Fatalf("expected namespace connect, got %q", p)
	}
	return conn
}

func writePacket(t *testing.T, conn *websocket.Conn, packet string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(packet)); err != nil {
		t.Fatalf("write %q: %v", packet, err)
	}
}

// emit sends an event, with an acknowledgement id when ackID >= 0.
func emit(t *testing.T, conn *websocket.Conn, ackID int, event string, data any) {
	t.Helper()
	body, err := json.Marshal([]any{event, data})
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	prefix := "42"
	if ackID >= 0 {
		prefix = fmt.Sprintf("42%d", ackID)
	}
	writePacket(t, conn, prefix+string(body))
}

// readPacket returns the next packet that is not an engine.io ping.
func readPacket(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read packet: %v", err)
		}
		if string(msg) == "2" {
			writePacket(t, conn, "3")
			continue
		}
		return string(msg)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) []any {
	t.Helper()
	p := readPacket(t, conn)
	if !strings.HasPrefix(p, "42") {
		t.Fatalf("expected event packet, got %q", p)
	}
	var args []any
	if err := json.Unmarshal([]byte(p[2:]), &args); err != nil {
		t.Fatalf("decode %q: %v", p, err)
	}
	return args
}

func readAck(t *testing.T, conn *websocket.Conn, ackID int) map[string]any {
	t.Helper()
	p := readPacket(t, conn)
	prefix := fmt.Sprintf("43%d", ackID)
	if !strings.HasPrefix(p, prefix) {
		t.Fatalf("expected ack %d, got %q", ackID, p)
	}
	var args []map[string]any
	if err := json.Unmarshal([]byte(p[len(prefix):]), &args); err != nil || len(args) != 1 {
		t.Fatalf("decode ack %q: %v", p, err)
	}
	return args[0]
}

func expectNoPacket(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no packet, got %q", msg)
	}
}

func joinBoth(t *testing.T, hub *collab.Hub, a, b *websocket.Conn) {
	t.Helper()
	emit(t, a, 1, collab.EventJoinDocument, "doc1")
	if ack := readAck(t, a, 1); ack["status"] != "ok" || ack["documentId"] != "doc1" {
		t.Fatalf("unexpected join ack: %#v", ack)
	}
	emit(t, b, 1, collab.EventJoinDocument, "doc1")
	if ack := readAck(t, b, 1); ack["status"] != "ok" || ack["members"] != float64(2) {
		t.Fatalf("unexpected join ack: %#v", ack)
	}
	waitFor(t, "both members joined", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 2 })
}

func TestSocketIOEditReachesPeerOnly(t *testing.T) {
	hub, url := startSocketIOServer(t)
	a := dialSocketIO(t, url)
	b := dialSocketIO(t, url)
	joinBoth(t, hub, a, b)

	emit(t, a, -1, collab.EventEditDocument, map[string]any{"docId": "doc1", "content": "hello"})

	args := readEvent(t, b)
	if len(args) != 2 || args[0] != collab.EventDocumentUpdated || args[1] != "hello" {
		t.Fatalf("unexpected event: %#v", args)
	}
	expectNoPacket(t, a)
}

func TestSocketIOPreservesSenderOrder(t *testing.T) {
	hub, url := startSocketIOServer(t)
	a := dialSocketIO(t, url)
	b := dialSocketIO(t, url)
	joinBoth(t, hub, a, b)

	want := []string{"a", "ab", "abc", "abcd", "abcde"}
	for _, content := range want {
		emit(t, a, -1, collab.EventEditDocument, map[string]any{"docId": "doc1", "content": content})
	}
	for _, content := range want {
		if args := readEvent(t, b); len(args) != 2 || args[1] != content {
			t.Fatalf("got %#v, want %q", args, content)
		}
	}
}

func TestSocketIOMalformedJoinIsAcknowledgedWithError(t *testing.T) {
	_, url := startSocketIOServer(t)
	a := dialSocketIO(t, url)

	emit(t, a, 3, collab.EventJoinDocument, 42)
	if ack := readAck(t, a, 3); ack["status"] != "error" {
		t.Fatalf("unexpected ack: %#v", ack)
	}

	emit(t, a, 4, collab.EventJoinDocument, "doc1")
	if ack := readAck(t, a, 4); ack["status"] != "ok" {
		t.Fatalf("connection unusable after malformed join: %#v", ack)
	}
}

func TestSocketIOAbruptCloseReleasesMembership(t *testing.T) {
	hub, url := startSocketIOServer(t)
	a := dialSocketIO(t, url)
	b := dialSocketIO(t, url)

	emit(t, a, 1, collab.EventJoinDocument, "doc1")
	readAck(t, a, 1)
	aID := hub.Rooms.MembersOf("doc1")[0]
	emit(t, b, 1, collab.EventJoinDocument, "doc1")
	readAck(t, b, 1)
	waitFor(t, "both members joined", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 2 })

	// Drop the TCP connection without a close handshake.
	a.Close()

	waitFor(t, "membership release", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 1 })
	waitFor(t, "registry release", func() bool { return hub.Registry.Len() == 1 })
	if remaining := hub.Rooms.MembersOf("doc1"); remaining[0] == aID {
		t.Fatalf("closed connection %v still a member", aID)
	}

	emit(t, b, -1, collab.EventEditDocument, map[string]any{"docId": "doc1", "content": "alone"})
	expectNoPacket(t, b)
}
