package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docsync-server/collab"

	"github.com/gorilla/websocket"
)

func startRawServer(t *testing.T) (*collab.Hub, string) {
	t.Helper()
	hub := collab.NewHub()
	server := httptest.NewServer(HandleRaw(hub.Gateway, NewOriginPolicy(nil), 16))
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f outboundFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var f outboundFrame
	if err := conn.ReadJSON(&f); err == nil {
		t.Fatalf("expected no frame, got %#v", f)
	}
}

func TestRawEditReachesPeerOnly(t *testing.T) {
	hub, url := startRawServer(t)
	a := dial(t, url)
	b := dial(t, url)

	send(t, a, collab.EventJoinDocument, "doc1")
	send(t, b, collab.EventJoinDocument, "doc1")
	waitFor(t, "both members joined", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 2 })

	send(t, a, collab.EventEditDocument, map[string]any{"docId": "doc1", "content": "hello"})

	f := readFrame(t, b)
	if f.Event != collab.EventDocumentUpdated || f.Data != "hello" {
		t.Fatalf("unexpected frame: %#v", f)
	}
	expectSilence(t, a)
}

func TestRawPreservesSenderOrder(t *testing.T) {
	hub, url := startRawServer(t)
	a := dial(t, url)
	b := dial(t, url)
	send(t, a, collab.EventJoinDocument, "doc1")
	send(t, b, collab.EventJoinDocument, "doc1")
	waitFor(t, "both members joined", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 2 })

	want := []string{"a", "ab", "abc", "abcd"}
	for _, content := range want {
		send(t, a, collab.EventEditDocument, map[string]any{"docId": "doc1", "content": content})
	}
	for _, content := range want {
		if f := readFrame(t, b); f.Data != content {
			t.Fatalf("got %v, want %v", f.Data, content)
		}
	}
}

func TestRawLifecycleReachesUnjoinedClients(t *testing.T) {
	hub, url := startRawServer(t)
	a := dial(t, url)
	waitFor(t, "registration", func() bool { return hub.Registry.Len() == 1 })

	hub.Notifier.NotifyCreated(map[string]any{"id": "f1"})

	f := readFrame(t, a)
	if f.Event != collab.EventFileCreated {
		t.Fatalf("unexpected frame: %#v", f)
	}
	data, ok := f.Data.(map[string]any)
	if !ok || data["id"] != "f1" {
		t.Fatalf("unexpected payload: %#v", f.Data)
	}
}

func TestRawDisconnectReleasesMembership(t *testing.T) {
	hub, url := startRawServer(t)
	a := dial(t, url)
	b := dial(t, url)
	send(t, a, collab.EventJoinDocument, "doc1")
	send(t, b, collab.EventJoinDocument, "doc1")
	waitFor(t, "both members joined", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 2 })

	a.Close()
	waitFor(t, "membership release", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 1 })
	waitFor(t, "registry release", func() bool { return hub.Registry.Len() == 1 })

	send(t, b, collab.EventEditDocument, map[string]any{"docId": "doc1", "content": "alone"})
	expectSilence(t, b)
}

func TestRawMalformedFramesKeepConnection(t *testing.T) {
	hub, url := startRawServer(t)
	a := dial(t, url)
	b := dial(t, url)

	if err := a.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, a, collab.EventJoinDocument, nil)
	send(t, a, collab.EventJoinDocument, "doc1")
	send(t, b, collab.EventJoinDocument, "doc1")
	waitFor(t, "both members joined", func() bool { return len(hub.Rooms.MembersOf("doc1")) == 2 })

	send(t, b, collab.EventEditDocument, map[string]any{"docId": "doc1", "content": "ok"})
	if f := readFrame(t, a); f.Data != "ok" {
		t.Fatalf("unexpected frame: %#v", f)
	}
}

func TestDecodeFrame(t *testing.T) {
	event, args, err := decodeFrame([]byte(`{"event":"edit-document","data":{"docId":"d","content":"c"}}`))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if event != collab.EventEditDocument || len(args) != 1 {
		t.Fatalf("unexpected decode: %s %#v", event, args)
	}

	if _, args, err := decodeFrame([]byte(`{"event":"join-document"}`)); err != nil || args != nil {
		t.Fatalf("expected no args, got %#v, %v", args, err)
	}

	if _, _, err := decodeFrame([]byte(`{"data":"x"}`)); err == nil {
		t.Fatal("expected error for frame without event")
	}
}
