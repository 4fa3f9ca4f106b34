package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"docsync-server/collab"
	"docsync-server/core"
)

type staticLive []collab.RoomStats

func (s staticLive) Rooms() []collab.RoomStats { return s }

type mockRegistry struct {
	rooms []core.Room
	err   error
}

func (m *mockRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	return m.rooms, m.err
}

func (m *mockRegistry) TouchRoom(ctx context.Context, roomID string) error { return nil }

func list(t *testing.T, live LiveRooms, registry core.RoomRegistry) []RoomSummary {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleList(live, registry)(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	var rooms []RoomSummary
	if err := json.NewDecoder(rec.Body).Decode(&rooms); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return rooms
}

func TestHandleList_MergesAndSorts(t *testing.T) {
	live := staticLive{{ID: "busy", Members: 3}, {ID: "quiet", Members: 1}}
	registry := &mockRegistry{rooms: []core.Room{
		{ID: "quiet", LastActive: 200},
		{ID: "old", LastActive: 100},
		{ID: "older", LastActive: 50},
	}}

	rooms := list(t, live, registry)

	want := []string{"busy", "quiet", "old", "older"}
	if len(rooms) != len(want) {
		t.Fatalf("got %d rooms, want %d: %+v", len(rooms), len(want), rooms)
	}
	for i, id := range want {
		if rooms[i].ID != id {
			t.Errorf("rooms[%d] = %s, want %s", i, rooms[i].ID, id)
		}
	}
	if rooms[1].LastActive == nil || *rooms[1].LastActive != 200 {
		t.Errorf("expected lastActive for quiet room, got %+v", rooms[1])
	}
	if rooms[0].LastActive != nil {
		t.Errorf("unexpected lastActive for busy room: %d", *rooms[0].LastActive)
	}
}

func TestHandleList_RegistryErrorFallsBackToLive(t *testing.T) {
	live := staticLive{{ID: "doc1", Members: 2}}

	rooms := list(t, live, &mockRegistry{err: errors.New("unavailable")})
	if len(rooms) != 1 || rooms[0].Users != 2 {
		t.Errorf("unexpected rooms: %+v", rooms)
	}
}

func TestHandleList_NilRegistry(t *testing.T) {
	rooms := list(t, staticLive{}, nil)
	if len(rooms) != 0 {
		t.Errorf("expected no rooms, got %+v", rooms)
	}
}
