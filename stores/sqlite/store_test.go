package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docsync-server/core"
)

func setupTestDB(t *testing.T) *store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s := NewStore(dbPath)
	defer s.Close()

	// Verify database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("NewStore() did not create database file")
	}
}

func TestNewStore_TablesCreated(t *testing.T) {
	s := setupTestDB(t)

	for _, table := range []string{"files", "users", "rooms"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestCreateFile_Success(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	file, err := s.CreateFile(ctx, &core.File{Name: "notes", Content: "hello", OwnerID: "u1"})
	if err != nil {
		t.Fatalf("CreateFile() failed: %v", err)
	}
	if len(file.ID) != 26 {
		t.Errorf("CreateFile() returned invalid ID length: got %d, want 26", len(file.ID))
	}

	got, err := s.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile() failed: %v", err)
	}
	if got.Name != "notes" || got.Content != "hello" || got.OwnerID != "u1" {
		t.Errorf("GetFile() = %+v", got)
	}
	if !got.CreatedAt.Equal(file.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, file.CreatedAt)
	}
}

func TestGetFile_NotFound(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.GetFile(context.Background(), "missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("GetFile() error = %v, want ErrNotFound", err)
	}
}

func TestListFiles(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	empty, err := s.ListFiles(ctx)
	if err != nil {
		t.Fatalf("ListFiles() failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListFiles() on empty db = %#v, want empty slice", empty)
	}

	for _, owner := range []string{"alice", "alice", "bob"} {
		if _, err := s.CreateFile(ctx, &core.File{Name: "f", OwnerID: owner}); err != nil {
			t.Fatalf("CreateFile() failed: %v", err)
		}
	}

	all, _ := s.ListFiles(ctx)
	if len(all) != 3 {
		t.Errorf("ListFiles() returned %d, want 3", len(all))
	}
	owned, _ := s.ListFilesByOwner(ctx, "alice")
	if len(owned) != 2 {
		t.Errorf("ListFilesByOwner() returned %d, want 2", len(owned))
	}
}

func TestUpdateFile_Partial(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	file, _ := s.CreateFile(ctx, &core.File{Name: "draft", Content: "v1", OwnerID: "u1"})

	name := "final"
	updated, err := s.UpdateFile(ctx, file.ID, core.FileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateFile() failed: %v", err)
	}
	if updated.Name != "final" || updated.Content != "v1" {
		t.Errorf("UpdateFile() = %+v", updated)
	}

	content := ""
	updated, err = s.UpdateFile(ctx, file.ID, core.FileUpdate{Content: &content})
	if err != nil {
		t.Fatalf("UpdateFile() failed: %v", err)
	}
	if updated.Name != "final" || updated.Content != "" {
		t.Errorf("UpdateFile() = %+v", updated)
	}

	if _, err := s.UpdateFile(ctx, "missing", core.FileUpdate{Name: &name}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateFile() on missing file error = %v", err)
	}
}

func TestDeleteFile(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	file, _ := s.CreateFile(ctx, &core.File{Name: "tmp", OwnerID: "u1"})

	deleted, err := s.DeleteFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("DeleteFile() failed: %v", err)
	}
	if deleted.ID != file.ID || deleted.OwnerID != "u1" {
		t.Errorf("DeleteFile() = %+v", deleted)
	}
	if _, err := s.DeleteFile(ctx, file.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteFile() error = %v", err)
	}
}

func TestSyncUser_Upsert(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	first, err := s.SyncUser(ctx, &core.User{Email: "a@example.com", Name: "A", FirebaseID: "fb1"})
	if err != nil {
		t.Fatalf("SyncUser() failed: %v", err)
	}
	second, err := s.SyncUser(ctx, &core.User{Email: "b@example.com", Name: "B", FirebaseID: "fb1"})
	if err != nil {
		t.Fatalf("SyncUser() failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("SyncUser() created a second user")
	}
	if second.Email != "b@example.com" || second.Name != "B" {
		t.Errorf("SyncUser() did not refresh profile: %+v", second)
	}

	users, _ := s.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("ListUsers() returned %d users, want 1", len(users))
	}
}

func TestCreateUser_DuplicateFirebaseID(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, &core.User{Email: "a@example.com", Name: "A", FirebaseID: "fb1"}); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if _, err := s.CreateUser(ctx, &core.User{Email: "a@example.com", Name: "A", FirebaseID: "fb1"}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("CreateUser() with duplicate firebase id: got %v, want ErrConflict", err)
	}
}

func TestRooms_TouchAndList(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if err := s.TouchRoom(ctx, ""); err == nil {
		t.Error("TouchRoom() accepted an empty id")
	}
	for _, id := range []string{"doc1", "doc2", "doc1"} {
		if err := s.TouchRoom(ctx, id); err != nil {
			t.Fatalf("TouchRoom(%s) failed: %v", id, err)
		}
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() failed: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("ListRooms() returned %d rooms, want 2", len(rooms))
	}
	if rooms[0].LastActive < rooms[1].LastActive {
		t.Error("ListRooms() not sorted by most recent activity")
	}
}
