package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docsync-server/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type store struct {
	mu    sync.RWMutex
	files map[string]core.File
	users map[string]core.User
	rooms map[string]int64
}

// NewStore returns a process-local store. Everything is lost on restart.
func NewStore() *store {
	return &store{
		files: make(map[string]core.File),
		users: make(map[string]core.User),
		rooms: make(map[string]int64),
	}
}

func (s *store) ListFiles(ctx context.Context) ([]*core.File, error) {
	return s.listFiles(func(core.File) bool { return true }), nil
}

func (s *store) ListFilesByOwner(ctx context.Context, ownerID string) ([]*core.File, error) {
	return s.listFiles(func(f core.File) bool { return f.OwnerID == ownerID }), nil
}

func (s *store) listFiles(keep func(core.File) bool) []*core.File {
	s.mu.RLock()
	files := make([]*core.File, 0, len(s.files))
	for _, f := range s.files {
		if keep(f) {
			f := f
			files = append(files, &f)
		}
	}
	s.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool {
		if files[i].UpdatedAt.Equal(files[j].UpdatedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].UpdatedAt.After(files[j].UpdatedAt)
	})
	return files
}

func (s *store) GetFile(ctx context.Context, id string) (*core.File, error) {
	log := logrus.WithField("file_id", id)

	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		log.Debug("File with specified ID not found")
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	return &f, nil
}

func (s *store) CreateFile(ctx context.Context, file *core.File) (*core.File, error) {
	now := time.Now().UTC()
	created := *file
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	s.mu.Lock()
	s.files[created.ID] = created
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"file_id":  created.ID,
		"owner_id": created.OwnerID,
	}).Info("File created successfully")
	return &created, nil
}

func (s *store) UpdateFile(ctx context.Context, id string, update core.FileUpdate) (*core.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	if update.Name != nil {
		f.Name = *update.Name
	}
	if update.Content != nil {
		f.Content = *update.Content
	}
	f.UpdatedAt = time.Now().UTC()
	s.files[id] = f

	logrus.WithField("file_id", id).Info("File updated successfully")
	return &f, nil
}

func (s *store) DeleteFile(ctx context.Context, id string) (*core.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	delete(s.files, id)

	logrus.WithField("file_id", id).Info("File deleted successfully")
	return &f, nil
}

func (s *store) ListUsers(ctx context.Context) ([]*core.User, error) {
	s.mu.RLock()
	users := make([]*core.User, 0, len(s.users))
	for _, u := range s.users {
		u := u
		users = append(users, &u)
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *store) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	for _, existing := range s.users {
		if existing.FirebaseID == created.FirebaseID {
			s.mu.Unlock()
			return nil, fmt.Errorf("user with firebase id %s: %w", created.FirebaseID, core.ErrConflict)
		}
	}
	s.users[created.ID] = created
	s.mu.Unlock()

	logrus.WithField("user_id", created.ID).Info("User created successfully")
	return &created, nil
}

func (s *store) SyncUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.users {
		if existing.FirebaseID != user.FirebaseID {
			continue
		}
		existing.Email = user.Email
		existing.Name = user.Name
		s.users[id] = existing
		logrus.WithField("user_id", id).Debug("User synced")
		return &existing, nil
	}

	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = time.Now().UTC()
	s.users[created.ID] = created

	logrus.WithField("user_id", created.ID).Info("User created on sync")
	return &created, nil
}

func (s *store) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	s.rooms[roomID] = time.Now().UnixMilli()
	s.mu.Unlock()

	return nil
}

func (s *store) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, core.Room{ID: id, LastActive: last})
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}
