package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"strings"
	"time"

	"docsync-server/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS files_owner_id ON files (owner_id);`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		firebase_id TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		last_active INTEGER NOT NULL
	);`,
}

type store struct {
	db *sql.DB
}

// NewStore opens the database and creates the schema. Failure is fatal.
func NewStore(dataSourceName string) *store {
	s, err := Open(dataSourceName)
	if err != nil {
		stdlog.Fatal(err)
	}
	return s
}

func Open(dataSourceName string) (*store, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"driver":      driverName,
		"cgo_enabled": CGOEnabled,
	}).Debug("SQLite store ready")
	return &store{db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

const fileColumns = "id, name, content, owner_id, created_at, updated_at"

func scanFile(row interface{ Scan(...any) error }) (*core.File, error) {
	var f core.File
	var created, updated int64
	if err := row.Scan(&f.ID, &f.Name, &f.Content, &f.OwnerID, &created, &updated); err != nil {
		return nil, err
	}
	f.CreatedAt = time.UnixMilli(created).UTC()
	f.UpdatedAt = time.UnixMilli(updated).UTC()
	return &f, nil
}

func (s *store) queryFiles(ctx context.Context, query string, args ...any) ([]*core.File, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logrus.WithError(err).Error("Failed to list files")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close file rows")
		}
	}()

	files := []*core.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *store) ListFiles(ctx context.Context) ([]*core.File, error) {
	return s.queryFiles(ctx, "SELECT "+fileColumns+" FROM files ORDER BY updated_at DESC, id")
}

func (s *store) ListFilesByOwner(ctx context.Context, ownerID string) ([]*core.File, error) {
	return s.queryFiles(ctx, "SELECT "+fileColumns+" FROM files WHERE owner_id = ? ORDER BY updated_at DESC, id", ownerID)
}

func (s *store) GetFile(ctx context.Context, id string) (*core.File, error) {
	log := logrus.WithField("file_id", id)
	log.Debug("Retrieving file by ID")

	f, err := scanFile(s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve file")
		return nil, err
	}
	return f, nil
}

func (s *store) CreateFile(ctx context.Context, file *core.File) (*core.File, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	created := *file
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{
		"file_id":  created.ID,
		"owner_id": created.OwnerID,
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO files ("+fileColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		created.ID, created.Name, created.Content, created.OwnerID, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		log.WithError(err).Error("Failed to create file")
		return nil, err
	}
	log.Info("File created successfully")
	return &created, nil
}

func (s *store) UpdateFile(ctx context.Context, id string, update core.FileUpdate) (*core.File, error) {
	log := logrus.WithField("file_id", id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE files SET name = COALESCE(?, name), content = COALESCE(?, content), updated_at = ? WHERE id = ?",
		nullable(update.Name), nullable(update.Content), time.Now().UnixMilli(), id)
	if err != nil {
		log.WithError(err).Error("Failed to update file")
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}

	log.Info("File updated successfully")
	return s.GetFile(ctx, id)
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *store) DeleteFile(ctx context.Context, id string) (*core.File, error) {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		logrus.WithError(err).WithField("file_id", id).Error("Failed to delete file")
		return nil, err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}

	logrus.WithField("file_id", id).Info("File deleted successfully")
	return f, nil
}

func scanUser(row interface{ Scan(...any) error }) (*core.User, error) {
	var u core.User
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.FirebaseID, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return &u, nil
}

func (s *store) ListUsers(ctx context.Context) ([]*core.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, email, name, firebase_id, created_at FROM users ORDER BY id")
	if err != nil {
		logrus.WithError(err).Error("Failed to list users")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close user rows")
		}
	}()

	users := []*core.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *store) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, name, firebase_id, created_at) VALUES (?, ?, ?, ?, ?)",
		created.ID, created.Email, created.Name, created.FirebaseID, created.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user with firebase id %s: %w", created.FirebaseID, core.ErrConflict)
		}
		logrus.WithError(err).Error("Failed to create user")
		return nil, fmt.Errorf("create user: %w", err)
	}
	logrus.WithField("user_id", created.ID).Info("User created successfully")
	return &created, nil
}

func (s *store) SyncUser(ctx context.Context, user *core.User) (*core.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, firebase_id, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(firebase_id) DO UPDATE SET email = excluded.email, name = excluded.name`,
		ulid.Make().String(), user.Email, user.Name, user.FirebaseID, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).Error("Failed to sync user")
		return nil, fmt.Errorf("sync user: %w", err)
	}

	synced, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, email, name, firebase_id, created_at FROM users WHERE firebase_id = ?", user.FirebaseID))
	if err != nil {
		return nil, fmt.Errorf("load synced user: %w", err)
	}
	logrus.WithField("user_id", synced.ID).Debug("User synced")
	return synced, nil
}

func (s *store) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, last_active) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active",
		roomID, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to touch room")
	}
	return err
}

func (s *store) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_active FROM rooms ORDER BY last_active DESC, id")
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close room rows")
		}
	}()

	rooms := []core.Room{}
	for rows.Next() {
		var r core.Room
		if err := rows.Scan(&r.ID, &r.LastActive); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// isUniqueViolation matches the constraint error text shared by the cgo and
// pure-Go drivers.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
