package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a record would violate a uniqueness rule.
var ErrConflict = errors.New("conflict")

type (
	// File is a collaboratively edited document as persisted by a FileStore.
	File struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Content   string    `json:"content"`
		OwnerID   string    `json:"ownerId"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// FileUpdate carries the fields of a partial update. Nil fields are left untouched.
	FileUpdate struct {
		Name    *string `json:"name,omitempty"`
		Content *string `json:"content,omitempty"`
	}

	// FileDeletion is the descriptor broadcast when a file is removed.
	FileDeletion struct {
		ID      string `json:"id"`
		OwnerID string `json:"ownerId"`
	}

	FileStore interface {
		ListFiles(ctx context.Context) ([]*File, error)
		ListFilesByOwner(ctx context.Context, ownerID string) ([]*File, error)
		GetFile(ctx context.Context, id string) (*File, error)
		CreateFile(ctx context.Context, file *File) (*File, error)
		UpdateFile(ctx context.Context, id string, update FileUpdate) (*File, error)
		DeleteFile(ctx context.Context, id string) (*File, error)
	}

	// User mirrors an identity issued by the external identity provider.
	User struct {
		ID         string    `json:"id"`
		Email      string    `json:"email"`
		Name       string    `json:"name"`
		FirebaseID string    `json:"firebaseId"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	UserStore interface {
		ListUsers(ctx context.Context) ([]*User, error)
		CreateUser(ctx context.Context, user *User) (*User, error)
		// SyncUser creates the user or refreshes email and name when a user
		// with the same FirebaseID already exists.
		SyncUser(ctx context.Context, user *User) (*User, error)
	}

	Room struct {
		ID         string
		LastActive int64
	}

	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
	}
)
