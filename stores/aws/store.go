package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"docsync-server/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	filesPrefix = "files/"
	usersPrefix = "users/"
	roomsPrefix = "rooms/"
)

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Store keeps every record as a JSON object in one bucket. Writes that
// read before they write (update, sync) are serialized in-process only.
type s3Store struct {
	client objectAPI
	bucket string
	mu     sync.Mutex
}

// NewStore creates an S3-backed store using the default AWS configuration chain.
func NewStore(bucketName string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newStore(s3.NewFromConfig(cfg), bucketName), nil
}

func newStore(client objectAPI, bucket string) *s3Store {
	return &s3Store{client: client, bucket: bucket}
}

func objectKey(prefix, id string) (string, error) {
	// IDs become object keys and must not address other records.
	if id == "" || id == "." || id == ".." || path.Base(id) != id {
		return "", fmt.Errorf("invalid id %q", id)
	}
	return prefix + id + ".json", nil
}

func (s *s3Store) getJSON(ctx context.Context, key string, v any) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%s: %w", key, core.ErrNotFound)
		}
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read object %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode object %s: %w", key, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *s3Store) listFiles(ctx context.Context, keep func(*core.File) bool) ([]*core.File, error) {
	keys, err := s.listKeys(ctx, filesPrefix)
	if err != nil {
		return nil, err
	}

	files := make([]*core.File, 0, len(keys))
	for _, key := range keys {
		var f core.File
		if err := s.getJSON(ctx, key, &f); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Skipping unreadable file object")
			continue
		}
		if keep(&f) {
			files = append(files, &f)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].UpdatedAt.Equal(files[j].UpdatedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].UpdatedAt.After(files[j].UpdatedAt)
	})
	return files, nil
}

func (s *s3Store) ListFiles(ctx context.Context) ([]*core.File, error) {
	return s.listFiles(ctx, func(*core.File) bool { return true })
}

func (s *s3Store) ListFilesByOwner(ctx context.Context, ownerID string) ([]*core.File, error) {
	return s.listFiles(ctx, func(f *core.File) bool { return f.OwnerID == ownerID })
}

func (s *s3Store) GetFile(ctx context.Context, id string) (*core.File, error) {
	key, err := objectKey(filesPrefix, id)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	var f core.File
	if err := s.getJSON(ctx, key, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *s3Store) CreateFile(ctx context.Context, file *core.File) (*core.File, error) {
	now := time.Now().UTC()
	created := *file
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	key, _ := objectKey(filesPrefix, created.ID)
	if err := s.putJSON(ctx, key, &created); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"file_id":  created.ID,
		"owner_id": created.OwnerID,
	}).Info("File created successfully")
	return &created, nil
}

func (s *s3Store) UpdateFile(ctx context.Context, id string, update core.FileUpdate) (*core.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		f.Name = *update.Name
	}
	if update.Content != nil {
		f.Content = *update.Content
	}
	f.UpdatedAt = time.Now().UTC()

	key, _ := objectKey(filesPrefix, id)
	if err := s.putJSON(ctx, key, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *s3Store) DeleteFile(ctx context.Context, id string) (*core.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	key, _ := objectKey(filesPrefix, id)
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("delete file %s: %w", id, err)
	}
	logrus.WithField("file_id", id).Info("File deleted successfully")
	return f, nil
}

func (s *s3Store) ListUsers(ctx context.Context) ([]*core.User, error) {
	keys, err := s.listKeys(ctx, usersPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]*core.User, 0, len(keys))
	for _, key := range keys {
		var u core.User
		if err := s.getJSON(ctx, key, &u); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Skipping unreadable user object")
			continue
		}
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// Users are keyed by their identity provider id so sync is a single lookup.
func (s *s3Store) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := objectKey(usersPrefix, user.FirebaseID)
	if err != nil {
		return nil, err
	}
	var existing core.User
	if err := s.getJSON(ctx, key, &existing); err == nil {
		return nil, fmt.Errorf("user with firebase id %s: %w", user.FirebaseID, core.ErrConflict)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	return s.putUser(ctx, key, user)
}

func (s *s3Store) SyncUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := objectKey(usersPrefix, user.FirebaseID)
	if err != nil {
		return nil, err
	}
	var existing core.User
	err = s.getJSON(ctx, key, &existing)
	switch {
	case err == nil:
		existing.Email = user.Email
		existing.Name = user.Name
		if err := s.putJSON(ctx, key, &existing); err != nil {
			return nil, err
		}
		return &existing, nil
	case errors.Is(err, core.ErrNotFound):
		return s.putUser(ctx, key, user)
	default:
		return nil, err
	}
}

func (s *s3Store) putUser(ctx context.Context, key string, user *core.User) (*core.User, error) {
	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = time.Now().UTC()
	if err := s.putJSON(ctx, key, &created); err != nil {
		return nil, err
	}
	logrus.WithField("user_id", created.ID).Info("User created successfully")
	return &created, nil
}

type roomObject struct {
	LastActive int64 `json:"lastActive"`
}

func (s *s3Store) TouchRoom(ctx context.Context, roomID string) error {
	key, err := objectKey(roomsPrefix, roomID)
	if err != nil {
		return fmt.Errorf("room id is required: %w", err)
	}
	return s.putJSON(ctx, key, roomObject{LastActive: time.Now().UnixMilli()})
}

func (s *s3Store) ListRooms(ctx context.Context) ([]core.Room, error) {
	keys, err := s.listKeys(ctx, roomsPrefix)
	if err != nil {
		return nil, err
	}
	rooms := make([]core.Room, 0, len(keys))
	for _, key := range keys {
		var obj roomObject
		if err := s.getJSON(ctx, key, &obj); err != nil {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(key, roomsPrefix), ".json")
		rooms = append(rooms, core.Room{ID: id, LastActive: obj.LastActive})
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})
	return rooms, nil
}
