package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"inkwell/internal/models"

	"github.com/google/uuid"
)

// Category selects the key prefix of an upload.
type Category string

const (
	CategoryPost    Category = "post"
	CategoryProfile Category = "profile"
)

// ParseCategory accepts "post" and "profile"; empty means post.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CategoryPost:
		return CategoryPost, nil
	case CategoryProfile:
		return CategoryProfile, nil
	default:
		return "", models.NewValidationError("category must be post or profile")
	}
}

func (c Category) dir() string {
	if c == CategoryProfile {
		return "profiles"
	}
	return "posts"
}

// ObjectKey returns a fresh key images/{posts|profiles}/<uuid><ext>.
func ObjectKey(c Category, ext string) string {
	return path.Join("images", c.dir(), uuid.NewString()+ext)
}

// Store persists processed uploads and returns their public URL.
type Store interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Presigner hands out URLs clients can upload to directly.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// LocalStore writes uploads below a directory served at URLPrefix.
type LocalStore struct {
	dir       string
	urlPrefix string
}

// LocalURLPrefix is the route the server mounts the upload directory on.
const LocalURLPrefix = "/uploads"

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, urlPrefix: LocalURLPrefix}, nil
}

func (s *LocalStore) Name() string { return "local" }

// Dir returns the root directory of the store.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", err
	}
	return s.urlPrefix + "/" + strings.TrimPrefix(path.Clean("/"+key), "/"), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
