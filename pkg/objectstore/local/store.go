// Package local provides a filesystem-backed object store implementation.
//
// Chunks persist as distinct files; no server-side assembly happens here —
// local storage retains per-chunk files and the coordinator assembles them
// at read time.
package local

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dfsingest/dfsingest/pkg/objectstore"
)

// Store is a filesystem-backed implementation of objectstore.Store.
type Store struct {
	mu       sync.RWMutex
	basePath string
}

// Config holds configuration for the local object store.
type Config struct {
	// BasePath is the root directory under which all keys are stored.
	BasePath string

	// DirMode is the permission mode for BasePath when New creates it.
	// Default 0755. Per-upload directories are always created with 0755.
	DirMode os.FileMode

	// FileMode is not applied: chunk files are always written with 0644.
	FileMode os.FileMode
}

// New creates a local object store rooted at cfg.BasePath, creating it if
// it doesn't already exist.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, os.ErrInvalid
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
		return nil, err
	}
	return &Store{basePath: cfg.BasePath}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// InitializeUpload is a no-op for local storage: it has no multipart
// lifecycle, so no token is ever returned.
func (s *Store) InitializeUpload(ctx context.Context, uploadID string, multipart bool) (string, error) {
	return "", nil
}

// WriteChunk writes a chunk to a temp file then atomically renames it into
// place.
func (s *Store) WriteChunk(ctx context.Context, uploadID string, index int, data []byte, multipartToken string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectstore.ChunkKey(uploadID, index)
	path := s.path(key)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", "", err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", "", err
	}

	return key, "", nil
}

// CompleteUpload is a no-op for local storage.
func (s *Store) CompleteUpload(ctx context.Context, uploadID string, multipartToken string, parts []objectstore.Part) error {
	return nil
}

// ReadChunk reads the full contents of key.
func (s *Store) ReadChunk(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, objectstore.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// ListKeys lists all keys under prefix, sorted for deterministic output.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := s.path(prefix)
	var keys []string

	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, err
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)
	return keys, nil
}

// DeleteKey removes key. Deleting a non-existent key is not an error.
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	dir := filepath.Dir(path)
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// SupportsMultipart always returns false for local storage.
func (s *Store) SupportsMultipart() bool { return false }

var _ objectstore.Store = (*Store)(nil)
