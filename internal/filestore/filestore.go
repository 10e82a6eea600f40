package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"example.com/safegear/services/ppe/config"
)

// Store persists named binary blobs and returns stable reference IDs
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// diskStore implements Store on the local filesystem
type diskStore struct {
	root string
}

// NewDiskStore creates a new disk-backed store rooted at the configured path
func NewDiskStore(cfg *config.FileStoreConfig) (Store, error) {
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create file store root: %w", err)
	}
	return &diskStore{root: cfg.Root}, nil
}

// Save writes a blob and returns its reference ID
func (s *diskStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	id := uuid.New().String() + "_" + sanitize(name)
	if err := os.WriteFile(filepath.Join(s.root, id), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", name, err)
	}
	return id, nil
}

// Open reads a blob by reference ID
func (s *diskStore) Open(ctx context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, sanitize(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	return data, nil
}

// Delete removes a blob by reference ID
func (s *diskStore) Delete(ctx context.Context, id string) error {
	if err := os.Remove(filepath.Join(s.root, sanitize(id))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}

// sanitize strips path separators so IDs cannot escape the root
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, "\\", "_")
}
