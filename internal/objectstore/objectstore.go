// Package objectstore implements the Object Store: a filesystem-backed byte store for bucket objects, used
// exclusively by cmd/storageservice. Each bucket is a directory under a configured root, holding the objects it owns
// plus a sidecar metadata file; the metadata DB (internal/bucket, internal/file) is the source of truth for
// visibility and ownership, but the Object Store keeps its own copy so it can authorize direct GET/PUT traffic
// without calling back into the control plane.
package objectstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sentinel errors returned by Store operations.
var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrBucketNotEmpty = errors.New("bucket is not empty")
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidPath    = errors.New("invalid object path")
)

const metadataFilename = ".metadata.json"

// BucketMetadata is the sidecar record kept alongside a bucket's objects.
type BucketMetadata struct {
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the filesystem-backed Object Store rooted at a single directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root, creating the directory if it does not already exist.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: filepath.Clean(root)}, nil
}

// bucketPath returns the directory for a bucket. It does not check existence.
func (s *Store) bucketPath(bucket string) string {
	return filepath.Join(s.root, bucket)
}

// objectPath resolves key within bucket, rejecting any path that would escape the bucket directory (directory
// traversal via "..", absolute paths, or symlink tricks resolved by filepath.Clean).
func (s *Store) objectPath(bucket, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	bucketDir := s.bucketPath(bucket)

	full := filepath.Join(bucketDir, key)
	full = filepath.Clean(full)

	rel, err := filepath.Rel(bucketDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}
