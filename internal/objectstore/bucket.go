package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BucketExists reports whether the named bucket directory exists.
func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	info, err := os.Stat(s.bucketPath(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// CreateBucket creates the bucket directory and writes its sidecar metadata file. Creating an already-existing
// bucket is not an error: it overwrites the metadata, mirroring the idempotent compensation behaviour the Bucket
// Coordinator relies on (§4.6).
func (s *Store) CreateBucket(ctx context.Context, meta BucketMetadata) error {
	dir := s.bucketPath(meta.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bucket directory: %w", err)
	}
	return s.writeMetadata(dir, meta)
}

// GetBucket reads a bucket's metadata.
func (s *Store) GetBucket(ctx context.Context, bucket string) (*BucketMetadata, error) {
	dir := s.bucketPath(bucket)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBucketNotFound
		}
		return nil, err
	}
	return s.readMetadata(dir)
}

// ListBuckets returns the metadata of every bucket in the store.
func (s *Store) ListBuckets(ctx context.Context) ([]BucketMetadata, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	var out []BucketMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.readMetadata(filepath.Join(s.root, e.Name()))
		if err != nil {
			continue // skip directories without valid metadata rather than failing the whole listing
		}
		out = append(out, *meta)
	}
	return out, nil
}

// UpdateBucket mutates a bucket's is_public flag in its sidecar metadata.
func (s *Store) UpdateBucket(ctx context.Context, bucket string, isPublic bool) error {
	dir := s.bucketPath(bucket)
	meta, err := s.readMetadata(dir)
	if err != nil {
		return err
	}
	meta.IsPublic = isPublic
	return s.writeMetadata(dir, *meta)
}

// DeleteBucket removes a bucket directory and everything under it. When recursive is false, a non-empty bucket
// (any entries besides the metadata sidecar) is rejected with ErrBucketNotEmpty; callers pass recursive=true for a
// superuser-initiated delete, matching §4.8's "owner must be empty; superuser may recurse".
func (s *Store) DeleteBucket(ctx context.Context, bucket string, recursive bool) error {
	dir := s.bucketPath(bucket)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return ErrBucketNotFound
		}
		return err
	}

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read bucket directory: %w", err)
		}
		for _, e := range entries {
			if e.Name() != metadataFilename {
				return ErrBucketNotEmpty
			}
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove bucket directory: %w", err)
	}
	return nil
}

func (s *Store) metadataPath(bucketDir string) string {
	return filepath.Join(bucketDir, metadataFilename)
}

func (s *Store) writeMetadata(bucketDir string, meta BucketMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal bucket metadata: %w", err)
	}
	if err := os.WriteFile(s.metadataPath(bucketDir), data, 0o644); err != nil {
		return fmt.Errorf("write bucket metadata: %w", err)
	}
	return nil
}

func (s *Store) readMetadata(bucketDir string) (*BucketMetadata, error) {
	data, err := os.ReadFile(s.metadataPath(bucketDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBucketNotFound
		}
		return nil, fmt.Errorf("read bucket metadata: %w", err)
	}
	var meta BucketMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal bucket metadata: %w", err)
	}
	return &meta, nil
}
