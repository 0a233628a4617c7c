package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeBufferSize is the chunk size used when streaming an upload to disk, matching the original service's tuning
// for medium-to-large uploads.
const writeBufferSize = 1024 * 1024

// PutObject streams r to the object identified by bucket/key, creating parent directories as needed. If the copy
// fails partway through, the partially written file is removed so a later read never sees truncated bytes.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader) (int64, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create object file: %w", err)
	}

	buf := make([]byte, writeBufferSize)
	n, err := io.CopyBuffer(f, r, buf)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return 0, fmt.Errorf("write object: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("close object file: %w", err)
	}
	return n, nil
}

// StatObject returns the size and existence of an object.
func (s *Store) StatObject(ctx context.Context, bucket, key string) (os.FileInfo, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return info, nil
}

// DeleteObject removes an object. A missing object is not an error, matching the File Coordinator's idempotent
// delete semantics (§4.7).
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PurgeObjects deletes every object in a bucket while leaving the bucket directory and its metadata sidecar intact.
func (s *Store) PurgeObjects(ctx context.Context, bucket string) error {
	dir := s.bucketPath(bucket)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrBucketNotFound
		}
		return fmt.Errorf("read bucket directory: %w", err)
	}

	for _, e := range entries {
		if e.Name() == metadataFilename {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("purge object %q: %w", e.Name(), err)
		}
	}
	return nil
}
