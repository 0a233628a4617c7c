package objectstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestObjectPathRejectsTraversal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	tests := []string{"../../etc/passwd", "../escape", "a/../../b"}
	for _, key := range tests {
		if _, err := s.objectPath("bucket", key); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("objectPath(%q) = %v, want ErrInvalidPath", key, err)
		}
	}
}

func TestObjectPathAllowsNestedKeys(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	path, err := s.objectPath("bucket", "sub/dir/file.png")
	if err != nil {
		t.Fatalf("objectPath: %v", err)
	}
	want := filepath.Join(s.root, "bucket", "sub", "dir", "file.png")
	if path != want {
		t.Errorf("objectPath = %q, want %q", path, want)
	}
}

func TestBucketLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	meta := BucketMetadata{Name: "photos", IsPublic: false, OwnerID: "owner-1", CreatedAt: time.Unix(0, 0).UTC()}
	if err := s.CreateBucket(ctx, meta); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	exists, err := s.BucketExists(ctx, "photos")
	if err != nil || !exists {
		t.Fatalf("BucketExists = %v, %v, want true, nil", exists, err)
	}

	got, err := s.GetBucket(ctx, "photos")
	if err != nil {
		t.Fatalf("GetBucket: %v", err)
	}
	if got.OwnerID != meta.OwnerID || got.IsPublic != meta.IsPublic {
		t.Fatalf("GetBucket = %+v, want %+v", got, meta)
	}

	if err := s.UpdateBucket(ctx, "photos", true); err != nil {
		t.Fatalf("UpdateBucket: %v", err)
	}
	got, _ = s.GetBucket(ctx, "photos")
	if !got.IsPublic {
		t.Fatal("expected IsPublic=true after update")
	}

	if _, err := s.PutObject(ctx, "photos", "a.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := s.DeleteObject(ctx, "photos", "a.txt"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	list, err := s.ListBuckets(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListBuckets = %v, %v, want 1 bucket", list, err)
	}

	if err := s.DeleteBucket(ctx, "photos", false); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if exists, _ := s.BucketExists(ctx, "photos"); exists {
		t.Fatal("bucket should no longer exist")
	}
}

func TestDeleteBucketRejectsNonEmptyWithoutRecursive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, BucketMetadata{Name: "docs"}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if _, err := s.PutObject(ctx, "docs", "file.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	if err := s.DeleteBucket(ctx, "docs", false); !errors.Is(err, ErrBucketNotEmpty) {
		t.Fatalf("DeleteBucket(recursive=false) = %v, want ErrBucketNotEmpty", err)
	}
	if err := s.DeleteBucket(ctx, "docs", true); err != nil {
		t.Fatalf("DeleteBucket(recursive=true): %v", err)
	}
}

func TestPutStatDeleteObject(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, BucketMetadata{Name: "docs"}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	n, err := s.PutObject(ctx, "docs", "report.txt", strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if n != int64(len("hello world")) {
		t.Fatalf("PutObject wrote %d bytes, want %d", n, len("hello world"))
	}

	info, err := s.StatObject(ctx, "docs", "report.txt")
	if err != nil {
		t.Fatalf("StatObject: %v", err)
	}
	if info.Size() != n {
		t.Fatalf("StatObject size = %d, want %d", info.Size(), n)
	}

	if err := s.DeleteObject(ctx, "docs", "report.txt"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, err := s.StatObject(ctx, "docs", "report.txt"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("StatObject after delete = %v, want ErrObjectNotFound", err)
	}

	// Deleting an already-missing object is not an error.
	if err := s.DeleteObject(ctx, "docs", "report.txt"); err != nil {
		t.Fatalf("DeleteObject (already gone): %v", err)
	}
}

func TestPurgeObjectsKeepsBucketAndMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, BucketMetadata{Name: "docs"}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if _, err := s.PutObject(ctx, "docs", "a.txt", strings.NewReader("a")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := s.PutObject(ctx, "docs", "nested/b.txt", strings.NewReader("b")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	if err := s.PurgeObjects(ctx, "docs"); err != nil {
		t.Fatalf("PurgeObjects: %v", err)
	}

	if exists, _ := s.BucketExists(ctx, "docs"); !exists {
		t.Fatal("bucket should still exist after purge")
	}
	if _, err := s.StatObject(ctx, "docs", "a.txt"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("StatObject after purge = %v, want ErrObjectNotFound", err)
	}
}
