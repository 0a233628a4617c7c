package file

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeRepo struct {
	files map[uuid.UUID]*File
}

func newFakeRepo() *fakeRepo { return &fakeRepo{files: make(map[uuid.UUID]*File)} }

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	v, ok := f.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeRepo) ListByBucket(ctx context.Context, bucketID uuid.UUID) ([]File, error) {
	var out []File
	for _, v := range f.files {
		if v.BucketID == bucketID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeRepo) Create(ctx context.Context, params CreateParams) (*File, error) {
	owner := params.OwnerID
	v := &File{
		ID: uuid.New(), BucketID: params.BucketID, OwnerID: &owner, Filename: params.Filename,
		ObjectKey: params.ObjectKey, ContentType: params.ContentType, Size: params.Size,
	}
	f.files[v.ID] = v
	cp := *v
	return &cp, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.files[id]; !ok {
		return ErrNotFound
	}
	delete(f.files, id)
	return nil
}

type fakeBuckets struct {
	buckets map[uuid.UUID]*BucketInfo
}

func (b *fakeBuckets) GetBucket(ctx context.Context, id uuid.UUID) (*BucketInfo, error) {
	v, ok := b.buckets[id]
	if !ok {
		return nil, errors.New("bucket not found")
	}
	return v, nil
}

type fakeStore struct {
	uploadErr error
}

func (s *fakeStore) GenerateUploadURL(ctx context.Context, bucketStorageName, objectKey, contentType string, ttl time.Duration) (string, string, error) {
	if s.uploadErr != nil {
		return "", "", s.uploadErr
	}
	return "https://storage.local/upload/" + bucketStorageName + "/" + objectKey, "PUT", nil
}

func (s *fakeStore) DeleteObject(ctx context.Context, bucketStorageName, objectKey string) error {
	return nil
}

func (s *fakeStore) DownloadURL(bucketStorageName, objectKey string) string {
	return "https://storage.local/files/download/" + bucketStorageName + "/" + objectKey
}

func (s *fakeStore) ViewURL(bucketStorageName, objectKey, contentType string) string {
	return "https://storage.local/files/view/" + bucketStorageName + "/" + objectKey
}

func setup(t *testing.T, bucketPublic bool, owner uuid.UUID) (*Coordinator, uuid.UUID) {
	t.Helper()
	bucketID := uuid.New()
	buckets := &fakeBuckets{buckets: map[uuid.UUID]*BucketInfo{
		bucketID: {ID: bucketID, StorageName: "photos", IsPublic: bucketPublic, OwnerID: owner},
	}}
	c := NewCoordinator(newFakeRepo(), buckets, &fakeStore{}, time.Hour, zerolog.Nop())
	return c, bucketID
}

func TestCoordinatorInitiateSuccess(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	c, bucketID := setup(t, false, owner)

	info, err := c.Initiate(context.Background(), InitiateParams{
		BucketID: bucketID, Filename: "photo.png", ContentType: "image/png", RequesterID: owner,
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if info.Method != "PUT" || info.UploadURL == "" {
		t.Fatalf("unexpected upload info: %+v", info)
	}
}

func TestCoordinatorInitiateForbiddenForNonOwnerOnPrivateBucket(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	c, bucketID := setup(t, false, owner)

	_, err := c.Initiate(context.Background(), InitiateParams{
		BucketID: bucketID, Filename: "photo.png", RequesterID: uuid.New(),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestCoordinatorInitiateRollsBackOnUploadFailure(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	bucketID := uuid.New()
	buckets := &fakeBuckets{buckets: map[uuid.UUID]*BucketInfo{
		bucketID: {ID: bucketID, StorageName: "photos", IsPublic: false, OwnerID: owner},
	}}
	repo := newFakeRepo()
	store := &fakeStore{uploadErr: errors.New("store down")}
	c := NewCoordinator(repo, buckets, store, time.Hour, zerolog.Nop())

	_, err := c.Initiate(context.Background(), InitiateParams{
		BucketID: bucketID, Filename: "photo.png", RequesterID: owner,
	})
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("got %v, want ErrUploadFailed", err)
	}
	if len(repo.files) != 0 {
		t.Fatalf("expected file row to be rolled back, found %d", len(repo.files))
	}
}

func TestCoordinatorDownloadInfoDeniedOnPrivateBucketForStranger(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	c, bucketID := setup(t, false, owner)

	info, err := c.Initiate(context.Background(), InitiateParams{BucketID: bucketID, Filename: "a.txt", RequesterID: owner})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	_, _, err = c.DownloadInfo(context.Background(), info.File.ID, uuid.New(), false)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestCoordinatorDownloadInfoAllowedOnPublicBucketForAnon(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	c, bucketID := setup(t, true, owner)

	info, err := c.Initiate(context.Background(), InitiateParams{BucketID: bucketID, Filename: "a.txt", RequesterID: owner})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	_, url, err := c.DownloadInfo(context.Background(), info.File.ID, uuid.Nil, true)
	if err != nil {
		t.Fatalf("DownloadInfo: %v", err)
	}
	if url == "" {
		t.Fatal("expected non-empty download URL")
	}
}

func TestCoordinatorDeleteRequiresOwnerOrSuperuser(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	c, bucketID := setup(t, true, owner)

	info, err := c.Initiate(context.Background(), InitiateParams{BucketID: bucketID, Filename: "a.txt", RequesterID: owner})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if err := c.Delete(context.Background(), info.File.ID, uuid.New(), false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	if err := c.Delete(context.Background(), info.File.ID, owner, false); err != nil {
		t.Fatalf("Delete by owner: %v", err)
	}
}
