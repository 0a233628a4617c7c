package bucket

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeRepo struct {
	buckets map[uuid.UUID]*Bucket
	byName  map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{buckets: make(map[uuid.UUID]*Bucket), byName: make(map[string]bool)}
}

func (f *fakeRepo) List(ctx context.Context) ([]Bucket, error) {
	var out []Bucket
	for _, b := range f.buckets {
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Bucket, error) {
	b, ok := f.buckets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeRepo) Create(ctx context.Context, params CreateParams, storageName string) (*Bucket, error) {
	if f.byName[storageName] {
		return nil, ErrNameExists
	}
	b := &Bucket{
		ID: uuid.New(), Name: params.Name, StorageName: storageName,
		Description: params.Description, IsPublic: params.IsPublic, OwnerID: params.OwnerID,
	}
	f.buckets[b.ID] = b
	f.byName[storageName] = true
	cp := *b
	return &cp, nil
}

func (f *fakeRepo) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Bucket, error) {
	b, ok := f.buckets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if params.Description != nil {
		b.Description = *params.Description
	}
	if params.IsPublic != nil {
		b.IsPublic = *params.IsPublic
	}
	cp := *b
	return &cp, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	b, ok := f.buckets[id]
	if !ok {
		return ErrNotFound
	}
	delete(f.buckets, id)
	delete(f.byName, b.StorageName)
	return nil
}

type fakeStore struct {
	created        map[string]bool
	createErr      error
	existsOverride map[string]bool
	deleteErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{created: make(map[string]bool), existsOverride: make(map[string]bool)}
}

func (s *fakeStore) CreateBucket(ctx context.Context, storageName string, isPublic bool) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created[storageName] = true
	return nil
}

func (s *fakeStore) DeleteBucket(ctx context.Context, storageName string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.created, storageName)
	return nil
}

func (s *fakeStore) UpdateBucketPolicy(ctx context.Context, storageName string, isPublic bool) error {
	return nil
}

func (s *fakeStore) BucketExists(ctx context.Context, storageName string) (bool, error) {
	if v, ok := s.existsOverride[storageName]; ok {
		return v, nil
	}
	return s.created[storageName], nil
}

func TestCoordinatorCreateSuccess(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(newFakeRepo(), newFakeStore(), nil, zerolog.Nop())

	b, err := c.Create(context.Background(), CreateParams{Name: "My Bucket", OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.StorageName != "my-bucket" {
		t.Fatalf("StorageName = %q, want %q", b.StorageName, "my-bucket")
	}
}

func TestCoordinatorCreateInvalidName(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(newFakeRepo(), newFakeStore(), nil, zerolog.Nop())

	if _, err := c.Create(context.Background(), CreateParams{Name: "!!!"}); !errors.Is(err, ErrNameInvalid) {
		t.Fatalf("got %v, want ErrNameInvalid", err)
	}
}

func TestCoordinatorCreateCompensatesOnStoreFailure(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	store := newFakeStore()
	store.createErr = errors.New("store unreachable")
	c := NewCoordinator(repo, store, nil, zerolog.Nop())

	_, err := c.Create(context.Background(), CreateParams{Name: "My Bucket", OwnerID: uuid.New()})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("got %v, want ErrStorageUnavailable", err)
	}
	if len(repo.buckets) != 0 {
		t.Fatalf("expected DB row to be compensated away, found %d rows", len(repo.buckets))
	}
}

func TestCoordinatorDeleteTreatsMissingStoreBucketAsAlreadyGone(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	store := newFakeStore()
	c := NewCoordinator(repo, store, nil, zerolog.Nop())

	created, err := c.Create(context.Background(), CreateParams{Name: "Orphan", OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Simulate the bucket having already been removed from the store out of band (e.g. a prior failed
	// compensation or manual cleanup).
	delete(store.created, created.StorageName)

	if err := c.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected DB row to be dropped, got %v", err)
	}
}

func TestCoordinatorUpdateMirrorsIsPublicChange(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	store := newFakeStore()
	c := NewCoordinator(repo, store, nil, zerolog.Nop())

	created, err := c.Create(context.Background(), CreateParams{Name: "Mirrored", OwnerID: uuid.New(), IsPublic: false})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	isPublic := true
	if _, err := c.Update(context.Background(), created.ID, UpdateParams{IsPublic: &isPublic}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.IsPublic {
		t.Fatal("expected is_public to be updated")
	}
}
