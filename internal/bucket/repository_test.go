package bucket

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/postgres"
	"github.com/selfdb-io/selfdb/internal/user"
)

func setupRepoTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres-backed bucket test")
	}
	if err := postgres.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func createTestOwner(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	users := user.NewPGRepository(pool, zerolog.Nop())
	u, err := users.Create(context.Background(), user.CreateParams{
		Email:          "bucket-owner-" + uuid.NewString() + "@example.com",
		HashedPassword: "hash",
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return u.ID
}

func TestRepositoryCreateAndGetByID(t *testing.T) {
	pool := setupRepoTestDB(t)
	repo := NewPGRepository(pool, zerolog.Nop())
	owner := createTestOwner(t, pool)

	name := "Test Bucket " + uuid.NewString()
	created, err := repo.Create(context.Background(), CreateParams{Name: name, OwnerID: owner}, Slugify(name))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.FileCount != 0 || created.TotalSize != 0 {
		t.Fatalf("expected zero stats on a fresh bucket, got %+v", created)
	}

	got, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StorageName != created.StorageName {
		t.Fatalf("StorageName = %q, want %q", got.StorageName, created.StorageName)
	}
}

func TestRepositoryCreateDuplicateStorageName(t *testing.T) {
	pool := setupRepoTestDB(t)
	repo := NewPGRepository(pool, zerolog.Nop())
	owner := createTestOwner(t, pool)

	storageName := "dup-" + uuid.NewString()
	if _, err := repo.Create(context.Background(), CreateParams{Name: "first", OwnerID: owner}, storageName); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := repo.Create(context.Background(), CreateParams{Name: "second", OwnerID: owner}, storageName)
	if !errors.Is(err, ErrNameExists) {
		t.Fatalf("got %v, want ErrNameExists", err)
	}
}

func TestRepositoryUpdateIsPublic(t *testing.T) {
	pool := setupRepoTestDB(t)
	repo := NewPGRepository(pool, zerolog.Nop())
	owner := createTestOwner(t, pool)

	name := "Patchable " + uuid.NewString()
	created, err := repo.Create(context.Background(), CreateParams{Name: name, OwnerID: owner}, Slugify(name))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	isPublic := true
	updated, err := repo.Update(context.Background(), created.ID, UpdateParams{IsPublic: &isPublic})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.IsPublic {
		t.Fatal("expected is_public to be true after update")
	}
}

func TestRepositoryDeleteRemovesRow(t *testing.T) {
	pool := setupRepoTestDB(t)
	repo := NewPGRepository(pool, zerolog.Nop())
	owner := createTestOwner(t, pool)

	name := "Deletable " + uuid.NewString()
	created, err := repo.Create(context.Background(), CreateParams{Name: name, OwnerID: owner}, Slugify(name))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
