package bucket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/file"
	"github.com/selfdb-io/selfdb/internal/notify"
)

// Store is the subset of the Object Store's bucket operations the Coordinator needs. It is satisfied by
// internal/storageclient's HTTP client in production and by a fake in tests.
type Store interface {
	CreateBucket(ctx context.Context, storageName string, isPublic bool) error
	DeleteBucket(ctx context.Context, storageName string) error
	UpdateBucketPolicy(ctx context.Context, storageName string, isPublic bool) error
	BucketExists(ctx context.Context, storageName string) (bool, error)
}

// Coordinator implements the Bucket Coordinator: it keeps the metadata row and the object-storage bucket in sync,
// including the compensating actions spec §4.6 requires when one side of a mutation fails.
type Coordinator struct {
	repo  Repository
	store Store
	pool  *pgxpool.Pool
	log   zerolog.Logger
}

// NewCoordinator builds a Bucket Coordinator. pool is used only to emit the buckets_changes notification after a
// successful mutation; all row access goes through repo.
func NewCoordinator(repo Repository, store Store, pool *pgxpool.Pool, logger zerolog.Logger) *Coordinator {
	return &Coordinator{repo: repo, store: store, pool: pool, log: logger.With().Str("component", "bucket_coordinator").Logger()}
}

// Create slugifies the display name, inserts the DB row, then provisions the object-storage bucket. If provisioning
// fails, the DB row is deleted (compensation) and ErrStorageUnavailable is returned; a DB-row insert failure never
// reaches the Store call at all.
func (c *Coordinator) Create(ctx context.Context, params CreateParams) (*Bucket, error) {
	storageName := Slugify(params.Name)
	if storageName == "" {
		return nil, ErrNameInvalid
	}

	b, err := c.repo.Create(ctx, params, storageName)
	if err != nil {
		return nil, err
	}

	if err := c.store.CreateBucket(ctx, storageName, params.IsPublic); err != nil {
		if delErr := c.repo.Delete(ctx, b.ID); delErr != nil {
			c.log.Error().Err(delErr).Stringer("bucket_id", b.ID).
				Msg("failed to compensate bucket row after object store provisioning failure")
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	c.notifyChange(ctx, notify.OpInsert, b, nil)
	return b, nil
}

// List returns every bucket visible to the caller (all buckets for a superuser; owned-or-public otherwise is the
// handler's concern, not the Coordinator's — List itself is unfiltered).
func (c *Coordinator) List(ctx context.Context) ([]Bucket, error) {
	return c.repo.List(ctx)
}

// Get returns a single bucket by ID.
func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*Bucket, error) {
	return c.repo.GetByID(ctx, id)
}

// GetBucket implements file.BucketLookup, letting the File Coordinator authorize against bucket ownership/visibility
// without depending on this package's full Repository surface.
func (c *Coordinator) GetBucket(ctx context.Context, id uuid.UUID) (*file.BucketInfo, error) {
	b, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &file.BucketInfo{ID: b.ID, StorageName: b.StorageName, IsPublic: b.IsPublic, OwnerID: b.OwnerID}, nil
}

// Update applies the mutable fields and, on an is_public change, best-effort mirrors the new policy to the object
// store. A mirror failure is logged, not surfaced: the DB row is the source of truth for is_public.
func (c *Coordinator) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Bucket, error) {
	before, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := c.repo.Update(ctx, id, params)
	if err != nil {
		return nil, err
	}

	if params.IsPublic != nil && *params.IsPublic != before.IsPublic {
		if err := c.store.UpdateBucketPolicy(ctx, updated.StorageName, *params.IsPublic); err != nil {
			c.log.Warn().Err(err).Stringer("bucket_id", id).Msg("failed to mirror is_public to object store")
		}
	}

	c.notifyChange(ctx, notify.OpUpdate, updated, before)
	return updated, nil
}

// Delete removes a bucket. It probes the object store first: a missing store-side bucket means a prior
// "DB-only" state (from a failed Create compensation) and the DB row is simply dropped; otherwise the store bucket
// is deleted (recursively removing its objects) before the DB row, which cascades to file rows.
func (c *Coordinator) Delete(ctx context.Context, id uuid.UUID) error {
	b, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	exists, err := c.store.BucketExists(ctx, b.StorageName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if exists {
		if err := c.store.DeleteBucket(ctx, b.StorageName); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}

	c.notifyChange(ctx, notify.OpDelete, nil, b)
	return nil
}

// notifyChange emits a synthetic buckets_changes Change Event via Postgres NOTIFY, per spec §4.6: each successful
// mutation notifies uniformly through the same path the Bridge already listens on. Failures are logged, not
// returned — a lost notification never rolls back a committed mutation.
func (c *Coordinator) notifyChange(ctx context.Context, op notify.Op, newRow, oldRow *Bucket) {
	if c.pool == nil {
		return
	}
	newData, oldData := marshalBucket(newRow), marshalBucket(oldRow)
	if err := notify.Emit(ctx, c.pool, "buckets", op, newData, oldData); err != nil {
		c.log.Warn().Err(err).Msg("failed to emit buckets_changes notification")
	}
}

func marshalBucket(b *Bucket) json.RawMessage {
	if b == nil {
		return nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil
	}
	return data
}
