package file

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BucketInfo is the narrow slice of bucket metadata the Coordinator needs to authorize file operations without
// importing the bucket package outright, which would create an import cycle: the bucket package already imports this
// one for BucketInfo.
type BucketInfo struct {
	ID          uuid.UUID
	StorageName string
	IsPublic    bool
	OwnerID     uuid.UUID
}

// BucketLookup resolves a bucket by ID for authorization purposes.
type BucketLookup interface {
	GetBucket(ctx context.Context, id uuid.UUID) (*BucketInfo, error)
}

// Store is the subset of the Object Store's file operations the Coordinator needs.
type Store interface {
	GenerateUploadURL(ctx context.Context, bucketStorageName, objectKey, contentType string, ttl time.Duration) (uploadURL, method string, err error)
	DeleteObject(ctx context.Context, bucketStorageName, objectKey string) error
	DownloadURL(bucketStorageName, objectKey string) string
	ViewURL(bucketStorageName, objectKey, contentType string) string
}

// UploadInfo is returned to the client after Initiate: the new file's metadata plus the presigned upload
// instructions.
type UploadInfo struct {
	File      *File
	UploadURL string
	Method    string
}

// Coordinator implements the File Coordinator.
type Coordinator struct {
	repo      Repository
	buckets   BucketLookup
	store     Store
	uploadTTL time.Duration
	log       zerolog.Logger
}

// NewCoordinator builds a File Coordinator. uploadTTL bounds how long a generated upload URL remains valid
// (config PresignedUploadTTL, default 1h per spec §4.7).
func NewCoordinator(repo Repository, buckets BucketLookup, store Store, uploadTTL time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{repo: repo, buckets: buckets, store: store, uploadTTL: uploadTTL, log: logger.With().Str("component", "file_coordinator").Logger()}
}

// InitiateParams groups the inputs for starting an upload.
type InitiateParams struct {
	BucketID    uuid.UUID
	Filename    string
	ContentType string
	Size        uint64
	RequesterID uuid.UUID
	IsAnon      bool
}

// Initiate begins the three-step upload protocol: authorizes against the bucket, generates an opaque object key,
// inserts the File row, and requests a short-lived upload URL. If the URL request fails the File row is rolled
// back, so there is never a row pointing at a key the store never offered an upload slot for.
func (c *Coordinator) Initiate(ctx context.Context, params InitiateParams) (*UploadInfo, error) {
	b, err := c.buckets.GetBucket(ctx, params.BucketID)
	if err != nil {
		return nil, err
	}
	if !canWriteToBucket(b, params.RequesterID, params.IsAnon) {
		return nil, ErrForbidden
	}

	objectKey := NewObjectKey(params.Filename)
	contentType := InferContentType(params.Filename, params.ContentType)

	f, err := c.repo.Create(ctx, CreateParams{
		BucketID:    params.BucketID,
		OwnerID:     params.RequesterID,
		Filename:    params.Filename,
		ObjectKey:   objectKey,
		ContentType: contentType,
		Size:        params.Size,
	})
	if err != nil {
		return nil, err
	}

	uploadURL, method, err := c.store.GenerateUploadURL(ctx, b.StorageName, objectKey, contentType, c.uploadTTL)
	if err != nil {
		if delErr := c.repo.Delete(ctx, f.ID); delErr != nil {
			c.log.Error().Err(delErr).Stringer("file_id", f.ID).
				Msg("failed to roll back file row after upload URL generation failure")
		}
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return &UploadInfo{File: f, UploadURL: uploadURL, Method: method}, nil
}

// DownloadInfo verifies read authorization and returns a direct download URL.
func (c *Coordinator) DownloadInfo(ctx context.Context, fileID, requesterID uuid.UUID, isAnon bool) (*File, string, error) {
	f, b, err := c.getFileAndBucket(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	if !canReadBucket(b, requesterID, isAnon) {
		return nil, "", ErrForbidden
	}
	return f, c.store.DownloadURL(b.StorageName, f.ObjectKey), nil
}

// ViewInfo verifies read authorization and returns a direct view URL, inferring a content type when the stored one
// is missing or generic.
func (c *Coordinator) ViewInfo(ctx context.Context, fileID, requesterID uuid.UUID, isAnon bool) (*File, string, error) {
	f, b, err := c.getFileAndBucket(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	if !canReadBucket(b, requesterID, isAnon) {
		return nil, "", ErrForbidden
	}
	contentType := InferContentType(f.Filename, f.ContentType)
	return f, c.store.ViewURL(b.StorageName, f.ObjectKey, contentType), nil
}

// Delete verifies owner/superuser authorization, removes the object-store byte object, then the DB row. A missing
// store-side object is treated as success (idempotent), matching Bucket Delete's compensation philosophy.
func (c *Coordinator) Delete(ctx context.Context, fileID, requesterID uuid.UUID, isSuperuser bool) error {
	f, b, err := c.getFileAndBucket(ctx, fileID)
	if err != nil {
		return err
	}
	if !isSuperuser && (f.OwnerID == nil || *f.OwnerID != requesterID) {
		return ErrForbidden
	}

	if err := c.store.DeleteObject(ctx, b.StorageName, f.ObjectKey); err != nil {
		c.log.Warn().Err(err).Stringer("file_id", fileID).Msg("object store delete failed or object already absent")
	}

	return c.repo.Delete(ctx, fileID)
}

func (c *Coordinator) getFileAndBucket(ctx context.Context, fileID uuid.UUID) (*File, *BucketInfo, error) {
	f, err := c.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	b, err := c.buckets.GetBucket(ctx, f.BucketID)
	if err != nil {
		return nil, nil, err
	}
	return f, b, nil
}

func canReadBucket(b *BucketInfo, requesterID uuid.UUID, isAnon bool) bool {
	if b.IsPublic {
		return true
	}
	if isAnon {
		return false
	}
	return b.OwnerID == requesterID
}

func canWriteToBucket(b *BucketInfo, requesterID uuid.UUID, isAnon bool) bool {
	if isAnon {
		return b.IsPublic
	}
	return b.OwnerID == requesterID || b.IsPublic
}
