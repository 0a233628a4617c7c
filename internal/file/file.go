// Package file implements the File Coordinator: the three-step upload protocol (initiate / direct PUT / implicit
// finalize) plus download-info, view-info, and delete, spanning the metadata database and the object-storage
// service.
package file

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the file package.
var (
	ErrNotFound     = errors.New("file not found")
	ErrKeyExists    = errors.New("object key already exists in this bucket")
	ErrForbidden    = errors.New("not authorized to access this file")
	ErrUploadFailed = errors.New("failed to obtain an upload URL from the object store")
)

// File holds the fields read from the database.
type File struct {
	ID          uuid.UUID
	BucketID    uuid.UUID
	OwnerID     *uuid.UUID
	Filename    string
	ObjectKey   string
	ContentType string
	Size        uint64
	Checksum    *string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// CreateParams groups the inputs for registering a new file row.
type CreateParams struct {
	BucketID    uuid.UUID
	OwnerID     uuid.UUID
	Filename    string
	ObjectKey   string
	ContentType string
	Size        uint64
}

// Repository defines the data-access contract for file metadata.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*File, error)
	ListByBucket(ctx context.Context, bucketID uuid.UUID) ([]File, error)
	Create(ctx context.Context, params CreateParams) (*File, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewObjectKey generates an opaque object key: a random UUID with the original filename's extension preserved, so
// the object store's content-type/extension inference still has something to work with.
func NewObjectKey(filename string) string {
	ext := path.Ext(filename)
	return uuid.NewString() + ext
}

// StripBucketPrefix removes a legacy "<bucket>/" prefix from an object key, so keys stored before the object-key
// convention was tightened to "no bucket prefix" still resolve correctly.
func StripBucketPrefix(objectKey, bucketStorageName string) string {
	prefix := bucketStorageName + "/"
	if strings.HasPrefix(objectKey, prefix) {
		return strings.TrimPrefix(objectKey, prefix)
	}
	return objectKey
}

// InferContentType returns a best-effort MIME type for a filename when the declared content-type is missing or the
// generic "application/octet-stream" fallback.
func InferContentType(filename, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ct := mimeByExtension(path.Ext(filename)); ct != "" {
		return ct
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

var extToMime = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".json": "application/json",
	".csv":  "text/csv",
	".mp4":  "video/mp4",
	".zip":  "application/zip",
}

func mimeByExtension(ext string) string {
	return extToMime[strings.ToLower(ext)]
}
