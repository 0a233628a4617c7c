// Package bucket implements the Bucket Coordinator: it keeps bucket records consistent between the metadata
// database and the object-storage service, including the compensating actions needed when one side of a mutation
// fails.
package bucket

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the bucket package.
var (
	ErrNotFound           = errors.New("bucket not found")
	ErrNameExists         = errors.New("a bucket with this name already exists")
	ErrNameRequired       = errors.New("display name must not be empty")
	ErrNameInvalid        = errors.New("display name could not be slugified to a valid storage name")
	ErrForbidden          = errors.New("only the owner or a superuser may perform this action")
	ErrStorageUnavailable = errors.New("object storage service is unavailable")
)

// Bucket holds the fields read from the database, plus stats aggregated over files at read time. JSON tags match the
// snake_case column names so a synthetic Change Event (marshaled from this struct) has the same shape as one
// emitted by the database trigger's row_to_json.
type Bucket struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	StorageName string     `json:"storage_name"`
	Description string     `json:"description"`
	IsPublic    bool       `json:"is_public"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`

	FileCount int64 `json:"file_count"`
	TotalSize int64 `json:"total_size"`
}

// CreateParams groups the inputs for creating a bucket.
type CreateParams struct {
	Name        string
	Description string
	IsPublic    bool
	OwnerID     uuid.UUID
}

// UpdateParams groups the mutable fields of a bucket. Per spec, only description and is_public may change; a nil
// pointer means "no change."
type UpdateParams struct {
	Description *string
	IsPublic    *bool
}

// Repository defines the data-access contract for bucket metadata.
type Repository interface {
	List(ctx context.Context) ([]Bucket, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Bucket, error)
	Create(ctx context.Context, params CreateParams, storageName string) (*Bucket, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Bucket, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9-]+`)
var slugCollapseDashes = regexp.MustCompile(`-+`)

// Slugify derives a DNS-safe lowercase storage name from a display name: lowercase, non-alphanumeric runs collapsed
// to a single dash, leading/trailing dashes trimmed. An empty result means the name could not be slugified.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = slugCollapseDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// CanRead reports whether a principal may read a bucket: its owner, a superuser, or anyone when the bucket is
// public.
func CanRead(b *Bucket, userID uuid.UUID, isSuperuser bool) bool {
	if b.IsPublic {
		return true
	}
	return isSuperuser || b.OwnerID == userID
}

// CanWrite reports whether a principal may mutate a bucket: its owner or a superuser.
func CanWrite(b *Bucket, userID uuid.UUID, isSuperuser bool) bool {
	return isSuperuser || b.OwnerID == userID
}
