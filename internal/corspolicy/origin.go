// Package corspolicy implements the Policy Cache and CORS Arbiter: a bounded-staleness cache of allowed origins
// backed by the cors_origins table, and the middleware that enforces it on every request.
package corspolicy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the corspolicy package.
var (
	ErrNotFound      = errors.New("origin not found")
	ErrOriginExists  = errors.New("origin already registered")
	ErrInvalidOrigin = errors.New("origin must be a non-empty URL or \"*\"")
)

// Entry holds an origin policy row read from the database.
type Entry struct {
	ID          uuid.UUID
	Origin      string
	Description string
	IsActive    bool
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateParams groups the inputs for registering a new origin.
type CreateParams struct {
	Origin      string
	Description string
	CreatedBy   uuid.UUID
}

// UpdateParams groups the optional fields an update may change. Nil fields are left untouched.
type UpdateParams struct {
	Origin      *string
	Description *string
	IsActive    *bool
}

// Repository defines the data-access contract for origin policy entries.
type Repository interface {
	List(ctx context.Context) ([]Entry, error)
	ListActive(ctx context.Context) ([]string, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Create(ctx context.Context, params CreateParams) (*Entry, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Entry, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
}

// ValidateOrigin checks that origin is non-empty. A bare "*" is accepted, matching the spec's "wildcard accepted but
// discouraged" language; callers may want to warn on it but it is not rejected here.
func ValidateOrigin(origin string) error {
	if origin == "" {
		return ErrInvalidOrigin
	}
	return nil
}
