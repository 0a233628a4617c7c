// Package user models the Principal record backing authentication: a row in the users table with an email, a
// password hash, and the active/superuser flags the Auth Gate checks on every bearer ticket.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the user package.
var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrLastSuperuser = errors.New("cannot remove the last superuser")
)

// User holds the fields read from the database.
type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	IsActive       bool
	IsSuperuser    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateParams groups the inputs for creating a new user.
type CreateParams struct {
	Email          string
	HashedPassword string
	IsActive       bool
	IsSuperuser    bool
}

// UpdateParams groups the optional fields for updating a user. A nil pointer means "no change."
type UpdateParams struct {
	HashedPassword *string
	IsActive       *bool
	IsSuperuser    *bool
}

// Repository defines the data-access contract for user operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]User, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// IsActiveSuperuser satisfies auth.UserStore, letting the Auth Gate re-check a ticket's referenced user without
	// depending on this package's concrete types.
	IsActiveSuperuser(ctx context.Context, id uuid.UUID) (active, superuser bool, err error)
}
