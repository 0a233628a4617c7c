package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/postgres"
)

const selectColumns = "id, email, hashed_password, is_active, is_superuser, created_at, updated_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed user repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new user.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*User, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO users (email, hashed_password, is_active, is_superuser)
		 VALUES ($1, $2, $3, $4)
		 RETURNING %s`, selectColumns),
		params.Email, params.HashedPassword, params.IsActive, params.IsSuperuser,
	)
	u, err := scanUser(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetByID returns the user matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM users WHERE id = $1", selectColumns), id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

// GetByEmail returns the user matching the given email, which must already be normalized.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM users WHERE email = $1", selectColumns), email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return u, nil
}

// List returns users ordered by creation time, paginated by offset and limit.
func (r *PGRepository) List(ctx context.Context, offset, limit int) ([]User, error) {
	rows, err := r.db.Query(ctx,
		fmt.Sprintf("SELECT %s FROM users ORDER BY created_at OFFSET $1 LIMIT $2", selectColumns),
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Count returns the total number of users.
func (r *PGRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Update applies the non-nil fields in params to the user row and returns the updated user. Demoting or deactivating
// the last remaining active superuser is rejected with ErrLastSuperuser so the deployment never loses its only
// administrator.
//
// Safety: the query is built dynamically, but every SET clause and named arg key is a hardcoded string literal. No
// caller-supplied value enters the SQL structure; all values flow through pgx named parameter binding.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*User, error) {
	var updated *User
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if wouldLoseSuperuser(params) {
			var currentActive, currentSuperuser bool
			err := tx.QueryRow(ctx, "SELECT is_active, is_superuser FROM users WHERE id = $1", id).
				Scan(&currentActive, &currentSuperuser)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("query current user status: %w", err)
			}
			if currentActive && currentSuperuser {
				var remaining int
				err := tx.QueryRow(ctx,
					"SELECT COUNT(*) FROM users WHERE is_superuser = TRUE AND is_active = TRUE AND id != $1", id,
				).Scan(&remaining)
				if err != nil {
					return fmt.Errorf("count remaining superusers: %w", err)
				}
				if remaining == 0 {
					return ErrLastSuperuser
				}
			}
		}

		namedArgs := pgx.NamedArgs{"id": id}
		var setClauses []string

		if params.HashedPassword != nil {
			setClauses = append(setClauses, "hashed_password = @hashed_password")
			namedArgs["hashed_password"] = *params.HashedPassword
		}
		if params.IsActive != nil {
			setClauses = append(setClauses, "is_active = @is_active")
			namedArgs["is_active"] = *params.IsActive
		}
		if params.IsSuperuser != nil {
			setClauses = append(setClauses, "is_superuser = @is_superuser")
			namedArgs["is_superuser"] = *params.IsSuperuser
		}

		if len(setClauses) == 0 {
			row := tx.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM users WHERE id = @id", selectColumns), namedArgs)
			u, err := scanUser(row)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("query user: %w", err)
			}
			updated = u
			return nil
		}

		query := "UPDATE users SET " + joinClauses(setClauses) + " WHERE id = @id RETURNING " + selectColumns
		row := tx.QueryRow(ctx, query, namedArgs)
		u, err := scanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("update user: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the user with the given ID. Deleting the last remaining active superuser is rejected with
// ErrLastSuperuser, the same invariant Update enforces.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var currentActive, currentSuperuser bool
		err := tx.QueryRow(ctx, "SELECT is_active, is_superuser FROM users WHERE id = $1", id).
			Scan(&currentActive, &currentSuperuser)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("query user status: %w", err)
		}
		if currentActive && currentSuperuser {
			var remaining int
			err := tx.QueryRow(ctx,
				"SELECT COUNT(*) FROM users WHERE is_superuser = TRUE AND is_active = TRUE AND id != $1", id,
			).Scan(&remaining)
			if err != nil {
				return fmt.Errorf("count remaining superusers: %w", err)
			}
			if remaining == 0 {
				return ErrLastSuperuser
			}
		}

		tag, err := tx.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// wouldLoseSuperuser reports whether params would strip a user of active-superuser status: either demoting it or
// deactivating it.
func wouldLoseSuperuser(params UpdateParams) bool {
	return (params.IsSuperuser != nil && !*params.IsSuperuser) || (params.IsActive != nil && !*params.IsActive)
}

// IsActiveSuperuser reports whether the user exists, is active, and is a superuser. It satisfies auth.UserStore.
func (r *PGRepository) IsActiveSuperuser(ctx context.Context, id uuid.UUID) (active, superuser bool, err error) {
	err = r.db.QueryRow(ctx, "SELECT is_active, is_superuser FROM users WHERE id = $1", id).Scan(&active, &superuser)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("query user active/superuser: %w", err)
	}
	return active, superuser, nil
}

// scanUser scans a single row into a *User. The row must contain the columns listed in selectColumns.
func scanUser(row pgx.Row) (*User, error) {
	var u User
	var updatedAt *time.Time
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.IsSuperuser, &u.CreatedAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if updatedAt != nil {
		u.UpdatedAt = *updatedAt
	}
	return &u, nil
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ", " + c
	}
	return out
}
