package corspolicy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/postgres"
)

const selectColumns = "id, origin, description, is_active, created_by, created_at, updated_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed origin policy repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// List returns every origin entry, active or soft-deleted, ordered by creation time.
func (r *PGRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s FROM cors_origins ORDER BY created_at", selectColumns))
	if err != nil {
		return nil, fmt.Errorf("query cors origins: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cors origins: %w", err)
	}
	return entries, nil
}

// ListActive returns only the origin strings of active entries, the set the Policy Cache refreshes from.
func (r *PGRepository) ListActive(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, "SELECT origin FROM cors_origins WHERE is_active = TRUE")
	if err != nil {
		return nil, fmt.Errorf("query active cors origins: %w", err)
	}
	defer rows.Close()

	var origins []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan origin: %w", err)
		}
		origins = append(origins, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active cors origins: %w", err)
	}
	return origins, nil
}

// GetByID returns the entry matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM cors_origins WHERE id = $1", selectColumns), id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query cors origin by id: %w", err)
	}
	return e, nil
}

// Create inserts a new active origin entry.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Entry, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO cors_origins (origin, description, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING %s`, selectColumns),
		params.Origin, params.Description, params.CreatedBy,
	)
	e, err := scanEntry(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrOriginExists
		}
		return nil, fmt.Errorf("insert cors origin: %w", err)
	}
	return e, nil
}

// Update applies whichever of params's fields are non-nil, leaving the rest of the row untouched.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Entry, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if params.Origin != nil {
		current.Origin = *params.Origin
	}
	if params.Description != nil {
		current.Description = *params.Description
	}
	if params.IsActive != nil {
		current.IsActive = *params.IsActive
	}

	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE cors_origins SET origin = $1, description = $2, is_active = $3, updated_at = now()
		 WHERE id = $4 RETURNING %s`, selectColumns),
		current.Origin, current.Description, current.IsActive, id,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if postgres.IsUniqueViolation(err) {
			return nil, ErrOriginExists
		}
		return nil, fmt.Errorf("update cors origin: %w", err)
	}
	return e, nil
}

// SoftDelete clears is_active, leaving the row in place for audit/history.
func (r *PGRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "UPDATE cors_origins SET is_active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("soft delete cors origin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HardDelete permanently removes the row.
func (r *PGRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM cors_origins WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("hard delete cors origin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Origin, &e.Description, &e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan cors origin: %w", err)
	}
	return &e, nil
}
