package bucket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/postgres"
)

const selectColumns = `b.id, b.name, b.storage_name, b.description, b.is_public, b.owner_id, b.created_at, b.updated_at,
	COALESCE(f.file_count, 0), COALESCE(f.total_size, 0)`

const fromClause = `FROM buckets b
	LEFT JOIN (
		SELECT bucket_id, COUNT(*) AS file_count, SUM(size)::bigint AS total_size
		FROM files GROUP BY bucket_id
	) f ON f.bucket_id = b.id`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed bucket repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// List returns every bucket with its aggregated file stats, ordered by creation time.
func (r *PGRepository) List(ctx context.Context) ([]Bucket, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s %s ORDER BY b.created_at", selectColumns, fromClause))
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return buckets, nil
}

// GetByID returns the bucket matching the given ID, with aggregated file stats.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Bucket, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT %s %s WHERE b.id = $1", selectColumns, fromClause),
		id,
	)
	b, err := scanBucket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query bucket by id: %w", err)
	}
	return b, nil
}

// Create inserts a new bucket row. storageName must already be validated and slugified by the caller; the unique
// constraint on storage_name is the final backstop against races.
func (r *PGRepository) Create(ctx context.Context, params CreateParams, storageName string) (*Bucket, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`WITH inserted AS (
			INSERT INTO buckets (name, slug, storage_name, description, is_public, owner_id)
			VALUES ($1, $2, $2, $3, $4, $5)
			RETURNING id, name, storage_name, description, is_public, owner_id, created_at, updated_at
		) SELECT inserted.*, 0, 0 FROM inserted`),
		params.Name, storageName, params.Description, params.IsPublic, params.OwnerID,
	)
	b, err := scanBucket(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrNameExists
		}
		return nil, fmt.Errorf("insert bucket: %w", err)
	}
	return b, nil
}

// Update applies the non-nil fields in params and returns the updated bucket with its current stats.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Bucket, error) {
	var setClauses []string
	namedArgs := pgx.NamedArgs{"id": id}

	if params.Description != nil {
		setClauses = append(setClauses, "description = @description")
		namedArgs["description"] = *params.Description
	}
	if params.IsPublic != nil {
		setClauses = append(setClauses, "is_public = @is_public")
		namedArgs["is_public"] = *params.IsPublic
	}

	if len(setClauses) == 0 {
		return r.GetByID(ctx, id)
	}

	query := "UPDATE buckets SET " + strings.Join(setClauses, ", ") + " WHERE id = @id"
	tag, err := r.db.Exec(ctx, query, namedArgs)
	if err != nil {
		return nil, fmt.Errorf("update bucket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the bucket row. Database cascade removes its file rows.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM buckets WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBucket(row pgx.Row) (*Bucket, error) {
	var b Bucket
	err := row.Scan(
		&b.ID, &b.Name, &b.StorageName, &b.Description, &b.IsPublic, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt,
		&b.FileCount, &b.TotalSize,
	)
	if err != nil {
		return nil, fmt.Errorf("scan bucket: %w", err)
	}
	return &b, nil
}
