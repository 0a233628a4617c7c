package file

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

const selectColumns = "id, bucket_id, owner_id, filename, object_key, content_type, size, checksum, created_at, updated_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed file repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// GetByID returns the file matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	row := r.db.QueryRow(ctx, "SELECT "+selectColumns+" FROM files WHERE id = $1", id)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file by id: %w", err)
	}
	return f, nil
}

// ListByBucket returns every file in a bucket, ordered by creation time.
func (r *PGRepository) ListByBucket(ctx context.Context, bucketID uuid.UUID) ([]File, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+selectColumns+" FROM files WHERE bucket_id = $1 ORDER BY created_at", bucketID,
	)
	if err != nil {
		return nil, fmt.Errorf("query files by bucket: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// Create inserts a new file row.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*File, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO files (bucket_id, owner_id, filename, object_key, content_type, size)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+selectColumns,
		params.BucketID, params.OwnerID, params.Filename, params.ObjectKey, params.ContentType, params.Size,
	)
	f, err := scanFile(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrKeyExists
		}
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("insert file: bucket does not exist")
		}
		return nil, fmt.Errorf("insert file: %w", err)
	}
	return f, nil
}

// Delete removes the file row.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFile(row pgx.Row) (*File, error) {
	var f File
	var size int64
	err := row.Scan(
		&f.ID, &f.BucketID, &f.OwnerID, &f.Filename, &f.ObjectKey, &f.ContentType, &size, &f.Checksum,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.Size = uint64(size)
	return &f, nil
}
