// Package bootstrap seeds the first superuser account on a fresh deployment, so there is always at least one
// administrator able to manage buckets, files, and CORS origins through the superuser-only endpoints.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/config"
)

// EnsureFirstSuperuser creates the configured owner account as a superuser if no superuser exists yet. It is
// idempotent: once any superuser row exists, it is a no-op, so it is safe to call on every process start.
func EnsureFirstSuperuser(ctx context.Context, db *pgxpool.Pool, cfg *config.BackendConfig, log zerolog.Logger) error {
	var count int
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE is_superuser = TRUE").Scan(&count); err != nil {
		return fmt.Errorf("count superusers: %w", err)
	}
	if count > 0 {
		return nil
	}

	if cfg.InitOwnerEmail == "" || cfg.InitOwnerPassword == "" {
		return fmt.Errorf("INIT_OWNER_EMAIL and INIT_OWNER_PASSWORD must be set to seed the first superuser")
	}

	email, _, err := auth.ValidateEmail(cfg.InitOwnerEmail)
	if err != nil {
		return fmt.Errorf("invalid INIT_OWNER_EMAIL: %w", err)
	}
	if err := auth.ValidatePassword(cfg.InitOwnerPassword); err != nil {
		return fmt.Errorf("invalid INIT_OWNER_PASSWORD: %w", err)
	}

	hash, err := auth.HashPassword(
		cfg.InitOwnerPassword,
		cfg.Argon2Memory,
		cfg.Argon2Iterations,
		cfg.Argon2Parallelism,
		cfg.Argon2SaltLength,
		cfg.Argon2KeyLength,
	)
	if err != nil {
		return fmt.Errorf("hash owner password: %w", err)
	}

	tag, err := db.Exec(ctx,
		`INSERT INTO users (email, hashed_password, is_active, is_superuser)
		 VALUES ($1, $2, TRUE, TRUE)
		 ON CONFLICT (email) DO NOTHING`,
		email, hash,
	)
	if err != nil {
		return fmt.Errorf("insert owner user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Info().Str("email", email).Msg("owner email already registered, skipping superuser seed")
		return nil
	}

	log.Info().Str("email", email).Msg("seeded first superuser")
	return nil
}
