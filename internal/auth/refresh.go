package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RefreshStore persists refresh tokens in the refresh_tokens table. Per the ticket invariant (§3), tokens are random
// 64-byte opaque strings; only their SHA-256 digest is stored, so a leaked database row cannot be replayed as-is.
type RefreshStore struct {
	pool *pgxpool.Pool
}

// NewRefreshStore builds a RefreshStore backed by pool.
func NewRefreshStore(pool *pgxpool.Pool) *RefreshStore {
	return &RefreshStore{pool: pool}
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newRefreshTokenString() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create generates a new refresh token for userID with the given TTL and stores its hash.
func (s *RefreshStore) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error) {
	token, err := newRefreshTokenString()
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		hashRefreshToken(token), userID, time.Now().Add(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("insert refresh token: %w", err)
	}

	return token, nil
}

// Validate checks whether token exists, is unexpired and unrevoked, and returns the owning user ID.
func (s *RefreshStore) Validate(ctx context.Context, token string) (uuid.UUID, error) {
	var userID uuid.UUID
	var expiresAt time.Time
	var revoked bool

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, expires_at, revoked FROM refresh_tokens WHERE token_hash = $1`,
		hashRefreshToken(token),
	).Scan(&userID, &expiresAt, &revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get refresh token: %w", err)
	}

	if revoked || time.Now().After(expiresAt) {
		return uuid.Nil, ErrRefreshTokenNotFound
	}

	return userID, nil
}

// Rotate consumes oldToken and issues a new one for the same user. If oldToken is missing, already revoked, or
// expired, it returns ErrRefreshTokenReused so the caller can treat repeated use of a consumed token as a signal of
// theft.
func (s *RefreshStore) Rotate(ctx context.Context, oldToken string, ttl time.Duration) (string, uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("begin rotate tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID uuid.UUID
	var expiresAt time.Time
	var revoked bool
	err = tx.QueryRow(ctx,
		`SELECT user_id, expires_at, revoked FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`,
		hashRefreshToken(oldToken),
	).Scan(&userID, &expiresAt, &revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", uuid.Nil, ErrRefreshTokenReused
	}
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("get refresh token for rotation: %w", err)
	}
	if revoked || time.Now().After(expiresAt) {
		return "", uuid.Nil, ErrRefreshTokenReused
	}

	if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, hashRefreshToken(oldToken)); err != nil {
		return "", uuid.Nil, fmt.Errorf("revoke old refresh token: %w", err)
	}

	newToken, err := newRefreshTokenString()
	if err != nil {
		return "", uuid.Nil, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		hashRefreshToken(newToken), userID, time.Now().Add(ttl),
	); err != nil {
		return "", uuid.Nil, fmt.Errorf("insert rotated refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", uuid.Nil, fmt.Errorf("commit rotate tx: %w", err)
	}

	return newToken, userID, nil
}

// RevokeAll marks every refresh token belonging to userID as revoked.
func (s *RefreshStore) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
