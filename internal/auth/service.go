package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/config"
	"github.com/selfdb-io/selfdb/internal/user"
)

// Service implements authentication business logic, keeping HTTP handlers thin and focused on request parsing /
// response formatting.
type Service struct {
	users   user.Repository
	refresh *RefreshStore
	config  *config.BackendConfig
	log     zerolog.Logger
	// dummyHash is a precomputed Argon2id hash used to keep login timing constant when a user is not found,
	// preventing email enumeration via response-time analysis.
	dummyHash string
}

// NewService creates a new authentication service. It returns an error if the Argon2id configuration is invalid,
// since password hashing is fundamental to every auth operation.
func NewService(users user.Repository, refresh *RefreshStore, cfg *config.BackendConfig, logger zerolog.Logger) (*Service, error) {
	// Generate a dummy hash at startup so VerifyPassword always runs against a real Argon2id hash even when the user
	// does not exist. A failure here means the Argon2 parameters are broken and no password operation will succeed.
	dummy, err := HashPassword("selfdb-dummy-password", cfg.Argon2Memory, cfg.Argon2Iterations, cfg.Argon2Parallelism, cfg.Argon2SaltLength, cfg.Argon2KeyLength)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &Service{
		users:     users,
		refresh:   refresh,
		config:    cfg,
		log:       logger,
		dummyHash: dummy,
	}, nil
}

// RegisterRequest is the input for Service.Register.
type RegisterRequest struct {
	Email    string
	Password string
}

// LoginRequest is the input for Service.Login.
type LoginRequest struct {
	Email    string
	Password string
}

// AuthResult is the output for Register and Login.
type AuthResult struct {
	User         *user.User
	AccessToken  string
	RefreshToken string
}

// TokenPair is the output for Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Register validates inputs, creates the user, and returns auth tokens. New accounts are active but never
// superusers; the first superuser is seeded by the bootstrap package.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	email, _, err := ValidateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism, s.config.Argon2SaltLength, s.config.Argon2KeyLength)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, user.CreateParams{Email: email, HashedPassword: hash, IsActive: true})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, ErrEmailAlreadyTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueTokens(ctx, u.ID, u.IsSuperuser)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: u, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// Login verifies email/password credentials and returns auth tokens.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	email, _, err := ValidateEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Hash against a dummy value to prevent timing-based email enumeration. Without this, "user not found"
			// returns faster than "wrong password" because Argon2id is skipped.
			_, _ = VerifyPassword(req.Password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	match, err := VerifyPassword(req.Password, u.HashedPassword)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}

	// Lazy hash rotation: rehash with current parameters if the stored hash was generated with older settings.
	if NeedsRehash(u.HashedPassword, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism, s.config.Argon2SaltLength, s.config.Argon2KeyLength) {
		if newHash, hashErr := HashPassword(req.Password, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism, s.config.Argon2SaltLength, s.config.Argon2KeyLength); hashErr == nil {
			hashed := newHash
			if _, updateErr := s.users.Update(ctx, u.ID, user.UpdateParams{HashedPassword: &hashed}); updateErr != nil {
				s.log.Warn().Err(updateErr).Str("user_id", u.ID.String()).Msg("failed to rotate password hash")
			} else {
				s.log.Debug().Str("user_id", u.ID.String()).Msg("password hash rotated to current parameters")
			}
		}
	}

	tokens, err := s.issueTokens(ctx, u.ID, u.IsSuperuser)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: u, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// Refresh rotates a refresh token and issues a new access token. Per the ticket invariant, the issued access token
// reflects the user's current superuser status, not whatever it was when the refresh token was created.
func (s *Service) Refresh(ctx context.Context, oldToken string) (*TokenPair, error) {
	newRefreshToken, userID, err := s.refresh.Rotate(ctx, oldToken, s.config.RefreshTokenTTL)
	if err != nil {
		return nil, err // ErrRefreshTokenReused passes through
	}

	active, superuser, err := s.users.IsActiveSuperuser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user status: %w", err)
	}
	if !active {
		return nil, ErrInvalidToken
	}

	accessToken, err := NewAccessToken(userID, superuser, s.config.SecretKey, s.config.AccessTokenTTL, s.config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

// Logout revokes every refresh token belonging to userID, ending all of that user's sessions.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.refresh.RevokeAll(ctx, userID)
}

// ChangePassword verifies currentPassword before replacing the stored hash, and revokes every outstanding refresh
// token so other sessions must re-authenticate with the new password.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	match, err := VerifyPassword(currentPassword, u.HashedPassword)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism, s.config.Argon2SaltLength, s.config.Argon2KeyLength)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.users.Update(ctx, userID, user.UpdateParams{HashedPassword: &hash}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return s.refresh.RevokeAll(ctx, userID)
}

// DeleteAccount verifies password before permanently removing the account and revoking its refresh tokens.
// Removing the last remaining superuser is rejected so a deployment can never end up without an administrator.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	match, err := VerifyPassword(password, u.HashedPassword)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return s.refresh.RevokeAll(ctx, userID)
}

func (s *Service) issueTokens(ctx context.Context, userID uuid.UUID, isSuperuser bool) (*TokenPair, error) {
	accessToken, err := NewAccessToken(userID, isSuperuser, s.config.SecretKey, s.config.AccessTokenTTL, s.config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refreshToken, err := s.refresh.Create(ctx, userID, s.config.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
