package auth

import "errors"

// Sentinel errors for the auth package.
var (
	// ErrRefreshTokenReused is returned when a consumed refresh token is presented again, indicating potential token
	// theft.
	ErrRefreshTokenReused   = errors.New("refresh token reused")
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrPasswordTooShort     = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong      = errors.New("password must be at most 128 characters")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrEmailAlreadyTaken    = errors.New("email already registered")
)
