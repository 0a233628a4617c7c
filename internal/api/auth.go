package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/httputil"
)

// AuthHandler serves authentication endpoints.
type AuthHandler struct {
	auth *auth.Service
	log  zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authSvc *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: authSvc, log: logger.With().Str("handler", "auth").Logger()}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	IsSuperuser  bool   `json:"is_superuser"`
	Email        string `json:"email"`
	UserID       string `json:"user_id"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}

	result, err := h.auth.Register(c.Context(), auth.RegisterRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, tokenResponse{
		AccessToken:  result.AccessToken,
		TokenType:    "bearer",
		RefreshToken: result.RefreshToken,
		IsSuperuser:  result.User.IsSuperuser,
		Email:        result.User.Email,
		UserID:       result.User.ID.String(),
	})
}

// Login handles POST /auth/login. Per spec §6.1 the body is form-encoded (username/password), matching the OAuth2
// password-grant convention most API clients already speak; "username" carries the email.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	email := c.FormValue("username")
	password := c.FormValue("password")

	result, err := h.auth.Login(c.Context(), auth.LoginRequest{Email: email, Password: password})
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.Success(c, tokenResponse{
		AccessToken:  result.AccessToken,
		TokenType:    "bearer",
		RefreshToken: result.RefreshToken,
		IsSuperuser:  result.User.IsSuperuser,
		Email:        result.User.Email,
		UserID:       result.User.ID.String(),
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind().Body(&body); err != nil || body.RefreshToken == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "refresh_token is required")
	}

	tokens, err := h.auth.Refresh(c.Context(), body.RefreshToken)
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.Success(c, fiber.Map{
		"access_token":  tokens.AccessToken,
		"token_type":    "bearer",
		"refresh_token": tokens.RefreshToken,
	})
}

// mapAuthError converts auth-layer errors to appropriate HTTP responses.
func mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, err.Error())
	case errors.Is(err, auth.ErrEmailAlreadyTaken):
		return httputil.Fail(c, fiber.StatusConflict, apierr.Conflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		return httputil.Fail(c, fiber.StatusUnauthorized, apierr.Unauthorized, err.Error())
	case errors.Is(err, auth.ErrRefreshTokenReused),
		errors.Is(err, auth.ErrRefreshTokenNotFound),
		errors.Is(err, auth.ErrInvalidToken):
		return httputil.Fail(c, fiber.StatusUnauthorized, apierr.TokenExpired, "refresh token is invalid or expired")
	default:
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
}
