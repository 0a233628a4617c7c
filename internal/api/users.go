package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/config"
	"github.com/selfdb-io/selfdb/internal/httputil"
	"github.com/selfdb-io/selfdb/internal/user"
)

// UserHandler serves user profile and administrative user-management endpoints.
type UserHandler struct {
	users   user.Repository
	auth    *auth.Service
	cfg     *config.BackendConfig
	anonKey string
	log     zerolog.Logger
}

// NewUserHandler creates a new user handler. anonKey is echoed back by GetMyAnonKey for clients bootstrapping
// against the shared anonymous-access secret; cfg supplies the Argon2 parameters for administrative user creation.
func NewUserHandler(users user.Repository, authSvc *auth.Service, cfg *config.BackendConfig, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, auth: authSvc, cfg: cfg, anonKey: cfg.AnonKey, log: logger.With().Str("handler", "user").Logger()}
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{ID: u.ID.String(), Email: u.Email, IsActive: u.IsActive, IsSuperuser: u.IsSuperuser}
}

// GetMe handles GET /users/me.
func (h *UserHandler) GetMe(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)
	u, err := h.users.GetByID(c.Context(), principal.UserID)
	if err != nil {
		return h.mapUserError(c, err)
	}
	return httputil.Success(c, toUserResponse(u))
}

// UpdateMe handles PUT /users/me. The Principal record (spec §3) carries no self-service mutable field beyond its
// password, which has its own endpoint below; this exists for API-surface completeness and returns the caller's
// current profile unchanged.
func (h *UserHandler) UpdateMe(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)
	u, err := h.users.GetByID(c.Context(), principal.UserID)
	if err != nil {
		return h.mapUserError(c, err)
	}
	return httputil.Success(c, toUserResponse(u))
}

// UpdatePassword handles PUT /users/me/password.
func (h *UserHandler) UpdatePassword(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)

	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}

	if err := h.auth.ChangePassword(c.Context(), principal.UserID, body.CurrentPassword, body.NewPassword); err != nil {
		return mapAuthError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMe handles DELETE /users/me.
func (h *UserHandler) DeleteMe(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)

	var body struct {
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&body); err != nil || body.Password == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "password is required")
	}

	if err := h.auth.DeleteAccount(c.Context(), principal.UserID, body.Password); err != nil {
		if errors.Is(err, user.ErrLastSuperuser) {
			return httputil.Fail(c, fiber.StatusConflict, apierr.Conflict, err.Error())
		}
		return mapAuthError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMyAnonKey handles GET /users/me/anon-key, returning the shared anonymous-access secret so a logged-in client
// can configure its own public-resource requests without a second round trip to the operator.
func (h *UserHandler) GetMyAnonKey(c fiber.Ctx) error {
	return httputil.Success(c, fiber.Map{"anon_key": h.anonKey})
}

// List handles GET /users (superuser only).
func (h *UserHandler) List(c fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)

	users, err := h.users.List(c.Context(), offset, limit)
	if err != nil {
		return h.mapUserError(c, err)
	}

	resp := make([]userResponse, len(users))
	for i := range users {
		resp[i] = toUserResponse(&users[i])
	}
	return httputil.Success(c, resp)
}

// Count handles GET /users/count.
func (h *UserHandler) Count(c fiber.Ctx) error {
	count, err := h.users.Count(c.Context())
	if err != nil {
		return h.mapUserError(c, err)
	}
	return httputil.Success(c, fiber.Map{"count": count})
}

// Create handles POST /users (superuser only): administrative user creation, bypassing the self-registration flow.
func (h *UserHandler) Create(c fiber.Ctx) error {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		IsSuperuser bool   `json:"is_superuser"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}

	email, _, err := auth.ValidateEmail(body.Email)
	if err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, err.Error())
	}
	if err := auth.ValidatePassword(body.Password); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, err.Error())
	}

	hash, err := auth.HashPassword(body.Password, h.cfg.Argon2Memory, h.cfg.Argon2Iterations, h.cfg.Argon2Parallelism, h.cfg.Argon2SaltLength, h.cfg.Argon2KeyLength)
	if err != nil {
		h.log.Error().Err(err).Msg("hash password for admin-created user")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}

	u, err := h.users.Create(c.Context(), user.CreateParams{
		Email: email, HashedPassword: hash, IsActive: true, IsSuperuser: body.IsSuperuser,
	})
	if err != nil {
		return h.mapUserError(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, toUserResponse(u))
}

// Get handles GET /users/{id}.
func (h *UserHandler) Get(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid user id")
	}
	u, err := h.users.GetByID(c.Context(), id)
	if err != nil {
		return h.mapUserError(c, err)
	}
	return httputil.Success(c, toUserResponse(u))
}

// Update handles PUT /users/{id} (superuser only): active/superuser flags.
func (h *UserHandler) Update(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid user id")
	}

	var body struct {
		IsActive    *bool `json:"is_active"`
		IsSuperuser *bool `json:"is_superuser"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}

	u, err := h.users.Update(c.Context(), id, user.UpdateParams{IsActive: body.IsActive, IsSuperuser: body.IsSuperuser})
	if err != nil {
		return h.mapUserError(c, err)
	}
	return httputil.Success(c, toUserResponse(u))
}

// Delete handles DELETE /users/{id} (superuser only).
func (h *UserHandler) Delete(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid user id")
	}
	if err := h.users.Delete(c.Context(), id); err != nil {
		return h.mapUserError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *UserHandler) mapUserError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierr.NotFound, "user not found")
	case errors.Is(err, user.ErrEmailTaken):
		return httputil.Fail(c, fiber.StatusConflict, apierr.Conflict, err.Error())
	case errors.Is(err, user.ErrLastSuperuser):
		return httputil.Fail(c, fiber.StatusConflict, apierr.Conflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("unhandled user error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
}
