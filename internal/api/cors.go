package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/corspolicy"
	"github.com/selfdb-io/selfdb/internal/httputil"
)

// CORSHandler serves the CORS origin-policy management endpoints (superuser only), backed by the Policy Cache.
type CORSHandler struct {
	repo  corspolicy.Repository
	cache *corspolicy.Cache
	log   zerolog.Logger
}

// NewCORSHandler creates a new CORS handler.
func NewCORSHandler(repo corspolicy.Repository, cache *corspolicy.Cache, logger zerolog.Logger) *CORSHandler {
	return &CORSHandler{repo: repo, cache: cache, log: logger.With().Str("handler", "cors").Logger()}
}

type originResponse struct {
	ID          string `json:"id"`
	Origin      string `json:"origin"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

func toOriginResponse(e *corspolicy.Entry) originResponse {
	return originResponse{ID: e.ID.String(), Origin: e.Origin, Description: e.Description, IsActive: e.IsActive}
}

// List handles GET /cors/origins.
func (h *CORSHandler) List(c fiber.Ctx) error {
	entries, err := h.repo.List(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list cors origins")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
	resp := make([]originResponse, len(entries))
	for i := range entries {
		resp[i] = toOriginResponse(&entries[i])
	}
	return httputil.Success(c, resp)
}

// Create handles POST /cors/origins.
func (h *CORSHandler) Create(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)

	var body struct {
		Origin      string `json:"origin"`
		Description string `json:"description"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}
	if err := corspolicy.ValidateOrigin(body.Origin); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, err.Error())
	}

	entry, err := h.repo.Create(c.Context(), corspolicy.CreateParams{
		Origin: body.Origin, Description: body.Description, CreatedBy: principal.UserID,
	})
	if err != nil {
		return h.mapCORSError(c, err)
	}
	h.cache.Invalidate()
	return httputil.SuccessStatus(c, fiber.StatusCreated, toOriginResponse(entry))
}

// Get handles GET /cors/origins/{id}.
func (h *CORSHandler) Get(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid origin id")
	}
	entry, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		return h.mapCORSError(c, err)
	}
	return httputil.Success(c, toOriginResponse(entry))
}

// Update handles PUT /cors/origins/{id}.
func (h *CORSHandler) Update(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid origin id")
	}

	var body struct {
		Origin      *string `json:"origin"`
		Description *string `json:"description"`
		IsActive    *bool   `json:"is_active"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}
	if body.Origin != nil {
		if err := corspolicy.ValidateOrigin(*body.Origin); err != nil {
			return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, err.Error())
		}
	}

	entry, err := h.repo.Update(c.Context(), id, corspolicy.UpdateParams{
		Origin: body.Origin, Description: body.Description, IsActive: body.IsActive,
	})
	if err != nil {
		return h.mapCORSError(c, err)
	}
	h.cache.Invalidate()
	return httputil.Success(c, toOriginResponse(entry))
}

// Delete handles DELETE /cors/origins/{id}?hard_delete=true. Soft delete (the default) flips is_active; hard delete
// removes the row entirely.
func (h *CORSHandler) Delete(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid origin id")
	}

	if c.Query("hard_delete") == "true" {
		err = h.repo.HardDelete(c.Context(), id)
	} else {
		err = h.repo.SoftDelete(c.Context(), id)
	}
	if err != nil {
		return h.mapCORSError(c, err)
	}
	h.cache.Invalidate()
	return c.SendStatus(fiber.StatusNoContent)
}

// Validate handles POST /cors/validate: reports whether the given origin is currently allowed, without requiring a
// real cross-origin request to find out.
func (h *CORSHandler) Validate(c fiber.Ctx) error {
	var body struct {
		Origin string `json:"origin"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}
	return httputil.Success(c, fiber.Map{"allowed": h.cache.IsAllowed(c.Context(), body.Origin)})
}

// RefreshCache handles POST /cors/refresh-cache: forces an immediate Policy Cache reload instead of waiting out its
// bounded staleness window.
func (h *CORSHandler) RefreshCache(c fiber.Ctx) error {
	if err := h.cache.Refresh(c.Context()); err != nil {
		h.log.Error().Err(err).Msg("refresh cors policy cache")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CORSHandler) mapCORSError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, corspolicy.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierr.NotFound, "origin not found")
	case errors.Is(err, corspolicy.ErrOriginExists):
		return httputil.Fail(c, fiber.StatusConflict, apierr.Conflict, err.Error())
	case errors.Is(err, corspolicy.ErrInvalidOrigin):
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, err.Error())
	default:
		h.log.Error().Err(err).Msg("unhandled cors origin error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
}
