package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/bucket"
	"github.com/selfdb-io/selfdb/internal/file"
	"github.com/selfdb-io/selfdb/internal/httputil"
)

// BucketHandler serves bucket management endpoints, backed by the Bucket Coordinator.
type BucketHandler struct {
	buckets *bucket.Coordinator
	files   file.Repository
	log     zerolog.Logger
}

// NewBucketHandler creates a new bucket handler.
func NewBucketHandler(buckets *bucket.Coordinator, files file.Repository, logger zerolog.Logger) *BucketHandler {
	return &BucketHandler{buckets: buckets, files: files, log: logger.With().Str("handler", "bucket").Logger()}
}

type bucketResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StorageName string `json:"storage_name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
	OwnerID     string `json:"owner_id"`
	FileCount   int64  `json:"file_count"`
	TotalSize   int64  `json:"total_size"`
}

func toBucketResponse(b *bucket.Bucket) bucketResponse {
	return bucketResponse{
		ID: b.ID.String(), Name: b.Name, StorageName: b.StorageName, Description: b.Description,
		IsPublic: b.IsPublic, OwnerID: b.OwnerID.String(), FileCount: b.FileCount, TotalSize: b.TotalSize,
	}
}

// Create handles POST /buckets.
func (h *BucketHandler) Create(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)

	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    bool   `json:"is_public"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}
	if body.Name == "" {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, bucket.ErrNameRequired.Error())
	}

	b, err := h.buckets.Create(c.Context(), bucket.CreateParams{
		Name: body.Name, Description: body.Description, IsPublic: body.IsPublic, OwnerID: principal.UserID,
	})
	if err != nil {
		return h.mapBucketError(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, toBucketResponse(b))
}

// List handles GET /buckets: every bucket owned by the caller, plus every public bucket for a non-superuser; every
// bucket for a superuser.
func (h *BucketHandler) List(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)

	all, err := h.buckets.List(c.Context())
	if err != nil {
		return h.mapBucketError(c, err)
	}

	visible := make([]bucketResponse, 0, len(all))
	for i := range all {
		b := &all[i]
		if principal.IsSuperuser || bucket.CanRead(b, principal.UserID, principal.IsSuperuser) {
			visible = append(visible, toBucketResponse(b))
		}
	}
	return httputil.Success(c, visible)
}

// ListPublic handles GET /buckets/public (no authentication beyond the anon key required).
func (h *BucketHandler) ListPublic(c fiber.Ctx) error {
	all, err := h.buckets.List(c.Context())
	if err != nil {
		return h.mapBucketError(c, err)
	}

	public := make([]bucketResponse, 0, len(all))
	for i := range all {
		if all[i].IsPublic {
			public = append(public, toBucketResponse(&all[i]))
		}
	}
	return httputil.Success(c, public)
}

// Get handles GET /buckets/{id}.
func (h *BucketHandler) Get(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid bucket id")
	}

	b, err := h.buckets.Get(c.Context(), id)
	if err != nil {
		return h.mapBucketError(c, err)
	}
	if !bucket.CanRead(b, principal.UserID, principal.IsSuperuser) {
		return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "not authorized to access this bucket")
	}
	return httputil.Success(c, toBucketResponse(b))
}

// Update handles PUT /buckets/{id}.
func (h *BucketHandler) Update(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid bucket id")
	}

	existing, err := h.buckets.Get(c.Context(), id)
	if err != nil {
		return h.mapBucketError(c, err)
	}
	if !bucket.CanWrite(existing, principal.UserID, principal.IsSuperuser) {
		return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "not authorized to modify this bucket")
	}

	var body struct {
		Description *string `json:"description"`
		IsPublic    *bool   `json:"is_public"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}

	b, err := h.buckets.Update(c.Context(), id, bucket.UpdateParams{Description: body.Description, IsPublic: body.IsPublic})
	if err != nil {
		return h.mapBucketError(c, err)
	}
	return httputil.Success(c, toBucketResponse(b))
}

// Delete handles DELETE /buckets/{id}.
func (h *BucketHandler) Delete(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid bucket id")
	}

	existing, err := h.buckets.Get(c.Context(), id)
	if err != nil {
		return h.mapBucketError(c, err)
	}
	if !bucket.CanWrite(existing, principal.UserID, principal.IsSuperuser) {
		return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "not authorized to delete this bucket")
	}

	if err := h.buckets.Delete(c.Context(), id); err != nil {
		return h.mapBucketError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListFiles handles GET /buckets/{id}/files.
func (h *BucketHandler) ListFiles(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid bucket id")
	}

	b, err := h.buckets.Get(c.Context(), id)
	if err != nil {
		return h.mapBucketError(c, err)
	}
	if !bucket.CanRead(b, principal.UserID, principal.IsSuperuser) {
		return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "not authorized to access this bucket")
	}

	files, err := h.files.ListByBucket(c.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Msg("list files by bucket")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
	resp := make([]fileResponse, len(files))
	for i := range files {
		resp[i] = toFileResponse(&files[i])
	}
	return httputil.Success(c, resp)
}

func (h *BucketHandler) mapBucketError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, bucket.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierr.NotFound, "bucket not found")
	case errors.Is(err, bucket.ErrNameExists):
		return httputil.Fail(c, fiber.StatusConflict, apierr.Conflict, err.Error())
	case errors.Is(err, bucket.ErrNameRequired), errors.Is(err, bucket.ErrNameInvalid):
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, err.Error())
	case errors.Is(err, bucket.ErrStorageUnavailable):
		return httputil.Fail(c, fiber.StatusServiceUnavailable, apierr.StorageUnavailable, "object storage service is unavailable")
	default:
		h.log.Error().Err(err).Msg("unhandled bucket error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
}
