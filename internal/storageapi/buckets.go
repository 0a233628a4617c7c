package storageapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/httputil"
	"github.com/selfdb-io/selfdb/internal/objectstore"
)

type createBucketRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

type updateBucketRequest struct {
	IsPublic bool `json:"is_public"`
}

type bucketResponse struct {
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

func toBucketResponse(m objectstore.BucketMetadata) bucketResponse {
	return bucketResponse{Name: m.Name, IsPublic: m.IsPublic, OwnerID: m.OwnerID, CreatedAt: m.CreatedAt}
}

// CreateBucket handles POST /buckets. Administrative only: the backend calls this after the Bucket Coordinator has
// already committed the bucket row (§4.6), so a retry that finds the directory already present is not an error.
func (h *Handler) CreateBucket(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}

	var req createBucketRequest
	if err := c.Bind().Body(&req); err != nil || req.Name == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "name is required")
	}

	if err := h.store.CreateBucket(c.Context(), objectstore.BucketMetadata{
		Name:      req.Name,
		IsPublic:  req.IsPublic,
		CreatedAt: time.Now(),
	}); err != nil {
		h.log.Error().Err(err).Str("bucket", req.Name).Msg("create bucket failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "failed to create bucket")
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, toBucketResponse(objectstore.BucketMetadata{
		Name: req.Name, IsPublic: req.IsPublic,
	}))
}

// ListBuckets handles GET /buckets.
func (h *Handler) ListBuckets(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}

	buckets, err := h.store.ListBuckets(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list buckets failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "failed to list buckets")
	}

	out := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, toBucketResponse(b))
	}
	return httputil.Success(c, out)
}

// GetBucket handles GET /buckets/:name.
func (h *Handler) GetBucket(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}

	meta, err := h.store.GetBucket(c.Context(), c.Params("name"))
	if err != nil {
		return mapBucketError(c, err)
	}
	return httputil.Success(c, toBucketResponse(*meta))
}

// UpdateBucket handles PUT /buckets/:name.
func (h *Handler) UpdateBucket(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}

	var req updateBucketRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}

	if err := h.store.UpdateBucket(c.Context(), c.Params("name"), req.IsPublic); err != nil {
		return mapBucketError(c, err)
	}

	meta, err := h.store.GetBucket(c.Context(), c.Params("name"))
	if err != nil {
		return mapBucketError(c, err)
	}
	return httputil.Success(c, toBucketResponse(*meta))
}

// DeleteBucket handles DELETE /buckets/:name?recursive=true. recursive is set by the backend only for
// superuser-initiated deletes of a non-empty bucket (§4.8).
func (h *Handler) DeleteBucket(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}

	recursive := c.Query("recursive") == "true"
	if err := h.store.DeleteBucket(c.Context(), c.Params("name"), recursive); err != nil {
		return mapBucketError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func mapBucketError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, objectstore.ErrBucketNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierr.NotFound, "bucket not found")
	case errors.Is(err, objectstore.ErrBucketNotEmpty):
		return httputil.Fail(c, fiber.StatusConflict, apierr.Conflict, "bucket is not empty")
	default:
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "storage operation failed")
	}
}
