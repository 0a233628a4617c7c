package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/file"
	"github.com/selfdb-io/selfdb/internal/httputil"
)

// FileHandler serves file endpoints, backed by the File Coordinator.
type FileHandler struct {
	files    *file.Coordinator
	repo     file.Repository
	maxBytes uint64
	log      zerolog.Logger
}

// NewFileHandler creates a new file handler. maxBytes rejects an initiate-upload request declaring a size over the
// server's configured limit before a File row or upload URL is ever allocated.
func NewFileHandler(files *file.Coordinator, repo file.Repository, maxBytes uint64, logger zerolog.Logger) *FileHandler {
	return &FileHandler{files: files, repo: repo, maxBytes: maxBytes, log: logger.With().Str("handler", "file").Logger()}
}

type fileResponse struct {
	ID          string  `json:"id"`
	BucketID    string  `json:"bucket_id"`
	OwnerID     *string `json:"owner_id,omitempty"`
	Filename    string  `json:"filename"`
	ObjectKey   string  `json:"object_key"`
	ContentType string  `json:"content_type"`
	Size        uint64  `json:"size"`
}

func toFileResponse(f *file.File) fileResponse {
	resp := fileResponse{
		ID: f.ID.String(), BucketID: f.BucketID.String(), Filename: f.Filename,
		ObjectKey: f.ObjectKey, ContentType: f.ContentType, Size: f.Size,
	}
	if f.OwnerID != nil {
		s := f.OwnerID.String()
		resp.OwnerID = &s
	}
	return resp
}

// principalFor builds the (requesterID, isAnon) pair the File Coordinator authorizes against, treating the
// anonymous role as a distinct caller with no owned resources.
func principalFor(c fiber.Ctx) (uuid.UUID, bool) {
	p, _ := auth.FromContext(c)
	return p.UserID, p.IsAnon
}

// InitiateUpload handles POST /files/initiate-upload.
func (h *FileHandler) InitiateUpload(c fiber.Ctx) error {
	requesterID, isAnon := principalFor(c)

	var body struct {
		BucketID    string `json:"bucket_id"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Size        uint64 `json:"size"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid request body")
	}
	if body.Filename == "" {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, "filename is required")
	}
	if h.maxBytes > 0 && body.Size > h.maxBytes {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, apierr.Validation, "file exceeds the maximum upload size")
	}

	bucketID, err := uuid.Parse(body.BucketID)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid bucket_id")
	}

	info, err := h.files.Initiate(c.Context(), file.InitiateParams{
		BucketID: bucketID, Filename: body.Filename, ContentType: body.ContentType,
		Size: body.Size, RequesterID: requesterID, IsAnon: isAnon,
	})
	if err != nil {
		return h.mapFileError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, fiber.Map{
		"file":       toFileResponse(info.File),
		"upload_url": info.UploadURL,
		"method":     info.Method,
	})
}

// DownloadInfo handles GET /files/{id}/download-info for the resolved Principal. The public counterpart, which forces
// the anonymous role, is PublicDownloadInfo.
func (h *FileHandler) DownloadInfo(c fiber.Ctx) error {
	return h.info(c, false)
}

// PublicDownloadInfo handles GET /files/public/{id}/download-info.
func (h *FileHandler) PublicDownloadInfo(c fiber.Ctx) error {
	return h.publicInfo(c, false)
}

// ViewInfo handles GET /files/{id}/view-info.
func (h *FileHandler) ViewInfo(c fiber.Ctx) error {
	return h.info(c, true)
}

// PublicViewInfo handles GET /files/public/{id}/view-info.
func (h *FileHandler) PublicViewInfo(c fiber.Ctx) error {
	return h.publicInfo(c, true)
}

func (h *FileHandler) info(c fiber.Ctx, isView bool) error {
	requesterID, isAnon := principalFor(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid file id")
	}

	var f *file.File
	var url string
	if isView {
		f, url, err = h.files.ViewInfo(c.Context(), id, requesterID, isAnon)
	} else {
		f, url, err = h.files.DownloadInfo(c.Context(), id, requesterID, isAnon)
	}
	if err != nil {
		return h.mapFileError(c, err)
	}
	return httputil.Success(c, fiber.Map{"file": toFileResponse(f), "url": url})
}

// publicInfo is identical to info but always authorizes as the anonymous role, matching the public route's "no
// bearer ticket required" contract even when one happens to be present.
func (h *FileHandler) publicInfo(c fiber.Ctx, isView bool) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid file id")
	}

	var f *file.File
	var url string
	if isView {
		f, url, err = h.files.ViewInfo(c.Context(), id, uuid.Nil, true)
	} else {
		f, url, err = h.files.DownloadInfo(c.Context(), id, uuid.Nil, true)
	}
	if err != nil {
		return h.mapFileError(c, err)
	}
	return httputil.Success(c, fiber.Map{"file": toFileResponse(f), "url": url})
}

// Delete handles DELETE /files/{id}.
func (h *FileHandler) Delete(c fiber.Ctx) error {
	principal, _ := auth.FromContext(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid file id")
	}

	if err := h.files.Delete(c.Context(), id, principal.UserID, principal.IsSuperuser); err != nil {
		return h.mapFileError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// List handles GET /files?bucket_id=....
func (h *FileHandler) List(c fiber.Ctx) error {
	bucketID, err := uuid.Parse(c.Query("bucket_id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "bucket_id query parameter is required")
	}

	files, err := h.repo.ListByBucket(c.Context(), bucketID)
	if err != nil {
		h.log.Error().Err(err).Msg("list files")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
	resp := make([]fileResponse, len(files))
	for i := range files {
		resp[i] = toFileResponse(&files[i])
	}
	return httputil.Success(c, resp)
}

func (h *FileHandler) mapFileError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, file.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierr.NotFound, "file not found")
	case errors.Is(err, file.ErrForbidden):
		return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "not authorized to access this file")
	case errors.Is(err, file.ErrUploadFailed):
		return httputil.Fail(c, fiber.StatusServiceUnavailable, apierr.StorageUnavailable, "object storage service is unavailable")
	default:
		h.log.Error().Err(err).Msg("unhandled file error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "an internal error occurred")
	}
}
