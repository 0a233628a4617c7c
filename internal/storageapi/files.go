package storageapi

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/httputil"
	"github.com/selfdb-io/selfdb/internal/objectstore"
)

// sniffWindow is how many leading bytes of an upload are kept for the magic-byte signature check (§4.8, §C.5):
// enough to cover every format in magicSignatures plus the 12-byte WebP header.
const sniffWindow = 32

type presignedUploadRequest struct {
	ContentType string `json:"content_type"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

type presignedUploadResponse struct {
	UploadURL string `json:"upload_url"`
	Method    string `json:"method"`
}

// GenerateUploadURL handles POST /files/presigned-url/upload/:bucket/:key. Administrative only, called by the
// backend as step one of the upload protocol (§4.7); the URL returned is a direct link back to this same service's
// upload-direct endpoint, since presigning here is a naming convenience rather than a cryptographically signed
// capability (§C.4's simplification).
func (h *Handler) GenerateUploadURL(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}

	var req presignedUploadRequest
	_ = c.Bind().Body(&req) // ttl/content_type are advisory only; this endpoint does not embed a signed capability

	bucket, key := c.Params("bucket"), c.Params("*")
	if _, err := h.store.GetBucket(c.Context(), bucket); err != nil {
		return mapBucketError(c, err)
	}

	return httputil.Success(c, presignedUploadResponse{
		UploadURL: h.externalURL + "/files/upload-direct/" + bucket + "/" + key,
		Method:    "PUT",
	})
}

// UploadDirect handles PUT /files/upload-direct/:bucket/:key, the direct-PUT step of the upload protocol. The
// caller's own ticket is checked against the bucket's cached metadata: owner or superuser may always write, nobody
// else may. The body is read in full into memory rather than streamed to disk incrementally — no precedent for a
// true streaming request body exists elsewhere in this service, and uploads are already bounded by the server's
// body-size limit, so buffering once here is a deliberate simplification rather than an oversight.
func (h *Handler) UploadDirect(c fiber.Ctx) error {
	bucket, key := c.Params("bucket"), c.Params("*")

	meta, err := h.store.GetBucket(c.Context(), bucket)
	if err != nil {
		return mapBucketError(c, err)
	}
	if err := h.authorizeObjectAccess(c, meta, true); err != nil {
		return err
	}

	body, err := requestBody(c)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "missing file content")
	}

	contentType := c.Get("Content-Type")
	if ct := c.Query("content_type"); ct != "" {
		contentType = ct
	}
	checkUploadSignature(h, bucket, key, contentType, body)

	if _, err := h.store.PutObject(c.Context(), bucket, key, bytes.NewReader(body)); err != nil {
		if errors.Is(err, objectstore.ErrInvalidPath) {
			return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid object key")
		}
		h.log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("upload failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "failed to store object")
	}

	return httputil.Success(c, map[string]any{"bucket": bucket, "key": key, "size": len(body)})
}

// checkUploadSignature performs the light, non-rejecting header sniff described in §4.8/§C.5: a signature mismatch
// or a failed decode is logged, never rejected, since the declared content type is advisory and many legitimate
// uploads (non-image files) have nothing to sniff against.
func checkUploadSignature(h *Handler, bucket, key, contentType string, body []byte) {
	header := body
	if len(header) > sniffWindow {
		header = header[:sniffWindow]
	}
	if !objectstore.SignatureMatches(contentType, header) {
		h.log.Warn().Str("bucket", bucket).Str("key", key).Str("content_type", contentType).
			Msg("uploaded content does not match its declared content type")
		return
	}
	if _, isImage := map[string]struct{}{"image/png": {}, "image/jpeg": {}, "image/gif": {}, "image/webp": {}}[contentType]; isImage {
		if err := objectstore.ConfirmDecodable(bytes.NewReader(body)); err != nil {
			h.log.Warn().Err(err).Str("bucket", bucket).Str("key", key).
				Msg("uploaded image failed decode confirmation")
		}
	}
}

// Download handles GET /files/download/:bucket/:key, honouring a Range header.
func (h *Handler) Download(c fiber.Ctx) error {
	return h.serveObject(c, false)
}

// View handles GET /files/view/:bucket/:key?content_type=..., identical to Download but with the declared content
// type forced onto the response so browsers render inline instead of prompting a download.
func (h *Handler) View(c fiber.Ctx) error {
	return h.serveObject(c, true)
}

func (h *Handler) serveObject(c fiber.Ctx, isView bool) error {
	bucket, key := c.Params("bucket"), c.Params("*")

	meta, err := h.store.GetBucket(c.Context(), bucket)
	if err != nil {
		return mapBucketError(c, err)
	}
	if err := h.authorizeObjectAccess(c, meta, false); err != nil {
		return err
	}

	info, err := h.store.StatObject(c.Context(), bucket, key)
	if err != nil {
		return mapObjectError(c, err)
	}

	rangeHeader := c.Get("Range")
	start, end := objectstore.ParseRange(rangeHeader, info.Size())

	contentType := "application/octet-stream"
	if isView {
		if ct := c.Query("content_type"); ct != "" {
			contentType = ct
		}
	}
	c.Set("Content-Type", contentType)
	c.Set("Accept-Ranges", "bytes")

	if rangeHeader != "" {
		c.Status(fiber.StatusPartialContent)
		c.Set("Content-Range", contentRangeHeader(start, end, info.Size()))
	}

	store := h.store
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		if err := store.StreamRange(c.Context(), bucket, key, start, end, w); err != nil {
			h.log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("stream object failed")
		}
		_ = w.Flush()
	}))
	return nil
}

// DeleteObject handles DELETE /files/:bucket/:key. Administrative only — end users delete through the backend,
// which authorizes against the metadata database before calling here.
func (h *Handler) DeleteObject(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}
	if err := h.store.DeleteObject(c.Context(), c.Params("bucket"), c.Params("*")); err != nil {
		return mapObjectError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PurgeObjects handles DELETE /buckets/:name/objects, removing every object in a bucket without deleting the bucket
// itself (used when a bucket owner clears a bucket instead of deleting it, §4.8).
func (h *Handler) PurgeObjects(c fiber.Ctx) error {
	if err := h.requireAdmin(c); err != nil {
		return err
	}
	if err := h.store.PurgeObjects(c.Context(), c.Params("name")); err != nil {
		return mapBucketError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func mapObjectError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, objectstore.ErrObjectNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierr.NotFound, "object not found")
	case errors.Is(err, objectstore.ErrInvalidPath):
		return httputil.Fail(c, fiber.StatusBadRequest, apierr.Validation, "invalid object key")
	default:
		return httputil.Fail(c, fiber.StatusInternalServerError, apierr.InternalError, "storage operation failed")
	}
}

func contentRangeHeader(start, end, size int64) string {
	return "bytes " + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end, 10) + "/" + strconv.FormatInt(size, 10)
}

// requestBody reads the full request body, whether it arrived as a raw PUT body or as a single-field multipart form
// (some clients prefer multipart even for a single-file direct upload).
func requestBody(c fiber.Ctx) ([]byte, error) {
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return io.ReadAll(f)
	}

	body := c.Body()
	if len(body) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return body, nil
}
