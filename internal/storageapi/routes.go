package storageapi

import "github.com/gofiber/fiber/v3"

// Register mounts every storage service route onto app. Unlike the backend's route groups, authorization here is
// not a middleware concern: each handler decides for itself whether the caller needs an administrative handshake
// token or an end user's own ticket, since that decision depends on the bucket being addressed (§4.8).
//
// uploadMiddleware is applied only to the direct-upload route, the one endpoint an end user's browser hits without
// passing through the backend's own rate limiting; callers typically pass a limiter here.
func Register(app *fiber.App, h *Handler, uploadMiddleware ...fiber.Handler) {
	buckets := app.Group("/buckets")
	buckets.Post("/", h.CreateBucket)
	buckets.Get("/", h.ListBuckets)
	buckets.Get("/:name", h.GetBucket)
	buckets.Put("/:name", h.UpdateBucket)
	buckets.Delete("/:name", h.DeleteBucket)
	buckets.Delete("/:name/objects", h.PurgeObjects)

	// Object keys may contain "/" (nested paths within a bucket), so the key is captured via the wildcard segment
	// rather than a plain ":key" parameter, which Fiber would stop at the first slash.
	files := app.Group("/files")
	files.Post("/presigned-url/upload/:bucket/*", h.GenerateUploadURL)
	files.Put("/upload-direct/:bucket/*", append(uploadMiddleware, h.UploadDirect)...)
	files.Get("/download/:bucket/*", h.Download)
	files.Get("/view/:bucket/*", h.View)
	files.Delete("/:bucket/*", h.DeleteObject)
}
