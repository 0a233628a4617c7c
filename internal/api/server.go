// Package api wires SelfDB's control-plane HTTP handlers: auth, user, bucket, file, CORS-policy, realtime upgrade,
// and health endpoints, registered under the versioned prefix spec §6.1 names.
package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"

	"github.com/selfdb-io/selfdb/internal/auth"
)

// Handlers groups every handler Register mounts. Built by cmd/backend's wiring, not by this package.
type Handlers struct {
	Health   *HealthHandler
	Auth     *AuthHandler
	User     *UserHandler
	Bucket   *BucketHandler
	File     *FileHandler
	CORS     *CORSHandler
	Realtime *RealtimeHandler
	Docs     func(app fiber.Router) // optional: mounts /docs and /openapi.json when non-nil
}

// RateLimits configures the two limiter tiers applied across the API: a generous one for ordinary traffic, a
// stricter one for the unauthenticated auth routes that are the natural target of credential stuffing.
type RateLimits struct {
	APIRequests       int
	APIWindowSeconds  int
	AuthRequests      int
	AuthWindowSeconds int
}

// Register mounts every route under /api/v1, applying the Auth Gate's required PrincipalClass per group exactly as
// spec §4.2/§6.1 describe it.
func Register(app *fiber.App, gate *auth.Gate, h Handlers, limits RateLimits) {
	apiLimiter := limiter.New(limiter.Config{
		Max:        limits.APIRequests,
		Expiration: time.Duration(limits.APIWindowSeconds) * time.Second,
	})
	authLimiter := limiter.New(limiter.Config{
		Max:        limits.AuthRequests,
		Expiration: time.Duration(limits.AuthWindowSeconds) * time.Second,
	})

	v1 := app.Group("/api/v1")
	v1.Use(apiLimiter)

	v1.Get("/health", h.Health.Health)
	v1.Get("/health/db", h.Health.HealthDB)

	if h.Docs != nil {
		h.Docs(v1)
	}

	authGroup := v1.Group("/auth", gate.Require(auth.Any))
	authGroup.Use(authLimiter)
	authGroup.Post("/register", h.Auth.Register)
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Post("/refresh", h.Auth.Refresh)

	userGroup := v1.Group("/users")
	userGroup.Get("/me", gate.Require(auth.ActiveUser), h.User.GetMe)
	userGroup.Put("/me", gate.Require(auth.ActiveUser), h.User.UpdateMe)
	userGroup.Put("/me/password", gate.Require(auth.ActiveUser), h.User.UpdatePassword)
	userGroup.Delete("/me", gate.Require(auth.ActiveUser), h.User.DeleteMe)
	userGroup.Get("/me/anon-key", gate.Require(auth.ActiveUser), h.User.GetMyAnonKey)
	userGroup.Get("/count", gate.Require(auth.Superuser), h.User.Count)
	userGroup.Get("/", gate.Require(auth.Superuser), h.User.List)
	userGroup.Post("/", gate.Require(auth.Superuser), h.User.Create)
	userGroup.Get("/:id", gate.Require(auth.ActiveUser), h.User.Get)
	userGroup.Put("/:id", gate.Require(auth.Superuser), h.User.Update)
	userGroup.Delete("/:id", gate.Require(auth.Superuser), h.User.Delete)

	bucketGroup := v1.Group("/buckets")
	bucketGroup.Get("/public", gate.Require(auth.AnonOrUser), h.Bucket.ListPublic)
	bucketGroup.Get("/", gate.Require(auth.ActiveUser), h.Bucket.List)
	bucketGroup.Post("/", gate.Require(auth.ActiveUser), h.Bucket.Create)
	bucketGroup.Get("/:id", gate.Require(auth.AnonOrUser), h.Bucket.Get)
	bucketGroup.Put("/:id", gate.Require(auth.ActiveUser), h.Bucket.Update)
	bucketGroup.Delete("/:id", gate.Require(auth.ActiveUser), h.Bucket.Delete)
	bucketGroup.Get("/:id/files", gate.Require(auth.AnonOrUser), h.Bucket.ListFiles)

	fileGroup := v1.Group("/files")
	fileGroup.Get("/public/:id/download-info", gate.Require(auth.Any), h.File.PublicDownloadInfo)
	fileGroup.Get("/public/:id/view-info", gate.Require(auth.Any), h.File.PublicViewInfo)
	fileGroup.Get("/", gate.Require(auth.AnonOrUser), h.File.List)
	fileGroup.Post("/initiate-upload", gate.Require(auth.AnonOrUser), h.File.InitiateUpload)
	fileGroup.Get("/:id/download-info", gate.Require(auth.AnonOrUser), h.File.DownloadInfo)
	fileGroup.Get("/:id/view-info", gate.Require(auth.AnonOrUser), h.File.ViewInfo)
	fileGroup.Delete("/:id", gate.Require(auth.ActiveUser), h.File.Delete)

	corsGroup := v1.Group("/cors", gate.Require(auth.Superuser))
	corsGroup.Get("/origins", h.CORS.List)
	corsGroup.Post("/origins", h.CORS.Create)
	corsGroup.Get("/origins/:id", h.CORS.Get)
	corsGroup.Put("/origins/:id", h.CORS.Update)
	corsGroup.Delete("/origins/:id", h.CORS.Delete)
	corsGroup.Post("/validate", h.CORS.Validate)
	corsGroup.Post("/refresh-cache", h.CORS.RefreshCache)

	v1.Get("/realtime/ws", h.Realtime.Upgrade)
}
