package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/selfdb-io/selfdb/internal/api"
	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/bootstrap"
	"github.com/selfdb-io/selfdb/internal/bucket"
	"github.com/selfdb-io/selfdb/internal/config"
	"github.com/selfdb-io/selfdb/internal/corspolicy"
	"github.com/selfdb-io/selfdb/internal/docs"
	"github.com/selfdb-io/selfdb/internal/file"
	"github.com/selfdb-io/selfdb/internal/httputil"
	"github.com/selfdb-io/selfdb/internal/notify"
	"github.com/selfdb-io/selfdb/internal/postgres"
	"github.com/selfdb-io/selfdb/internal/realtime"
	"github.com/selfdb-io/selfdb/internal/storageclient"
	"github.com/selfdb-io/selfdb/internal/user"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// storageClientTimeout bounds a single request to the storage service, which is always on the same internal
// network and should never take this long under normal operation.
const storageClientTimeout = 30 * time.Second

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Backend stopped")
	}
}

func run() error {
	cfg, err := config.LoadBackend()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Str("env", cfg.ServerEnv).
		Msg("Starting SelfDB Backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err := bootstrap.EnsureFirstSuperuser(ctx, pool, cfg, log.Logger); err != nil {
		return fmt.Errorf("bootstrap first superuser: %w", err)
	}

	userRepo := user.NewPGRepository(pool, log.Logger)
	bucketRepo := bucket.NewPGRepository(pool, log.Logger)
	fileRepo := file.NewPGRepository(pool, log.Logger)
	corsRepo := corspolicy.NewPGRepository(pool, log.Logger)

	refreshStore := auth.NewRefreshStore(pool)
	authSvc, err := auth.NewService(userRepo, refreshStore, cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("build auth service: %w", err)
	}
	gate := auth.NewGate(cfg.SecretKey, cfg.ServerURL, cfg.AnonKey, userRepo,
		"/api/v1/health", "/api/v1/health/db", "/api/v1/docs", "/api/v1/openapi.json")

	storageStore := storageclient.New(cfg.StorageServiceURL, cfg.StorageServiceExternalURL,
		cfg.SecretKey, cfg.ServerURL, cfg.StorageHandshakeTTL, storageClientTimeout)

	bucketCoordinator := bucket.NewCoordinator(bucketRepo, storageStore, pool, log.Logger)
	fileCoordinator := file.NewCoordinator(fileRepo, bucketCoordinator, storageStore, cfg.PresignedUploadTTL, log.Logger)

	policyCache := corspolicy.NewCache(corsRepo, cfg.PolicyCacheTTL, cfg.CORSAllowedOrigins, log.Logger)
	go policyCache.Run(ctx)

	hub := realtime.NewHub(cfg.SecretKey, cfg.ServerURL, cfg.AnonKey, userRepo, log.Logger)

	bridge := notify.NewBridge(pool, hub, cfg.NotifyReconnectInitial, cfg.NotifyReconnectMax, log.Logger)
	if err := notify.EnsureTriggers(ctx, pool, notify.ManagedTables, log.Logger); err != nil {
		return fmt.Errorf("ensure notification triggers: %w", err)
	}
	go bridge.Run(ctx, notify.ManagedTables)

	handlers := api.Handlers{
		Health:   &api.HealthHandler{DB: pool},
		Auth:     api.NewAuthHandler(authSvc, log.Logger),
		User:     api.NewUserHandler(userRepo, authSvc, cfg, log.Logger),
		Bucket:   api.NewBucketHandler(bucketCoordinator, fileRepo, log.Logger),
		File:     api.NewFileHandler(fileCoordinator, fileRepo, uint64(cfg.MaxUploadSizeMB)*1024*1024, log.Logger),
		CORS:     api.NewCORSHandler(corsRepo, policyCache, log.Logger),
		Realtime: api.NewRealtimeHandler(hub),
		Docs:     docs.Mount,
	}

	app := fiber.New(fiber.Config{
		AppName:   "SelfDB Backend",
		BodyLimit: cfg.BodyLimitBytes(),
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger, "/api/v1/health"))
	app.Use(corspolicy.Arbiter(policyCache, corspolicy.DefaultArbiterConfig()))

	api.Register(app, gate, handlers, api.RateLimits{
		APIRequests:       cfg.RateLimitAPIRequests,
		APIWindowSeconds:  cfg.RateLimitAPIWindowSeconds,
		AuthRequests:      cfg.RateLimitAuthCount,
		AuthWindowSeconds: cfg.RateLimitAuthWindowSeconds,
	})

	app.Use(func(c fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down backend")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Backend shutdown error")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Backend listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
