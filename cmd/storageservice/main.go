package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/selfdb-io/selfdb/internal/config"
	"github.com/selfdb-io/selfdb/internal/httputil"
	"github.com/selfdb-io/selfdb/internal/objectstore"
	"github.com/selfdb-io/selfdb/internal/storageapi"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Storage service stopped")
	}
}

func run() error {
	cfg, err := config.LoadStorage()
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
		Str("root", cfg.StorageRoot).
		Msg("Starting SelfDB Storage Service")

	store, err := objectstore.NewStore(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("initialise object store: %w", err)
	}

	handler := storageapi.NewHandler(store, cfg.ExternalURL, cfg.SecretKey, cfg.TokenIssuer, log.Logger)

	app := fiber.New(fiber.Config{
		AppName:   "SelfDB Storage Service",
		BodyLimit: cfg.BodyLimitBytes(),
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger, "/health"))

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// The direct-upload endpoint is the one path an end user's browser hits without going through the backend's own
	// rate limiting, so it gets its own limiter here (mirroring the teacher's auth-route limiter pattern).
	uploadLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
	})
	storageapi.Register(app, handler, uploadLimiter)

	app.Use(func(c fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down storage service")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Storage service shutdown error")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Storage service listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
