package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/selfdb-io/selfdb/internal/httputil"
)

// HealthHandler serves the liveness/readiness endpoints.
type HealthHandler struct {
	DB *pgxpool.Pool
}

// Health handles GET /health: a liveness check that never touches the database.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	return httputil.Success(c, fiber.Map{"status": "ok"})
}

// HealthDB handles GET /health/db: a readiness check that pings PostgreSQL.
func (h *HealthHandler) HealthDB(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	if err := h.DB.Ping(ctx); err != nil {
		return httputil.SuccessStatus(c, fiber.StatusServiceUnavailable, fiber.Map{"status": "unavailable"})
	}
	return httputil.Success(c, fiber.Map{"status": "ok"})
}
