package api

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/selfdb-io/selfdb/internal/auth"
)

func testServerApp(t *testing.T) *fiber.App {
	t.Helper()
	repo := newFakeUserRepo()
	gate := auth.NewGate("test-secret-key-at-least-32-bytes-long", "https://test.example.com", "anon-key-value", repo,
		"/api/v1/health", "/api/v1/health/db")

	app := fiber.New()
	Register(app, gate, Handlers{
		Health: &HealthHandler{},
	}, RateLimits{
		APIRequests: 1000, APIWindowSeconds: 60,
		AuthRequests: 1000, AuthWindowSeconds: 60,
	})
	app.Use(func(c fiber.Ctx) error { return fiber.ErrNotFound })
	return app
}

func TestServerHealthIsPublic(t *testing.T) {
	t.Parallel()
	app := testServerApp(t)

	resp := doReq(t, app, jsonReq(http.MethodGet, "/api/v1/health", ""))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
}

func TestServerProtectedRouteRequiresCredentials(t *testing.T) {
	t.Parallel()
	app := testServerApp(t)

	resp := doReq(t, app, jsonReq(http.MethodGet, "/api/v1/users/me", ""))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestServerUnknownRouteNotFound(t *testing.T) {
	t.Parallel()
	app := testServerApp(t)

	resp := doReq(t, app, jsonReq(http.MethodGet, "/api/v1/does-not-exist", ""))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}
}

func TestServerCORSOriginsRequireSuperuser(t *testing.T) {
	t.Parallel()
	app := testServerApp(t)

	req := jsonReq(http.MethodGet, "/api/v1/cors/origins", "")
	req.Header.Set("apikey", "anon-key-value")
	resp := doReq(t, app, req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
}
