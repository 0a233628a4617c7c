package corspolicy

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
)

// ArbiterConfig controls the headers the CORS Arbiter echoes back to allowed origins.
type ArbiterConfig struct {
	AllowedMethods   string
	AllowedHeaders   string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// DefaultArbiterConfig returns the configuration the teacher's own frontend needs: the usual REST verbs plus the
// headers the Auth Gate reads (apikey, Authorization).
func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		AllowedMethods:   "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowedHeaders:   "Content-Type,Authorization,apikey",
		AllowCredentials: true,
		MaxAgeSeconds:    600,
	}
}

// Arbiter enforces the CORS Arbiter described in §4.3: a preflight OPTIONS is answered directly; every other request
// gets Access-Control-* response headers added iff its Origin is allowed.
func Arbiter(cache *Cache, cfg ArbiterConfig) fiber.Handler {
	maxAge := strconv.Itoa(cfg.MaxAgeSeconds)
	return func(c fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" {
			return c.Next()
		}

		allowed := cache.IsAllowed(c.Context(), origin)

		if c.Method() == fiber.MethodOptions {
			if !allowed {
				return c.SendStatus(fiber.StatusForbidden)
			}
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", cfg.AllowedMethods)
			c.Set("Access-Control-Allow-Headers", cfg.AllowedHeaders)
			c.Set("Access-Control-Max-Age", maxAge)
			if cfg.AllowCredentials {
				c.Set("Access-Control-Allow-Credentials", "true")
			}
			return c.SendStatus(fiber.StatusOK)
		}

		if allowed {
			c.Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				c.Set("Access-Control-Allow-Credentials", "true")
			}
		}
		return c.Next()
	}
}
