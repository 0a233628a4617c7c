// Package docs serves the control plane's API description: a static OpenAPI document and a browsable UI for it.
package docs

import (
	_ "embed"

	"github.com/gofiber/fiber/v3"
)

//go:embed openapi.json
var spec []byte

//go:embed ui.html
var ui []byte

// Spec handles GET /openapi.json.
func Spec(c fiber.Ctx) error {
	c.Set("Content-Type", "application/json")
	return c.Send(spec)
}

// UI handles GET /docs: a Swagger UI page pointed at Spec, loaded from a CDN rather than a vendored asset bundle.
func UI(c fiber.Ctx) error {
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(ui)
}

// Mount registers the doc routes on router, matching the signature api.Handlers.Docs expects.
func Mount(router fiber.Router) {
	router.Get("/openapi.json", Spec)
	router.Get("/docs", UI)
}
