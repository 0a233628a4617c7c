package httputil

import (
	"github.com/gofiber/fiber/v3"

	"github.com/selfdb-io/selfdb/internal/apierr"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends a JSON error response with the given status, code, and message.
func Fail(c fiber.Ctx, status int, code apierr.Code, message string) error {
	return c.Status(status).JSON(apierr.Response{
		Error: apierr.Body{
			Code:    code,
			Message: message,
		},
	})
}
