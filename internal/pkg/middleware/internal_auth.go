package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClipFox/internal/pkg/env"
)

// InternalAuthMiddleware guards operational endpoints such as the poll
// trigger with a shared token from INTERNAL_API_TOKEN. With no token
// configured the endpoints are disabled entirely.
func InternalAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := env.GetEnv("INTERNAL_API_TOKEN", "")
		if expected == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Internal endpoints are not configured"})
		}

		got := strings.TrimSpace(c.Get("X-Internal-Token"))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid internal token"})
		}

		return c.Next()
	}
}
