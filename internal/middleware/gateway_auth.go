package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by the edge gateway's ForwardAuth and populates context locals.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rawID := c.Get("X-User-Id")
		if rawID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		userID, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			return response.Unauthorized(c, "Invalid user identity header")
		}

		c.Locals("userId", uint(userID))
		c.Locals("username", c.Get("X-User-Name"))

		return c.Next()
	}
}
