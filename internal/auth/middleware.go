package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"crm-backend/internal/engine"
	"crm-backend/internal/metadata"
)

// AuthMiddleware returns a Fiber middleware that validates JWT tokens and
// puts the UserContext on both the Fiber locals and the request context,
// where the data provider's audit trail reads it.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		user := &metadata.UserContext{
			ID:    claims.Subject,
			Email: claims.Email,
			Roles: claims.Roles,
		}
		c.Locals("user", user)
		c.SetUserContext(metadata.WithUser(c.UserContext(), user))

		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated user has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*metadata.UserContext)
		if !ok || user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
