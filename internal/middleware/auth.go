package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/auth"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/pkg/response"
)

// UserResolver maps OIDC claims onto a local user record.
type UserResolver func(ctx context.Context, claims *auth.Claims) (*model.User, error)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	resolver  UserResolver
	jwtSecret string // fallback for first-party HMAC tokens
}

// NewAuthMiddleware creates auth middleware using only HMAC signing.
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

// NewAuthMiddlewareWithOIDC creates auth middleware with both JWKS and
// first-party HMAC support. The resolver maps verified OIDC claims to a
// local user row.
func NewAuthMiddlewareWithOIDC(verifier auth.TokenVerifier, resolver UserResolver, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		resolver:  resolver,
		jwtSecret: jwtSecret,
	}
}

// Authenticate validates JWT token from Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		tokenString := parts[1]

		// Try OIDC JWKS verification first
		if m.verifier != nil {
			claims, err := m.verifier.Validate(tokenString)
			if err == nil {
				user, err := m.resolver(c.Context(), claims)
				if err != nil {
					return response.Unauthorized(c, "Unknown user")
				}
				c.Locals("userId", user.ID)
				c.Locals("username", user.Username)
				return c.Next()
			}
			if m.jwtSecret == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
		}

		// Fallback to first-party HMAC verification
		if m.jwtSecret != "" {
			claims, err := auth.ValidateLegacyToken(tokenString, m.jwtSecret)
			if err != nil {
				return response.Unauthorized(c, "Invalid or expired token")
			}

			c.Locals("userId", claims.UserID)
			c.Locals("username", claims.Username)
			return c.Next()
		}

		return response.Unauthorized(c, "Authentication not configured")
	}
}

// GetUserID extracts the local user ID from context
func GetUserID(c *fiber.Ctx) uint {
	if userID, ok := c.Locals("userId").(uint); ok {
		return userID
	}
	return 0
}

// GetUsername extracts the username from context
func GetUsername(c *fiber.Ctx) string {
	if username, ok := c.Locals("username").(string); ok {
		return username
	}
	return ""
}
