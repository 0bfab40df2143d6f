package handler

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/auth"
	"github.com/aiamusic/api/internal/middleware"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/service"
	"github.com/aiamusic/api/internal/store"
	"github.com/aiamusic/api/pkg/response"
)

// AuthHandler handles registration, login and ForwardAuth verification.
type AuthHandler struct {
	service   *service.AuthService
	users     *store.UserStore
	validator *validator.Validate
	jwtSecret string
}

func NewAuthHandler(svc *service.AuthService, users *store.UserStore, v *validator.Validate, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		service:   svc,
		users:     users,
		validator: v,
		jwtSecret: jwtSecret,
	}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Register(c.Context(), &req)
	if err != nil {
		if err == service.ErrUserExists {
			return response.Error(c, fiber.StatusConflict, response.CodeValidationError, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req model.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Login(c.Context(), &req)
	if err != nil {
		if err == service.ErrInvalidCredentials || err == service.ErrUserInactive {
			return response.Unauthorized(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.service.GetUser(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, user)
}

// Users handles GET /api/v1/auth/users
func (h *AuthHandler) Users(c *fiber.Ctx) error {
	users, err := h.users.List(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"users": users})
}

// Verify handles GET /api/v1/auth/verify — called by the gateway's
// ForwardAuth. Returns 200 with X-User-* headers on success, 401 on
// failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := auth.ValidateLegacyToken(parts[1], h.jwtSecret)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", strconv.FormatUint(uint64(claims.UserID), 10))
	c.Set("X-User-Name", claims.Username)
	return c.SendStatus(fiber.StatusOK)
}
