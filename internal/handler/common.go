package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/service"
	"github.com/aiamusic/api/pkg/response"
)

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// parseID reads a positive integer path parameter.
func parseID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// serviceError maps common service failures onto HTTP responses.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case service.IsNotFound(err):
		return response.NotFound(c, "Record not found")
	case err == service.ErrForbidden:
		return response.Forbidden(c, "You do not own this record")
	default:
		return response.ServiceError(c, err.Error())
	}
}
