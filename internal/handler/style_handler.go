package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/middleware"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/store"
	"github.com/aiamusic/api/pkg/response"
)

// StyleHandler handles the style CRUD endpoints.
type StyleHandler struct {
	styles    *store.StyleStore
	validator *validator.Validate
}

func NewStyleHandler(styles *store.StyleStore, v *validator.Validate) *StyleHandler {
	return &StyleHandler{
		styles:    styles,
		validator: v,
	}
}

// List handles GET /api/v1/styles
func (h *StyleHandler) List(c *fiber.Ctx) error {
	styles, err := h.styles.List(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"styles": styles})
}

// Create handles POST /api/v1/styles
func (h *StyleHandler) Create(c *fiber.Ctx) error {
	var req model.CreateStyleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	style := &model.Style{
		Name:        req.Name,
		StylePrompt: req.StylePrompt,
		CreatedBy:   &userID,
	}
	if err := h.styles.Create(c.Context(), style); err != nil {
		if err == store.ErrDuplicateName {
			return response.Error(c, fiber.StatusConflict, response.CodeValidationError, "A style with this name already exists", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.Created(c, style)
}

// Get handles GET /api/v1/styles/:id
func (h *StyleHandler) Get(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid style id", nil)
	}

	style, err := h.styles.GetByID(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, style)
}

// Update handles PUT /api/v1/styles/:id
func (h *StyleHandler) Update(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid style id", nil)
	}

	var req model.UpdateStyleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	style, err := h.styles.GetByID(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}

	if req.Name != nil {
		style.Name = *req.Name
	}
	if req.StylePrompt != nil {
		style.StylePrompt = *req.StylePrompt
	}

	if err := h.styles.Save(c.Context(), style); err != nil {
		if err == store.ErrDuplicateName {
			return response.Error(c, fiber.StatusConflict, response.CodeValidationError, "A style with this name already exists", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, style)
}

// Delete handles DELETE /api/v1/styles/:id. Songs referencing the
// style keep their rows with the reference cleared.
func (h *StyleHandler) Delete(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid style id", nil)
	}

	if _, err := h.styles.GetByID(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	if err := h.styles.Delete(c.Context(), id); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"message": "Style deleted"})
}
