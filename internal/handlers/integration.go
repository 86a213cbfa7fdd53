package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

var validate = validator.New()

// IntegrationHandler handles integration-related API requests
type IntegrationHandler struct {
	repo *repositories.IntegrationRepository
}

// NewIntegrationHandler creates a new integration handler
func NewIntegrationHandler(repo *repositories.IntegrationRepository) *IntegrationHandler {
	return &IntegrationHandler{
		repo: repo,
	}
}

// CreateIntegrationRequest is the request body for creating an integration
type CreateIntegrationRequest struct {
	Service      string                  `json:"service" validate:"required"`
	Name         string                  `json:"name" validate:"required"`
	Categories   []models.CategoryConfig `json:"categories" validate:"omitempty,dive"`
	Active       *bool                   `json:"active,omitempty"`
	SyncSchedule *string                 `json:"sync_schedule,omitempty"`
}

// UpdateCategoriesRequest is the request body for replacing an integration's
// category configuration
type UpdateCategoriesRequest struct {
	Categories []models.CategoryConfig `json:"categories" validate:"required,min=1,dive"`
}

// RegisterRoutes registers the integration routes
func (h *IntegrationHandler) RegisterRoutes(g *echo.Group) {
	integrations := g.Group("/integrations")
	integrations.POST("", h.Create)
	integrations.GET("", h.List)
	integrations.GET("/:id", h.Get)
	integrations.PUT("/:id/categories", h.UpdateCategories)
	integrations.DELETE("/:id", h.Delete)
}

// Create handles POST /integrations
func (h *IntegrationHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req CreateIntegrationRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return UnprocessableEntity(err.Error())
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	integration := &models.Integration{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Service:      req.Service,
		Name:         req.Name,
		Categories:   database.NewJSONB(req.Categories),
		Active:       active,
		SyncSchedule: req.SyncSchedule,
	}

	if err := h.repo.Create(ctx, integration); err != nil {
		return err
	}

	return CreatedResponse(c, integration)
}

// List handles GET /integrations
func (h *IntegrationHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	integrations, err := h.repo.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, integrations)
}

// Get handles GET /integrations/:id
func (h *IntegrationHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	integration, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, integration)
}

// UpdateCategories handles PUT /integrations/:id/categories
func (h *IntegrationHandler) UpdateCategories(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateCategoriesRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return UnprocessableEntity(err.Error())
	}

	integration, err := h.repo.UpdateCategories(ctx, id, req.Categories)
	if err != nil {
		return err
	}

	return SuccessResponse(c, integration)
}

// Delete handles DELETE /integrations/:id
func (h *IntegrationHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}
