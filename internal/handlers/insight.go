package handlers

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/repositories"
)

// InsightHandler serves derived metrics for the dashboard read path
type InsightHandler struct {
	repo *repositories.InsightRepository
}

// NewInsightHandler creates a new insight handler
func NewInsightHandler(repo *repositories.InsightRepository) *InsightHandler {
	return &InsightHandler{
		repo: repo,
	}
}

// RegisterRoutes registers the insight routes
func (h *InsightHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/insights", h.List)
}

// List handles GET /insights with optional category, name, and limit query
// parameters. Rows come back newest first.
func (h *InsightHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	insights, err := h.repo.List(ctx, c.QueryParam("category"), c.QueryParam("name"), limit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, insights)
}
