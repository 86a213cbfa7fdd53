package handlers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/syncer"
)

// SyncRunner launches one sync run for an integration.
type SyncRunner interface {
	RunSync(ctx context.Context, integrationID uuid.UUID) (*models.SyncOutcome, error)
}

// SyncHandler triggers on-demand syncs
type SyncHandler struct {
	runner SyncRunner
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{
		runner: runner,
	}
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/integrations/:id/sync", h.Trigger)
}

// Trigger handles POST /integrations/:id/sync. The sync runs inline; the
// response carries the full per-category outcome.
func (h *SyncHandler) Trigger(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	outcome, err := h.runner.RunSync(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrSyncAlreadyRunning):
			return Conflict("a sync is already in progress for this integration")
		case errors.Is(err, syncer.ErrIntegrationInactive):
			return UnprocessableEntity("integration is not active")
		default:
			return err
		}
	}

	return SuccessResponse(c, outcome)
}
