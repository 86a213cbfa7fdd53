package syncer

import (
	"context"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Source fetches the raw records for one category of an integration.
// Implementations wrap external provider APIs; the orchestrator treats a
// Fetch failure as a category-level error and moves on to the next category.
type Source interface {
	Fetch(ctx context.Context, integration *models.Integration, category models.CategoryConfig) ([]models.SourceRecord, error)
}
