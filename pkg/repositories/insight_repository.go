package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const insightsTable = "insights"

var insightStruct = database.NewStruct(new(models.Insight))

// InsightRepository handles database operations for derived insight rows.
// The table is append-only: there is no update path.
type InsightRepository struct {
	*Repository
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(db database.DB, logger ectologger.Logger) *InsightRepository {
	return &InsightRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create appends a new insight row
func (r *InsightRepository) Create(ctx context.Context, insight *models.Insight) error {
	ctx, span := tracing.StartSpan(ctx, "InsightRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	insight.TenantID = tenantID

	if insight.ID == uuid.Nil {
		insight.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(insightsTable).
		Cols("id", "tenant_id", "category", "name", "value", "unit", "target", "period_start", "period_end", "metadata", "created_at").
		Values(insight.ID, insight.TenantID, insight.Category, insight.Name, insight.Value, insight.Unit,
			insight.Target, insight.PeriodStart, insight.PeriodEnd, insight.Metadata, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&insight.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"insight_name": insight.Name,
		}).Error("failed to create insight")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create insight")
	}

	return nil
}

// List retrieves insight rows for the current tenant, most recent first.
// Category and name filters are optional.
func (r *InsightRepository) List(ctx context.Context, category, name string, limit int) ([]models.Insight, error) {
	ctx, span := tracing.StartSpan(ctx, "InsightRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := insightStruct.SelectFrom(insightsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))
	if category != "" {
		sb.Where(sb.Equal("category", category))
	}
	if name != "" {
		sb.Where(sb.Equal("name", name))
	}
	sb.OrderBy("created_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var insights []models.Insight
	err = r.DB().SelectContext(ctx, &insights, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list insights")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list insights")
	}

	return insights, nil
}

// ListForPeriod retrieves all rows for a (category, name, period) triple in
// write order. Trend queries rely on every recompute run remaining visible.
func (r *InsightRepository) ListForPeriod(ctx context.Context, category, name string, periodStart, periodEnd time.Time) ([]models.Insight, error) {
	ctx, span := tracing.StartSpan(ctx, "InsightRepository.ListForPeriod")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := insightStruct.SelectFrom(insightsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("category", category),
		sb.Equal("name", name),
		sb.Equal("period_start", periodStart),
		sb.Equal("period_end", periodEnd),
	)
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	var insights []models.Insight
	err = r.DB().SelectContext(ctx, &insights, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list insights for period")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list insights for period")
	}

	return insights, nil
}
