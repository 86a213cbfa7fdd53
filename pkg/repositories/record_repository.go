package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const recordsTable = "category_records"

var recordStruct = database.NewStruct(new(models.CategoryRecord))

// RecordRepository handles database operations for reconciled category records
type RecordRepository struct {
	*Repository
}

// NewRecordRepository creates a new category record repository
func NewRecordRepository(db database.DB, logger ectologger.Logger) *RecordRepository {
	return &RecordRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByNaturalKey retrieves a record by its source-stable key. Returns nil
// (not an error) when no record exists, since absence is the normal insert
// path during reconciliation.
func (r *RecordRepository) GetByNaturalKey(ctx context.Context, category, naturalKey string) (*models.CategoryRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.GetByNaturalKey")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := recordStruct.SelectFrom(recordsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("category", category), sb.Equal("natural_key", naturalKey))

	query, args := sb.Build()
	var record models.CategoryRecord
	err = r.DB().GetContext(ctx, &record, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"category":    category,
			"natural_key": naturalKey,
		}).Error("failed to get record by natural key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get record by natural key")
	}

	return &record, nil
}

// Upsert writes a record keyed by (tenant, category, natural_key). The insert
// carries an ON CONFLICT DO UPDATE clause so a concurrent insert of the same
// key can never produce a duplicate row; created_at is preserved on conflict.
func (r *RecordRepository) Upsert(ctx context.Context, record *models.CategoryRecord) error {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.Upsert")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	record.TenantID = tenantID

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(recordsTable).
		Cols("id", "tenant_id", "category", "natural_key", "attributes", "external_id", "external_url", "metadata", "created_at", "updated_at", "synced_at").
		Values(record.ID, record.TenantID, record.Category, record.NaturalKey, record.Attributes,
			record.ExternalID, record.ExternalURL, record.Metadata,
			record.CreatedAt, record.UpdatedAt, record.SyncedAt)

	ub := ib.OnConflict("tenant_id", "category", "natural_key")
	ub.Set(
		ub.Assign("attributes", database.Excluded("attributes")),
		ub.Assign("external_id", database.Excluded("external_id")),
		ub.Assign("external_url", database.Excluded("external_url")),
		ub.Assign("metadata", database.Excluded("metadata")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
		ub.Assign("synced_at", database.Excluded("synced_at")),
	)
	ib.SQL("RETURNING id, created_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"category":    record.Category,
			"natural_key": record.NaturalKey,
		}).Error("failed to upsert record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert record")
	}

	return nil
}

// attributeText renders the SQL expression reading a JSONB attribute as
// text. sqlbuilder cannot bind a parameter inside a column expression, so the
// key is inlined as an escaped string literal.
func attributeText(field string) string {
	return fmt.Sprintf("attributes->>'%s'", strings.ReplaceAll(field, "'", "''"))
}

// periodColumn returns the SQL expression locating a record in time. When the
// category stores its own date in an attribute, that wins over created_at.
func periodColumn(dateField string) string {
	if dateField == "" {
		return "created_at"
	}
	return fmt.Sprintf("COALESCE((%s)::timestamptz, created_at)", attributeText(dateField))
}

// SumInPeriod sums a numeric attribute over records of a category inside the
// closed interval [start, end]. Missing or non-numeric values count as zero.
func (r *RecordRepository) SumInPeriod(ctx context.Context, category, field, dateField string, start, end time.Time) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.SumInPeriod")
	defer span.End()

	return r.aggregateInPeriod(ctx, "SUM", category, field, dateField, start, end)
}

// AvgInPeriod averages a numeric attribute over records of a category inside
// the closed interval [start, end]. An empty period yields zero.
func (r *RecordRepository) AvgInPeriod(ctx context.Context, category, field, dateField string, start, end time.Time) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.AvgInPeriod")
	defer span.End()

	return r.aggregateInPeriod(ctx, "AVG", category, field, dateField, start, end)
}

func (r *RecordRepository) aggregateInPeriod(ctx context.Context, fn, category, field, dateField string, start, end time.Time) (float64, error) {
	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return 0, err
	}

	query, args := buildAggregateQuery(tenantID, fn, category, field, dateField, start, end)
	var value float64
	if err := r.DB().GetContext(ctx, &value, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"category": category,
			"field":    field,
			"fn":       fn,
		}).Error("failed to aggregate records in period")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate records")
	}

	return value, nil
}

func buildAggregateQuery(tenantID uuid.UUID, fn, category, field, dateField string, start, end time.Time) (string, []any) {
	sb := database.NewSelectBuilder()
	sb.Select(fmt.Sprintf("COALESCE(%s(NULLIF(%s, '')::numeric), 0)", fn, attributeText(field))).
		From(recordsTable)
	period := periodColumn(dateField)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("category", category),
		sb.GreaterEqualThan(period, start),
		sb.LessEqualThan(period, end),
	)

	return sb.Build()
}

// CountInPeriod counts records of a category inside [start, end] matching the
// given attribute equality filters. Filters may be nil for a plain count.
func (r *RecordRepository) CountInPeriod(ctx context.Context, category, dateField string, filters map[string]string, start, end time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.CountInPeriod")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return 0, err
	}

	query, args := buildCountQuery(tenantID, category, dateField, filters, start, end)
	var count int64
	if err := r.DB().GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"category": category,
		}).Error("failed to count records in period")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count records")
	}

	return count, nil
}

func buildCountQuery(tenantID uuid.UUID, category, dateField string, filters map[string]string, start, end time.Time) (string, []any) {
	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(recordsTable)
	period := periodColumn(dateField)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("category", category),
		sb.GreaterEqualThan(period, start),
		sb.LessEqualThan(period, end),
	)
	for field, value := range filters {
		sb.Where(sb.Equal(attributeText(field), value))
	}

	return sb.Build()
}

// DeleteByTenantID deletes all records for a tenant (for testing cleanup)
func (r *RecordRepository) DeleteByTenantID(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.DeleteByTenantID")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(recordsTable).
		Where(db.Equal("tenant_id", tenantID))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
