package syncer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
)

// RecordStore is the slice of the record repository the reconciler needs.
type RecordStore interface {
	GetByNaturalKey(ctx context.Context, category, naturalKey string) (*models.CategoryRecord, error)
	Upsert(ctx context.Context, record *models.CategoryRecord) error
}

// Reconciler folds a batch of source records into category_records by
// natural key. Each record is processed independently; a failure is counted
// and never aborts the rest of the batch.
type Reconciler struct {
	records RecordStore
	logger  ectologger.Logger
}

func NewReconciler(records RecordStore, logger ectologger.Logger) *Reconciler {
	return &Reconciler{
		records: records,
		logger:  logger,
	}
}

// Reconcile upserts the batch for one category and reports how many records
// were added, updated, and failed. Running the same batch twice yields the
// same stored state, with every record counted as updated the second time.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID uuid.UUID, category models.CategoryConfig, batch []models.SourceRecord) models.CategoryOutcome {
	outcome := models.CategoryOutcome{}

	for i := range batch {
		added, naturalKey, err := r.reconcileOne(ctx, tenantID, category, &batch[i])
		if err != nil {
			outcome.Errors++
			r.logger.WithContext(ctx).WithError(err).
				WithFields(failureFields(tenantID, category.Name, i, naturalKey)).
				Warn("Failed to reconcile record")
			continue
		}
		if added {
			outcome.Added++
		} else {
			outcome.Updated++
		}
	}

	return outcome
}

// failureFields identifies a failed record by its natural key; the batch
// position is the fallback when no key could be derived.
func failureFields(tenantID uuid.UUID, category string, index int, naturalKey string) map[string]any {
	fields := map[string]any{
		"tenant_id": tenantID.String(),
		"category":  category,
	}
	if naturalKey != "" {
		fields["natural_key"] = naturalKey
	} else {
		fields["record"] = index
	}
	return fields
}

func (r *Reconciler) reconcileOne(ctx context.Context, tenantID uuid.UUID, category models.CategoryConfig, rec *models.SourceRecord) (added bool, naturalKey string, err error) {
	naturalKey, err = naturalKeyOf(category, rec)
	if err != nil {
		return false, "", err
	}

	attrs := make(map[string]any, len(category.Fields))
	for _, field := range category.Fields {
		if value, ok := rec.Fields[field]; ok {
			attrs[field] = value
		}
	}

	now := time.Now().UTC()
	createdAt := resolveTime(rec.CreatedAt, rec.Fields, category.CreatedAtField, now)
	updatedAt := resolveTime(rec.UpdatedAt, rec.Fields, category.UpdatedAtField, now)

	existing, err := r.records.GetByNaturalKey(ctx, category.Name, naturalKey)
	if err != nil {
		return false, naturalKey, err
	}
	if existing != nil {
		// the original created_at survives updates
		createdAt = existing.CreatedAt
	}

	record := &models.CategoryRecord{
		TenantID:   tenantID,
		Category:   category.Name,
		NaturalKey: naturalKey,
		Attributes: database.NewJSONB(attrs),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		SyncedAt:   now,
	}
	if rec.ExternalID != "" {
		record.ExternalID = &rec.ExternalID
	}
	if rec.ExternalURL != "" {
		record.ExternalURL = &rec.ExternalURL
	}
	if rec.Metadata != nil {
		record.Metadata = database.NewJSONB(rec.Metadata)
	}
	if existing != nil {
		record.ID = existing.ID
	}

	if err := r.records.Upsert(ctx, record); err != nil {
		return false, naturalKey, err
	}
	return existing == nil, naturalKey, nil
}

func naturalKeyOf(category models.CategoryConfig, rec *models.SourceRecord) (string, error) {
	raw, ok := rec.Fields[category.NaturalKeyField]
	if !ok || raw == nil {
		return "", fmt.Errorf("record is missing natural key field %q", category.NaturalKeyField)
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("record has empty natural key field %q", category.NaturalKeyField)
		}
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("natural key field %q has unsupported type %T", category.NaturalKeyField, raw)
	}
}

// resolveTime prefers the record's own timestamp, then a configured source
// field, then the fallback.
func resolveTime(ts *time.Time, fields map[string]any, fieldName string, fallback time.Time) time.Time {
	if ts != nil {
		return ts.UTC()
	}
	if fieldName != "" {
		switch v := fields[fieldName].(type) {
		case time.Time:
			return v.UTC()
		case string:
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				return parsed.UTC()
			}
		}
	}
	return fallback
}
