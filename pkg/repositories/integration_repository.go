package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

const integrationsTable = "integrations"

var integrationStruct = database.NewStruct(new(models.Integration))

// IntegrationRepository handles database operations for integrations
type IntegrationRepository struct {
	*Repository
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db database.DB, logger ectologger.Logger) *IntegrationRepository {
	return &IntegrationRepository{
		Repository: NewRepository(db, logger),
	}
}

// errorCountIncrement renders "error_count + n" as raw SQL. sqlbuilder cannot
// bind a parameter inside an assignment expression, so the integer is inlined.
func errorCountIncrement(n int) any {
	return sqlbuilder.Raw(fmt.Sprintf("error_count + %d", n))
}

// Create creates a new integration with status pending
func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	integration.TenantID = tenantID

	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	if integration.SyncStatus == "" {
		integration.SyncStatus = models.SyncStatusPending
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(integrationsTable).
		Cols("id", "tenant_id", "service", "name", "categories", "active", "sync_schedule", "sync_status", "created_at", "updated_at").
		Values(integration.ID, integration.TenantID, integration.Service, integration.Name, integration.Categories,
			integration.Active, integration.SyncSchedule, integration.SyncStatus,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integration.ID,
		}).Error("failed to create integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
	}).Debugf("Created %s", integrationsTable)
	return nil
}

// GetByID retrieves an integration by ID (tenant-scoped)
func (r *IntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var integration models.Integration
	err = r.DB().GetContext(ctx, &integration, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "integration %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to get integration by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get integration by ID")
	}

	return &integration, nil
}

// List retrieves all integrations for the current tenant
func (r *IntegrationRepository) List(ctx context.Context) ([]models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("service")

	query, args := sb.Build()
	var integrations []models.Integration
	err = r.DB().SelectContext(ctx, &integrations, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list integrations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list integrations")
	}

	return integrations, nil
}

// UpdateCategories replaces the integration's category configuration
func (r *IntegrationRepository) UpdateCategories(ctx context.Context, id uuid.UUID, categories []models.CategoryConfig) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.UpdateCategories")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("categories", database.NewJSONB(categories)),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	var updatedAt time.Time
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "integration %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to update integration categories")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update integration categories")
	}

	return r.GetByID(ctx, id)
}

// TryStartSync transitions the integration to in_progress. The update is
// conditional on the row not already being in_progress; started=false with a
// nil error means another sync currently holds the integration.
func (r *IntegrationRepository) TryStartSync(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.TryStartSync")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return false, err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("sync_status", models.SyncStatusInProgress),
			ub.Assign("last_sync_started_at", startedAt),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.NotEqual("sync_status", models.SyncStatusInProgress),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to transition integration to in_progress")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start sync")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start sync")
	}

	return rows == 1, nil
}

// FinishSync persists the terminal status and result summary of a sync run.
// The cumulative error counter only grows.
func (r *IntegrationRepository) FinishSync(ctx context.Context, id uuid.UUID, status models.SyncStatus, finishedAt time.Time, summary map[string]models.CategoryResult, newErrors int) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.FinishSync")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	query, args := buildFinishSyncUpdate(tenantID, id, status, finishedAt, summary, newErrors)
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
			"status":         status,
		}).Error("failed to persist sync result")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist sync result")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist sync result")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "integration %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": id,
		"status":         status,
		"new_errors":     newErrors,
	}).Debugf("Persisted sync result on %s", integrationsTable)
	return nil
}

func buildFinishSyncUpdate(tenantID, id uuid.UUID, status models.SyncStatus, finishedAt time.Time, summary map[string]models.CategoryResult, newErrors int) (string, []any) {
	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("sync_status", status),
			ub.Assign("last_sync_finished_at", finishedAt),
			ub.Assign("last_sync_result", database.NewJSONB(summary)),
			ub.Assign("error_count", errorCountIncrement(newErrors)),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	return ub.Build()
}

// MarkSyncError records a hard failure: status error plus the message. Used
// for failures outside the per-category loop, including cancellation.
func (r *IntegrationRepository) MarkSyncError(ctx context.Context, id uuid.UUID, message string, finishedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.MarkSyncError")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("sync_status", models.SyncStatusError),
			ub.Assign("last_sync_finished_at", finishedAt),
			ub.Assign("last_error", message),
			ub.Assign("error_count", errorCountIncrement(1)),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to mark integration sync as errored")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark sync as errored")
	}

	return nil
}

// Delete deletes an integration by ID
func (r *IntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Delete")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(integrationsTable).
		Where(db.Equal("tenant_id", tenantID), db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to delete integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete integration")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete integration")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "integration %s does not exist", id)
	}

	return nil
}
