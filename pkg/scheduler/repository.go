package scheduler

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// ScheduledIntegration is one integration with a cron schedule, as seen by
// the scheduler's cross-tenant query.
type ScheduledIntegration struct {
	ID                 uuid.UUID  `db:"id"`
	TenantID           uuid.UUID  `db:"tenant_id"`
	Service            string     `db:"service"`
	SyncSchedule       string     `db:"sync_schedule"`
	LastSyncStartedAt  *time.Time `db:"last_sync_started_at"`
	LastSyncFinishedAt *time.Time `db:"last_sync_finished_at"`
}

// SchedulerRepositoryImpl implements SchedulerRepository with cross-tenant
// access. This is a system-level repository not scoped to a single tenant.
type SchedulerRepositoryImpl struct {
	db     database.DB
	logger ectologger.Logger
}

// NewSchedulerRepository creates a new scheduler repository
func NewSchedulerRepository(db database.DB, logger ectologger.Logger) *SchedulerRepositoryImpl {
	return &SchedulerRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// ListScheduled returns every active integration with a cron schedule that
// is not currently syncing. Whether a row is actually due is decided in the
// scheduler against its cron expression; the query only narrows the
// candidate set.
func (r *SchedulerRepositoryImpl) ListScheduled(ctx context.Context, limit int) ([]ScheduledIntegration, error) {
	ctx, span := tracing.StartSpan(ctx, "SchedulerRepository.ListScheduled")
	defer span.End()

	query := `
		SELECT
			id,
			tenant_id,
			service,
			sync_schedule,
			last_sync_started_at,
			last_sync_finished_at
		FROM integrations
		WHERE active = true
		AND sync_schedule IS NOT NULL
		AND sync_status <> 'in_progress'
		ORDER BY last_sync_finished_at ASC NULLS FIRST
		LIMIT $1
	`

	var integrations []ScheduledIntegration
	if err := r.db.SelectContext(ctx, &integrations, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to query scheduled integrations")
		return nil, err
	}

	r.logger.WithContext(ctx).Debugf("Found %d scheduled integrations", len(integrations))
	return integrations, nil
}
