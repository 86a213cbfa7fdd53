package syncer

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// IntegrationStore is the slice of the integration repository the
// orchestrator needs to drive the sync status lifecycle.
type IntegrationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error)
	TryStartSync(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	FinishSync(ctx context.Context, id uuid.UUID, status models.SyncStatus, finishedAt time.Time, summary map[string]models.CategoryResult, newErrors int) error
	MarkSyncError(ctx context.Context, id uuid.UUID, message string, finishedAt time.Time) error
}

// Recomputer refreshes derived insight metrics after a sync lands new data.
type Recomputer interface {
	Recompute(ctx context.Context, tenantID uuid.UUID) ([]models.Insight, error)
}

// Invalidator drops cached views that a completed sync made stale.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// Emitter publishes sync lifecycle events. Emission is best effort; the
// orchestrator logs and continues on failure.
type Emitter interface {
	SyncStarted(ctx context.Context, integration *models.Integration) error
	SyncCompleted(ctx context.Context, integration *models.Integration, outcome *models.SyncOutcome) error
}

// Orchestrator runs the full sync pipeline for one integration: claim the
// in_progress slot, fetch and reconcile each enabled category, persist the
// result, then refresh insights and drop stale caches.
type Orchestrator struct {
	integrations IntegrationStore
	reconciler   *Reconciler
	source       Source
	recomputer   Recomputer
	invalidator  Invalidator
	emitter      Emitter
	logger       ectologger.Logger
	budget       time.Duration
}

type OrchestratorOption func(*Orchestrator)

// WithBudget caps a run's wall-clock time. A run that exceeds the budget is
// treated like a cancelled run.
func WithBudget(budget time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.budget = budget
	}
}

// WithEmitter attaches a lifecycle event publisher. Without one, no events
// are emitted.
func WithEmitter(emitter Emitter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.emitter = emitter
	}
}

func NewOrchestrator(
	integrations IntegrationStore,
	reconciler *Reconciler,
	source Source,
	recomputer Recomputer,
	invalidator Invalidator,
	logger ectologger.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		integrations: integrations,
		reconciler:   reconciler,
		source:       source,
		recomputer:   recomputer,
		invalidator:  invalidator,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunSync executes one sync for the integration. Category failures are
// absorbed into the outcome; only failures of the lifecycle itself (loading
// the integration, persisting status, cancellation) are returned as errors.
// Whatever happens, the integration never remains in_progress.
func (o *Orchestrator) RunSync(ctx context.Context, integrationID uuid.UUID) (*models.SyncOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "syncer.RunSync")
	defer span.End()

	integration, err := o.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !integration.Active {
		return nil, ErrIntegrationInactive
	}

	// Scheduler-driven runs arrive without a tenant on the context; the
	// repositories scope every statement by it.
	ctx = appctx.SetTenantID(ctx, integration.TenantID.String())

	startedAt := time.Now().UTC()
	started, err := o.integrations.TryStartSync(ctx, integrationID, startedAt)
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, ErrSyncAlreadyRunning
	}

	// Status persistence must outlive a cancelled run context.
	detached := context.WithoutCancel(ctx)

	if o.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.budget)
		defer cancel()
	}

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integrationID.String(),
		"tenant_id":      integration.TenantID.String(),
	})
	log.Info("Sync started")

	if o.emitter != nil {
		if err := o.emitter.SyncStarted(ctx, integration); err != nil {
			log.WithError(err).Warn("Failed to emit sync started event")
		}
	}

	outcome := &models.SyncOutcome{
		IntegrationID: integrationID.String(),
		StartedAt:     startedAt,
	}

	for _, category := range integration.EnabledCategories() {
		if ctx.Err() != nil {
			return nil, o.abortCancelled(detached, integrationID, log)
		}

		catOutcome := o.syncCategory(ctx, integration, category)
		outcome.Categories = append(outcome.Categories, catOutcome)
		metrics.RecordReconciled(category.Name, catOutcome.Added, catOutcome.Updated, catOutcome.Errors)
	}
	if ctx.Err() != nil {
		return nil, o.abortCancelled(detached, integrationID, log)
	}

	outcome.FinishedAt = time.Now().UTC()
	outcome.Status = models.SyncStatusCompleted
	if outcome.TotalErrors() > 0 {
		outcome.Status = models.SyncStatusCompletedWithErrors
	}

	if err := o.integrations.FinishSync(ctx, integrationID, outcome.Status, outcome.FinishedAt, outcome.ResultSummary(), outcome.TotalErrors()); err != nil {
		o.markError(detached, integrationID, err.Error(), log)
		return nil, err
	}

	metrics.RecordSyncRun(string(outcome.Status), outcome.FinishedAt.Sub(startedAt).Seconds())
	log.WithFields(map[string]any{
		"status":  string(outcome.Status),
		"added":   outcome.TotalAdded(),
		"updated": outcome.TotalUpdated(),
		"errors":  outcome.TotalErrors(),
	}).Info("Sync finished")

	o.refreshDerived(ctx, integration, log)

	if o.emitter != nil {
		if err := o.emitter.SyncCompleted(ctx, integration, outcome); err != nil {
			log.WithError(err).Warn("Failed to emit sync completed event")
		}
	}

	return outcome, nil
}

func (o *Orchestrator) syncCategory(ctx context.Context, integration *models.Integration, category models.CategoryConfig) models.CategoryOutcome {
	ctx, span := tracing.StartSpan(ctx, "syncer.syncCategory")
	defer span.End()

	batch, err := o.source.Fetch(ctx, integration, category)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integration.ID.String(),
			"category":       category.Name,
		}).Error("Failed to fetch category records")
		return models.CategoryOutcome{Category: category.Name, Errors: 1}
	}

	outcome := o.reconciler.Reconcile(ctx, integration.TenantID, category, batch)
	outcome.Category = category.Name
	return outcome
}

// refreshDerived recomputes insights and invalidates the overview cache.
// Both are best effort; the sync itself has already succeeded.
func (o *Orchestrator) refreshDerived(ctx context.Context, integration *models.Integration, log ectologger.Logger) {
	recomputeStart := time.Now()
	if _, err := o.recomputer.Recompute(ctx, integration.TenantID); err != nil {
		log.WithError(err).Warn("Failed to recompute insights")
	} else {
		metrics.RecordInsightRecompute(time.Since(recomputeStart).Seconds())
	}

	if err := o.invalidator.Invalidate(ctx, integration.TenantID); err != nil {
		log.WithError(err).Warn("Failed to invalidate overview cache")
	}
}

func (o *Orchestrator) abortCancelled(detached context.Context, integrationID uuid.UUID, log ectologger.Logger) error {
	o.markError(detached, integrationID, "cancelled", log)
	metrics.RecordSyncRun(string(models.SyncStatusError), 0)
	log.Warn("Sync cancelled")
	return ErrSyncCancelled
}

func (o *Orchestrator) markError(ctx context.Context, integrationID uuid.UUID, message string, log ectologger.Logger) {
	if err := o.integrations.MarkSyncError(ctx, integrationID, message, time.Now().UTC()); err != nil {
		log.WithError(err).Error("Failed to mark sync error")
	}
}
