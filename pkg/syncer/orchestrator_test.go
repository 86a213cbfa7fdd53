package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
)

type fakeIntegrationStore struct {
	integration *models.Integration

	startOK   bool
	startErr  error
	finishErr error

	status          models.SyncStatus
	finishedSummary map[string]models.CategoryResult
	markedError     string
	finishCalls     int
}

func newFakeIntegrationStore(integration *models.Integration) *fakeIntegrationStore {
	return &fakeIntegrationStore{
		integration: integration,
		startOK:     true,
		status:      integration.SyncStatus,
	}
}

func (f *fakeIntegrationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	copied := *f.integration
	return &copied, nil
}

func (f *fakeIntegrationStore) TryStartSync(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	if f.startErr != nil {
		return false, f.startErr
	}
	if !f.startOK {
		return false, nil
	}
	f.status = models.SyncStatusInProgress
	return true, nil
}

func (f *fakeIntegrationStore) FinishSync(ctx context.Context, id uuid.UUID, status models.SyncStatus, finishedAt time.Time, summary map[string]models.CategoryResult, newErrors int) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finishCalls++
	f.status = status
	f.finishedSummary = summary
	return nil
}

func (f *fakeIntegrationStore) MarkSyncError(ctx context.Context, id uuid.UUID, message string, finishedAt time.Time) error {
	f.status = models.SyncStatusError
	f.markedError = message
	return nil
}

type fakeSource struct {
	batches map[string][]models.SourceRecord
	errs    map[string]error
}

func (f *fakeSource) Fetch(ctx context.Context, integration *models.Integration, category models.CategoryConfig) ([]models.SourceRecord, error) {
	if err, ok := f.errs[category.Name]; ok {
		return nil, err
	}
	return f.batches[category.Name], nil
}

type fakeRecomputer struct {
	calls int
	err   error
}

func (f *fakeRecomputer) Recompute(ctx context.Context, tenantID uuid.UUID) ([]models.Insight, error) {
	f.calls++
	return nil, f.err
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	f.calls++
	return nil
}

func testIntegration(categories ...models.CategoryConfig) *models.Integration {
	return &models.Integration{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		Service:    "shopmetrics",
		Name:       "Shop Metrics",
		Categories: database.NewJSONB(categories),
		Active:     true,
		SyncStatus: models.SyncStatusPending,
	}
}

func newTestOrchestrator(store *fakeIntegrationStore, source Source) (*Orchestrator, *memoryRecordStore, *fakeRecomputer, *fakeInvalidator) {
	records := newMemoryRecordStore()
	recomputer := &fakeRecomputer{}
	invalidator := &fakeInvalidator{}
	o := NewOrchestrator(store, NewReconciler(records, testLogger()), source, recomputer, invalidator, testLogger())
	return o, records, recomputer, invalidator
}

func TestRunSync_TwoCategoriesOneFailing(t *testing.T) {
	catA := models.CategoryConfig{Name: "orders", Enabled: true, NaturalKeyField: "order_number", Fields: []string{"order_number", "total"}}
	catB := models.CategoryConfig{Name: "reviews", Enabled: true, NaturalKeyField: "review_id", Fields: []string{"review_id", "rating"}}
	integration := testIntegration(catA, catB)
	store := newFakeIntegrationStore(integration)

	source := &fakeSource{
		batches: map[string][]models.SourceRecord{
			"orders": {
				orderRecord("A-1", 10),
				orderRecord("A-2", 20),
				orderRecord("A-3", 30),
			},
		},
		errs: map[string]error{"reviews": errors.New("provider unavailable")},
	}

	o, records, _, _ := newTestOrchestrator(store, source)

	// A-3 already exists, so it counts as updated rather than added.
	seed := NewReconciler(records, testLogger())
	seed.Reconcile(context.Background(), integration.TenantID, catA, []models.SourceRecord{orderRecord("A-3", 5)})

	outcome, err := o.RunSync(context.Background(), integration.ID)
	require.NoError(t, err)
	require.Len(t, outcome.Categories, 2)

	assert.Equal(t, models.CategoryOutcome{Category: "orders", Added: 2, Updated: 1, Errors: 0}, outcome.Categories[0])
	assert.Equal(t, models.CategoryOutcome{Category: "reviews", Added: 0, Updated: 0, Errors: 1}, outcome.Categories[1])
	assert.Equal(t, models.SyncStatusCompletedWithErrors, outcome.Status)
	assert.Equal(t, 1, outcome.TotalErrors())
	assert.Equal(t, models.SyncStatusCompletedWithErrors, store.status)
	assert.Equal(t, models.CategoryResult{Added: 2, Updated: 1}, store.finishedSummary["orders"])
}

func TestRunSync_AllCategoriesClean(t *testing.T) {
	cat := ordersCategory()
	integration := testIntegration(cat)
	store := newFakeIntegrationStore(integration)
	source := &fakeSource{batches: map[string][]models.SourceRecord{"orders": {orderRecord("A-1", 10)}}}

	o, _, recomputer, invalidator := newTestOrchestrator(store, source)

	outcome, err := o.RunSync(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, outcome.Status)
	assert.Equal(t, models.SyncStatusCompleted, store.status)
	assert.Equal(t, 1, recomputer.calls)
	assert.Equal(t, 1, invalidator.calls)
}

func TestRunSync_Inactive(t *testing.T) {
	integration := testIntegration(ordersCategory())
	integration.Active = false
	store := newFakeIntegrationStore(integration)

	o, _, _, _ := newTestOrchestrator(store, &fakeSource{})

	_, err := o.RunSync(context.Background(), integration.ID)
	assert.ErrorIs(t, err, ErrIntegrationInactive)
}

func TestRunSync_AlreadyRunning(t *testing.T) {
	integration := testIntegration(ordersCategory())
	store := newFakeIntegrationStore(integration)
	store.startOK = false
	store.status = models.SyncStatusInProgress

	o, _, recomputer, _ := newTestOrchestrator(store, &fakeSource{})

	_, err := o.RunSync(context.Background(), integration.ID)
	assert.ErrorIs(t, err, ErrSyncAlreadyRunning)
	assert.Equal(t, models.SyncStatusInProgress, store.status)
	assert.Equal(t, 0, recomputer.calls)
}

func TestRunSync_CancellationNeverLeavesInProgress(t *testing.T) {
	integration := testIntegration(ordersCategory())
	store := newFakeIntegrationStore(integration)

	o, _, _, _ := newTestOrchestrator(store, &fakeSource{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunSync(ctx, integration.ID)
	assert.ErrorIs(t, err, ErrSyncCancelled)
	assert.Equal(t, models.SyncStatusError, store.status)
	assert.Equal(t, "cancelled", store.markedError)
}

func TestRunSync_FinishFailureMarksError(t *testing.T) {
	integration := testIntegration(ordersCategory())
	store := newFakeIntegrationStore(integration)
	store.finishErr = errors.New("database down")
	source := &fakeSource{batches: map[string][]models.SourceRecord{"orders": {orderRecord("A-1", 10)}}}

	o, _, recomputer, _ := newTestOrchestrator(store, source)

	_, err := o.RunSync(context.Background(), integration.ID)
	require.Error(t, err)
	assert.Equal(t, models.SyncStatusError, store.status)
	assert.Equal(t, 0, recomputer.calls)
}

func TestRunSync_DisabledCategoriesAreSkipped(t *testing.T) {
	enabled := ordersCategory()
	disabled := models.CategoryConfig{Name: "reviews", Enabled: false, NaturalKeyField: "review_id"}
	integration := testIntegration(enabled, disabled)
	store := newFakeIntegrationStore(integration)
	source := &fakeSource{batches: map[string][]models.SourceRecord{"orders": {orderRecord("A-1", 10)}}}

	o, _, _, _ := newTestOrchestrator(store, source)

	outcome, err := o.RunSync(context.Background(), integration.ID)
	require.NoError(t, err)
	require.Len(t, outcome.Categories, 1)
	assert.Equal(t, "orders", outcome.Categories[0].Category)
}
