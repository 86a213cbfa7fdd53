package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// memoryRecordStore keeps records keyed by category + natural key.
type memoryRecordStore struct {
	records map[string]*models.CategoryRecord
	failKey string
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: make(map[string]*models.CategoryRecord)}
}

func (m *memoryRecordStore) key(category, naturalKey string) string {
	return category + "|" + naturalKey
}

func (m *memoryRecordStore) GetByNaturalKey(ctx context.Context, category, naturalKey string) (*models.CategoryRecord, error) {
	rec, ok := m.records[m.key(category, naturalKey)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (m *memoryRecordStore) Upsert(ctx context.Context, record *models.CategoryRecord) error {
	if m.failKey != "" && record.NaturalKey == m.failKey {
		return assert.AnError
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	copied := *record
	m.records[m.key(record.Category, record.NaturalKey)] = &copied
	return nil
}

func ordersCategory() models.CategoryConfig {
	return models.CategoryConfig{
		Name:            "orders",
		Enabled:         true,
		NaturalKeyField: "order_number",
		Fields:          []string{"order_number", "total", "status"},
	}
}

func orderRecord(number string, total float64) models.SourceRecord {
	return models.SourceRecord{
		Fields: map[string]any{
			"order_number": number,
			"total":        total,
			"status":       "open",
			"internal":     "not configured",
		},
	}
}

func TestReconcile_AddsThenUpdates(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store, testLogger())
	tenantID := uuid.New()

	batch := []models.SourceRecord{
		orderRecord("A-1", 10),
		orderRecord("A-2", 20),
	}

	outcome := r.Reconcile(context.Background(), tenantID, ordersCategory(), batch)
	assert.Equal(t, 2, outcome.Added)
	assert.Equal(t, 0, outcome.Updated)
	assert.Equal(t, 0, outcome.Errors)

	// Running the same batch again is idempotent: same rows, all updates.
	outcome = r.Reconcile(context.Background(), tenantID, ordersCategory(), batch)
	assert.Equal(t, 0, outcome.Added)
	assert.Equal(t, 2, outcome.Updated)
	assert.Equal(t, 0, outcome.Errors)
	assert.Len(t, store.records, 2)
}

func TestReconcile_CopiesOnlyConfiguredFields(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store, testLogger())

	r.Reconcile(context.Background(), uuid.New(), ordersCategory(), []models.SourceRecord{orderRecord("A-1", 10)})

	rec, err := store.GetByNaturalKey(context.Background(), "orders", "A-1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	attrs := rec.Attributes.GetValue()
	assert.Equal(t, "A-1", attrs["order_number"])
	assert.Equal(t, float64(10), attrs["total"])
	assert.NotContains(t, attrs, "internal")
}

func TestReconcile_PreservesCreatedAtOnUpdate(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store, testLogger())
	tenantID := uuid.New()

	created := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	first := orderRecord("A-1", 10)
	first.CreatedAt = &created

	r.Reconcile(context.Background(), tenantID, ordersCategory(), []models.SourceRecord{first})

	second := orderRecord("A-1", 99)
	outcome := r.Reconcile(context.Background(), tenantID, ordersCategory(), []models.SourceRecord{second})
	assert.Equal(t, 1, outcome.Updated)

	rec, _ := store.GetByNaturalKey(context.Background(), "orders", "A-1")
	require.NotNil(t, rec)
	assert.True(t, rec.CreatedAt.Equal(created))
	assert.Equal(t, float64(99), rec.Attributes.GetValue()["total"])
}

func TestReconcile_PerRecordIsolation(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store, testLogger())

	bad := models.SourceRecord{Fields: map[string]any{"total": 5}} // no natural key
	batch := []models.SourceRecord{
		orderRecord("A-1", 10),
		bad,
		orderRecord("A-2", 20),
	}

	outcome := r.Reconcile(context.Background(), uuid.New(), ordersCategory(), batch)
	assert.Equal(t, 2, outcome.Added)
	assert.Equal(t, 1, outcome.Errors)
	assert.Len(t, store.records, 2)
}

func TestReconcile_StoreFailureIsCounted(t *testing.T) {
	store := newMemoryRecordStore()
	store.failKey = "A-2"
	r := NewReconciler(store, testLogger())

	batch := []models.SourceRecord{
		orderRecord("A-1", 10),
		orderRecord("A-2", 20),
		orderRecord("A-3", 30),
	}

	outcome := r.Reconcile(context.Background(), uuid.New(), ordersCategory(), batch)
	assert.Equal(t, 2, outcome.Added)
	assert.Equal(t, 1, outcome.Errors)
}

func TestNaturalKeyOf(t *testing.T) {
	category := ordersCategory()

	key, err := naturalKeyOf(category, &models.SourceRecord{Fields: map[string]any{"order_number": "A-1"}})
	require.NoError(t, err)
	assert.Equal(t, "A-1", key)

	// numeric keys stringify
	key, err = naturalKeyOf(category, &models.SourceRecord{Fields: map[string]any{"order_number": float64(42)}})
	require.NoError(t, err)
	assert.Equal(t, "42", key)

	_, err = naturalKeyOf(category, &models.SourceRecord{Fields: map[string]any{"order_number": ""}})
	assert.Error(t, err)

	_, err = naturalKeyOf(category, &models.SourceRecord{Fields: map[string]any{}})
	assert.Error(t, err)
}

func TestFailureFields(t *testing.T) {
	tenantID := uuid.New()

	// A derivable key identifies the record directly
	fields := failureFields(tenantID, "orders", 3, "A-7")
	assert.Equal(t, "A-7", fields["natural_key"])
	assert.NotContains(t, fields, "record")
	assert.Equal(t, tenantID.String(), fields["tenant_id"])
	assert.Equal(t, "orders", fields["category"])

	// Without a key only the batch position is left
	fields = failureFields(tenantID, "orders", 3, "")
	assert.Equal(t, 3, fields["record"])
	assert.NotContains(t, fields, "natural_key")
}
