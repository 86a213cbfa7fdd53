package repositories_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

func testRecord(category, naturalKey string, attributes map[string]any) *models.CategoryRecord {
	now := time.Now().UTC()
	return &models.CategoryRecord{
		Category:   category,
		NaturalKey: naturalKey,
		Attributes: database.NewJSONB(attributes),
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncedAt:   now,
	}
}

func TestRecordRepository_UpsertIdempotency(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)
	defer repo.DeleteByTenantID(ctx, tenantID)

	record := testRecord("orders", "ORD-1001", map[string]any{
		"order_number": "ORD-1001",
		"total":        110.0,
		"status":       "open",
	})
	require.NoError(t, repo.Upsert(ctx, record))
	assert.NotEqual(t, uuid.Nil, record.ID)

	first, err := repo.GetByNaturalKey(ctx, "orders", "ORD-1001")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 110.0, first.Attributes.GetValue()["total"])

	// Same natural key again updates the existing row in place
	update := testRecord("orders", "ORD-1001", map[string]any{
		"order_number": "ORD-1001",
		"total":        120.0,
		"status":       "closed",
	})
	require.NoError(t, repo.Upsert(ctx, update))

	second, err := repo.GetByNaturalKey(ctx, "orders", "ORD-1001")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 120.0, second.Attributes.GetValue()["total"])
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Millisecond)

	// Missing keys resolve to nil rather than an error
	missing, err := repo.GetByNaturalKey(ctx, "orders", "ORD-9999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Same key in another tenant is an independent row
	otherCtx := getTestContext(uuid.New())
	missing, err = repo.GetByNaturalKey(otherCtx, "orders", "ORD-1001")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordRepository_Aggregates(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)
	defer repo.DeleteByTenantID(ctx, tenantID)

	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	inPeriod := periodStart.Add(24 * time.Hour).Format(time.RFC3339)
	outOfPeriod := periodStart.AddDate(0, -1, 0).Format(time.RFC3339)

	rows := []*models.CategoryRecord{
		testRecord("orders", "ORD-1", map[string]any{"total": 60.0, "status": "open", "created_at": inPeriod}),
		testRecord("orders", "ORD-2", map[string]any{"total": 50.0, "status": "closed", "created_at": inPeriod}),
		testRecord("orders", "ORD-3", map[string]any{"total": 999.0, "status": "open", "created_at": outOfPeriod}),
		testRecord("reviews", "REV-1", map[string]any{"rating": 4.0, "created_at": inPeriod}),
		testRecord("reviews", "REV-2", map[string]any{"rating": 5.0, "created_at": inPeriod}),
	}
	for _, row := range rows {
		require.NoError(t, repo.Upsert(ctx, row))
	}

	sum, err := repo.SumInPeriod(ctx, "orders", "total", "created_at", periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, 110.0, sum)

	avg, err := repo.AvgInPeriod(ctx, "reviews", "rating", "created_at", periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, 4.5, avg)

	open, err := repo.CountInPeriod(ctx, "orders", "created_at", map[string]string{"status": "open"}, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	all, err := repo.CountInPeriod(ctx, "orders", "created_at", nil, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all)

	// Empty period sums to zero instead of erroring
	emptySum, err := repo.SumInPeriod(ctx, "orders", "total", "created_at", periodStart.AddDate(1, 0, 0), periodEnd.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, emptySum)
}
