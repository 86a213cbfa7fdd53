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

func testInsight(value float64) *models.Insight {
	target := value * 1.1
	return &models.Insight{
		Category:    "sales",
		Name:        "monthly_revenue",
		Value:       value,
		Unit:        "usd",
		Target:      &target,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
		Metadata: database.NewJSONB(map[string]any{
			models.InsightMetaSource: "orders",
		}),
	}
}

func TestInsightRepository_AppendOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewInsightRepository(db, getTestLogger())

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)

	first := testInsight(100)
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, tenantID, first.TenantID)

	// A second row for the same name and period is appended, not overwritten
	time.Sleep(10 * time.Millisecond)
	second := testInsight(110)
	require.NoError(t, repo.Create(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)

	insights, err := repo.List(ctx, "sales", "monthly_revenue", 10)
	require.NoError(t, err)
	require.Len(t, insights, 2)
	// Newest row comes first
	assert.Equal(t, 110.0, insights[0].Value)
	assert.Equal(t, 100.0, insights[1].Value)
	require.NotNil(t, insights[0].Target)
	assert.InDelta(t, 121.0, *insights[0].Target, 0.001)

	forPeriod, err := repo.ListForPeriod(ctx, "sales", "monthly_revenue", first.PeriodStart, first.PeriodEnd)
	require.NoError(t, err)
	assert.Len(t, forPeriod, 2)

	// Category filter excludes unrelated insights
	insights, err = repo.List(ctx, "operations", "", 10)
	require.NoError(t, err)
	assert.Empty(t, insights)

	// Other tenants never see these rows
	otherCtx := getTestContext(uuid.New())
	insights, err = repo.List(otherCtx, "sales", "monthly_revenue", 10)
	require.NoError(t, err)
	assert.Empty(t, insights)
}
