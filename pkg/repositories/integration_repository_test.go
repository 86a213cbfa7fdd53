package repositories_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appctx "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "aster"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func getTestContext(tenantID uuid.UUID) context.Context {
	ctx := context.Background()
	return appctx.SetTenantID(ctx, tenantID.String())
}

// assertNotFound asserts that err is an HTTP 404 error
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err), "expected 404, got: %d", httperror.GetStatusCode(err))
}

func testCategories() []models.CategoryConfig {
	return []models.CategoryConfig{
		{Name: "orders", Enabled: true, NaturalKeyField: "order_number", Fields: []string{"order_number", "total"}},
		{Name: "reviews", Enabled: false, NaturalKeyField: "review_id", Fields: []string{"review_id", "rating"}},
	}
}

func createTestIntegration(t *testing.T, repo *repositories.IntegrationRepository, ctx context.Context) *models.Integration {
	t.Helper()
	integration := &models.Integration{
		Service:    "shopmetrics",
		Name:       "Shop Metrics",
		Categories: database.NewJSONB(testCategories()),
		Active:     true,
	}
	require.NoError(t, repo.Create(ctx, integration))
	return integration
}

func TestIntegrationRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)

	integration := createTestIntegration(t, repo, ctx)
	assert.NotEqual(t, uuid.Nil, integration.ID)
	assert.Equal(t, tenantID, integration.TenantID)
	assert.False(t, integration.CreatedAt.IsZero())

	fetched, err := repo.GetByID(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.ID, fetched.ID)
	assert.Equal(t, "shopmetrics", fetched.Service)
	assert.Equal(t, models.SyncStatusPending, fetched.SyncStatus)
	assert.Len(t, fetched.Categories.GetValue(), 2)

	integrations, err := repo.List(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(integrations), 1)

	// replace category config
	updatedCategories := []models.CategoryConfig{
		{Name: "orders", Enabled: true, NaturalKeyField: "order_number", Fields: []string{"order_number", "total", "status"}},
	}
	updated, err := repo.UpdateCategories(ctx, integration.ID, updatedCategories)
	require.NoError(t, err)
	require.Len(t, updated.Categories.GetValue(), 1)
	assert.Contains(t, updated.Categories.GetValue()[0].Fields, "status")

	// tenant isolation - a different tenant cannot see this integration
	otherTenantCtx := getTestContext(uuid.New())
	_, err = repo.GetByID(otherTenantCtx, integration.ID)
	assertNotFound(t, err)

	require.NoError(t, repo.Delete(ctx, integration.ID))
	_, err = repo.GetByID(ctx, integration.ID)
	assertNotFound(t, err)
}

func TestIntegrationRepository_SyncTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)
	integration := createTestIntegration(t, repo, ctx)
	defer repo.Delete(ctx, integration.ID)

	now := time.Now().UTC()

	// First claim wins
	started, err := repo.TryStartSync(ctx, integration.ID, now)
	require.NoError(t, err)
	assert.True(t, started)

	// Second claim is refused while the first is in progress
	started, err = repo.TryStartSync(ctx, integration.ID, now)
	require.NoError(t, err)
	assert.False(t, started)

	current, err := repo.GetByID(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusInProgress, current.SyncStatus)
	require.NotNil(t, current.LastSyncStartedAt)

	summary := map[string]models.CategoryResult{
		"orders": {Added: 2, Updated: 1, Errors: 1},
	}
	require.NoError(t, repo.FinishSync(ctx, integration.ID, models.SyncStatusCompletedWithErrors, time.Now().UTC(), summary, 1))

	finished, err := repo.GetByID(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompletedWithErrors, finished.SyncStatus)
	assert.Equal(t, 1, finished.ErrorCount)
	assert.Equal(t, summary["orders"], finished.LastSyncResult.GetValue()["orders"])
	require.NotNil(t, finished.LastSyncFinishedAt)

	// After a terminal status the slot can be claimed again
	started, err = repo.TryStartSync(ctx, integration.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, started)

	require.NoError(t, repo.MarkSyncError(ctx, integration.ID, "cancelled", time.Now().UTC()))

	errored, err := repo.GetByID(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, errored.SyncStatus)
	require.NotNil(t, errored.LastError)
	assert.Equal(t, "cancelled", *errored.LastError)
	assert.Equal(t, 2, errored.ErrorCount)
}
