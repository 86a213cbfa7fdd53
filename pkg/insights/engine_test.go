package insights

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

// fakeAggregator returns canned values keyed by period start.
type fakeAggregator struct {
	sums   map[time.Time]float64
	avgs   map[time.Time]float64
	counts map[time.Time]int64
}

func (f *fakeAggregator) SumInPeriod(ctx context.Context, category, field, dateField string, start, end time.Time) (float64, error) {
	return f.sums[start], nil
}

func (f *fakeAggregator) AvgInPeriod(ctx context.Context, category, field, dateField string, start, end time.Time) (float64, error) {
	return f.avgs[start], nil
}

func (f *fakeAggregator) CountInPeriod(ctx context.Context, category, dateField string, filters map[string]string, start, end time.Time) (int64, error) {
	return f.counts[start], nil
}

type appendStore struct {
	rows []models.Insight
}

func (s *appendStore) Create(ctx context.Context, insight *models.Insight) error {
	s.rows = append(s.rows, *insight)
	return nil
}

// fixedClock pins the engine to mid-March 2026.
func fixedClock() time.Time {
	return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
}

func march() time.Time    { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
func february() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }

func sumDef() AggregateDef {
	return AggregateDef{
		Category:       "operations",
		Name:           "monthly_revenue",
		Unit:           "usd",
		Kind:           KindSum,
		SourceCategory: "orders",
		Field:          "total",
		DateField:      "placed_at",
		Target:         GrowthTarget(10),
	}
}

func newTestEngine(agg *fakeAggregator, store *appendStore, defs ...AggregateDef) *Engine {
	return NewEngine(agg, store, testLogger(),
		WithDefinitions(defs),
		WithClock(fixedClock),
	)
}

func TestRecompute_SumWithGrowthTarget(t *testing.T) {
	agg := &fakeAggregator{sums: map[time.Time]float64{march(): 110, february(): 100}}
	store := &appendStore{}
	engine := newTestEngine(agg, store, sumDef())

	rows, err := engine.Recompute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, float64(110), row.Value)
	require.NotNil(t, row.Target)
	assert.InDelta(t, 110.0, *row.Target, 0.0001)

	meta := row.Metadata.GetValue()
	assert.Equal(t, float64(100), meta[models.InsightMetaPreviousValue])
	assert.InDelta(t, 10.0, meta[models.InsightMetaChangePct].(float64), 0.0001)
}

func TestRecompute_ZeroPreviousMeansZeroChange(t *testing.T) {
	agg := &fakeAggregator{sums: map[time.Time]float64{march(): 500, february(): 0}}
	store := &appendStore{}
	engine := newTestEngine(agg, store, sumDef())

	rows, err := engine.Recompute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	meta := rows[0].Metadata.GetValue()
	assert.Equal(t, float64(0), meta[models.InsightMetaChangePct])
}

func TestRecompute_EmptyPeriodsYieldZero(t *testing.T) {
	agg := &fakeAggregator{sums: map[time.Time]float64{}}
	store := &appendStore{}
	engine := newTestEngine(agg, store, sumDef())

	rows, err := engine.Recompute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, float64(0), rows[0].Value)
	assert.Equal(t, float64(0), rows[0].Metadata.GetValue()[models.InsightMetaChangePct])
}

func TestRecompute_AppendsOnEveryRun(t *testing.T) {
	agg := &fakeAggregator{sums: map[time.Time]float64{march(): 110, february(): 100}}
	store := &appendStore{}
	engine := newTestEngine(agg, store, sumDef())

	_, err := engine.Recompute(context.Background(), uuid.New())
	require.NoError(t, err)
	_, err = engine.Recompute(context.Background(), uuid.New())
	require.NoError(t, err)

	// two runs, two rows for the same (category, name, period)
	assert.Len(t, store.rows, 2)
	assert.Equal(t, store.rows[0].Name, store.rows[1].Name)
	assert.True(t, store.rows[0].PeriodStart.Equal(store.rows[1].PeriodStart))
}

func TestRecompute_AverageHasNoDefaultTarget(t *testing.T) {
	def := AggregateDef{
		Category:       "customer",
		Name:           "average_rating",
		Unit:           "stars",
		Kind:           KindAverage,
		SourceCategory: "reviews",
		Field:          "rating",
	}
	agg := &fakeAggregator{avgs: map[time.Time]float64{march(): 4.2, february(): 4.0}}
	store := &appendStore{}
	engine := newTestEngine(agg, store, def)

	rows, err := engine.Recompute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, 4.2, rows[0].Value)
	assert.Nil(t, rows[0].Target)
	assert.InDelta(t, 5.0, rows[0].Metadata.GetValue()[models.InsightMetaChangePct].(float64), 0.0001)
}

func TestRecompute_FilteredCountSkipsPercentChange(t *testing.T) {
	def := AggregateDef{
		Category:       "customer",
		Name:           "open_tickets",
		Unit:           "tickets",
		Kind:           KindFilteredCount,
		SourceCategory: "tickets",
		Filters:        map[string]string{"status": "open"},
	}
	agg := &fakeAggregator{counts: map[time.Time]int64{march(): 7}}
	store := &appendStore{}
	engine := newTestEngine(agg, store, def)

	rows, err := engine.Recompute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, float64(7), rows[0].Value)
	meta := rows[0].Metadata.GetValue()
	assert.NotContains(t, meta, models.InsightMetaChangePct)
	assert.Equal(t, "tickets", meta[models.InsightMetaSource])
}

func TestMonthPeriods(t *testing.T) {
	curStart, curEnd, prevStart, prevEnd := monthPeriods(fixedClock())

	assert.Equal(t, march(), curStart)
	assert.Equal(t, february(), prevStart)
	// prior period ends right before the current one begins
	assert.True(t, prevEnd.Before(curStart))
	assert.True(t, curEnd.After(fixedClock()))
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC), curEnd)
}
