// Package insights derives dashboard metrics from synced category records.
// Every recompute appends fresh rows over the current and prior period; rows
// are never rewritten, so trend queries are stable.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// RecordAggregator is the slice of the record repository the engine reads.
type RecordAggregator interface {
	SumInPeriod(ctx context.Context, category, field, dateField string, start, end time.Time) (float64, error)
	AvgInPeriod(ctx context.Context, category, field, dateField string, start, end time.Time) (float64, error)
	CountInPeriod(ctx context.Context, category, dateField string, filters map[string]string, start, end time.Time) (int64, error)
}

// InsightStore persists derived metric rows.
type InsightStore interface {
	Create(ctx context.Context, insight *models.Insight) error
}

// Engine recomputes the configured aggregate definitions for a tenant.
type Engine struct {
	records  RecordAggregator
	insights InsightStore
	defs     []AggregateDef
	logger   ectologger.Logger
	now      func() time.Time
}

type EngineOption func(*Engine)

// WithDefinitions replaces the stock metric set.
func WithDefinitions(defs []AggregateDef) EngineOption {
	return func(e *Engine) {
		e.defs = defs
	}
}

// WithClock overrides the period clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(records RecordAggregator, insights InsightStore, logger ectologger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		records:  records,
		insights: insights,
		defs:     DefaultDefinitions(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recompute evaluates every definition over the current calendar month and
// the month before it, appending one insight row per definition. A failing
// definition is logged and skipped; whatever could be computed is still
// written and returned, alongside the first error encountered.
func (e *Engine) Recompute(ctx context.Context, tenantID uuid.UUID) ([]models.Insight, error) {
	ctx, span := tracing.StartSpan(ctx, "insights.Recompute")
	defer span.End()

	ctx = appctx.SetTenantID(ctx, tenantID.String())

	now := e.now().UTC()
	curStart, curEnd, prevStart, prevEnd := monthPeriods(now)

	computed := make([]models.Insight, 0, len(e.defs))
	var firstErr error

	for _, def := range e.defs {
		insight, err := e.computeOne(ctx, tenantID, def, curStart, curEnd, prevStart, prevEnd)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"tenant_id": tenantID.String(),
				"insight":   def.Name,
			}).Error("Failed to compute insight")
			continue
		}

		if err := e.insights.Create(ctx, insight); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"tenant_id": tenantID.String(),
				"insight":   def.Name,
			}).Error("Failed to persist insight")
			continue
		}

		metrics.RecordInsightComputed(def.Category, 1)
		computed = append(computed, *insight)
	}

	return computed, firstErr
}

func (e *Engine) computeOne(ctx context.Context, tenantID uuid.UUID, def AggregateDef, curStart, curEnd, prevStart, prevEnd time.Time) (*models.Insight, error) {
	meta := map[string]any{
		models.InsightMetaSource: def.SourceCategory,
	}

	insight := &models.Insight{
		TenantID:    tenantID,
		Category:    def.Category,
		Name:        def.Name,
		Unit:        def.Unit,
		PeriodStart: curStart,
		PeriodEnd:   curEnd,
	}

	switch def.Kind {
	case KindSum, KindAverage:
		aggregate := e.records.SumInPeriod
		if def.Kind == KindAverage {
			aggregate = e.records.AvgInPeriod
		}

		current, err := aggregate(ctx, def.SourceCategory, def.Field, def.DateField, curStart, curEnd)
		if err != nil {
			return nil, err
		}
		previous, err := aggregate(ctx, def.SourceCategory, def.Field, def.DateField, prevStart, prevEnd)
		if err != nil {
			return nil, err
		}

		insight.Value = current
		meta[models.InsightMetaPreviousValue] = previous
		meta[models.InsightMetaChangePct] = percentChange(current, previous)
		if def.Target != nil {
			insight.Target = def.Target(previous)
		}

	case KindFilteredCount:
		count, err := e.records.CountInPeriod(ctx, def.SourceCategory, def.DateField, def.Filters, curStart, curEnd)
		if err != nil {
			return nil, err
		}
		insight.Value = float64(count)
		if def.Field != "" {
			correlated, err := e.records.SumInPeriod(ctx, def.SourceCategory, def.Field, def.DateField, curStart, curEnd)
			if err != nil {
				return nil, err
			}
			meta["total_"+def.Field] = correlated
		}
		if def.Target != nil {
			insight.Target = def.Target(insight.Value)
		}

	default:
		return nil, fmt.Errorf("unknown aggregate kind %q", def.Kind)
	}

	insight.Metadata = database.NewJSONB(meta)
	return insight, nil
}

// percentChange is zero when the previous value is zero, whatever the
// current value.
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// monthPeriods bounds the calendar month containing now and the full month
// before it. Both intervals are inclusive on both ends.
func monthPeriods(now time.Time) (curStart, curEnd, prevStart, prevEnd time.Time) {
	curStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	curEnd = curStart.AddDate(0, 1, 0).Add(-time.Second)
	prevStart = curStart.AddDate(0, -1, 0)
	prevEnd = curStart.Add(-time.Second)
	return curStart, curEnd, prevStart, prevEnd
}
