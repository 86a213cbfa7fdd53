package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
)

// Insight metadata keys. Kept as constants so the engine and the dashboard
// read path agree on spelling.
const (
	InsightMetaSource        = "source"
	InsightMetaPreviousValue = "previous_value"
	InsightMetaChangePct     = "change_pct"
)

// Insight is one derived business metric row. Rows are append-only: every
// recompute run writes fresh rows and never rewrites history, so trend
// queries are stable.
type Insight struct {
	ID       uuid.UUID `db:"id" json:"id"`
	TenantID uuid.UUID `db:"tenant_id" json:"tenant_id"`
	// Category is the business grouping ("operations", "customer"), not a
	// sync category.
	Category string   `db:"category" json:"category"`
	Name     string   `db:"name" json:"name"`
	Value    float64  `db:"value" json:"value"`
	Unit     string   `db:"unit" json:"unit"`
	Target   *float64 `db:"target" json:"target,omitempty"`
	// PeriodStart and PeriodEnd bound the measured interval, inclusive on
	// both ends.
	PeriodStart time.Time                      `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time                      `db:"period_end" json:"period_end"`
	Metadata    database.JSONB[map[string]any] `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time                      `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (Insight) TableName() string {
	return "insights"
}
