package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
)

// SyncStatus represents the lifecycle state of an integration's sync
type SyncStatus string

const (
	SyncStatusPending             SyncStatus = "pending"
	SyncStatusInProgress          SyncStatus = "in_progress"
	SyncStatusCompleted           SyncStatus = "completed"
	SyncStatusCompletedWithErrors SyncStatus = "completed_with_errors"
	SyncStatusError               SyncStatus = "error"
)

// CategoryConfig describes one synchronized entity kind for an integration.
// The field list is the contract with the external system: only listed fields
// are copied into the record's attribute map.
type CategoryConfig struct {
	Name            string   `json:"name" validate:"required"`
	Enabled         bool     `json:"enabled"`
	NaturalKeyField string   `json:"natural_key_field" validate:"required"`
	Fields          []string `json:"fields" validate:"required,min=1"`
	// CreatedAtField and UpdatedAtField name optional source timestamp fields.
	// Empty means "use time of reconciliation".
	CreatedAtField string `json:"created_at_field,omitempty"`
	UpdatedAtField string `json:"updated_at_field,omitempty"`
}

// CategoryResult is the per-category summary persisted after each sync.
type CategoryResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// Integration represents one external business system connected to a tenant.
// Its status fields are mutated only by the sync orchestrator; the category
// configuration is mutated only by configuration-update calls.
type Integration struct {
	ID         uuid.UUID                        `db:"id" json:"id"`
	TenantID   uuid.UUID                        `db:"tenant_id" json:"tenant_id"`
	Service    string                           `db:"service" json:"service"`
	Name       string                           `db:"name" json:"name"`
	Categories database.JSONB[[]CategoryConfig] `db:"categories" json:"categories"`
	Active     bool                             `db:"active" json:"active"`
	// SyncSchedule is a standard 5-field cron expression. Empty means the
	// integration only syncs on demand.
	SyncSchedule       *string                                   `db:"sync_schedule" json:"sync_schedule,omitempty"`
	SyncStatus         SyncStatus                                `db:"sync_status" json:"sync_status"`
	LastSyncStartedAt  *time.Time                                `db:"last_sync_started_at" json:"last_sync_started_at,omitempty"`
	LastSyncFinishedAt *time.Time                                `db:"last_sync_finished_at" json:"last_sync_finished_at,omitempty"`
	LastSyncResult     database.JSONB[map[string]CategoryResult] `db:"last_sync_result" json:"last_sync_result,omitempty"`
	ErrorCount         int                                       `db:"error_count" json:"error_count"`
	LastError          *string                                   `db:"last_error" json:"last_error,omitempty"`
	CreatedAt          time.Time                                 `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time                                 `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Integration) TableName() string {
	return "integrations"
}

// EnabledCategories returns the categories with syncing enabled, in
// configuration order.
func (i *Integration) EnabledCategories() []CategoryConfig {
	var enabled []CategoryConfig
	for _, c := range i.Categories.Data {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	return enabled
}
