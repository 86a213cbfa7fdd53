package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
)

// SourceRecord is one record as returned by an external system's fetch for a
// category. Fields is a flat map; the category config decides which keys are
// copied into storage.
type SourceRecord struct {
	Fields      map[string]any `json:"fields"`
	ExternalID  string         `json:"external_id,omitempty"`
	ExternalURL string         `json:"external_url,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CategoryRecord is a reconciled entity row. The natural key is unique per
// (tenant, category); repeated reconciliation with the same key updates the
// row in place and never creates a duplicate.
type CategoryRecord struct {
	ID          uuid.UUID                      `db:"id" json:"id"`
	TenantID    uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	Category    string                         `db:"category" json:"category"`
	NaturalKey  string                         `db:"natural_key" json:"natural_key"`
	Attributes  database.JSONB[map[string]any] `db:"attributes" json:"attributes"`
	ExternalID  *string                        `db:"external_id" json:"external_id,omitempty"`
	ExternalURL *string                        `db:"external_url" json:"external_url,omitempty"`
	Metadata    database.JSONB[map[string]any] `db:"metadata" json:"metadata,omitempty"`
	// CreatedAt is preserved from the first insert. UpdatedAt and SyncedAt
	// advance only on successful reconciliation.
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	SyncedAt  time.Time `db:"synced_at" json:"synced_at"`
}

// TableName returns the database table name
func (CategoryRecord) TableName() string {
	return "category_records"
}
