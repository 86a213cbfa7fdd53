package models

import "time"

// CategoryOutcome is the result of reconciling one category's batch.
type CategoryOutcome struct {
	Category string `json:"category"`
	Added    int    `json:"added"`
	Updated  int    `json:"updated"`
	Errors   int    `json:"errors"`
}

// SyncOutcome aggregates the per-category outcomes of one sync run.
// Categories preserves configuration order for presentation.
type SyncOutcome struct {
	IntegrationID string            `json:"integration_id"`
	Status        SyncStatus        `json:"status"`
	Categories    []CategoryOutcome `json:"categories"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
}

// TotalAdded returns the added count summed across categories.
func (o *SyncOutcome) TotalAdded() int {
	total := 0
	for _, c := range o.Categories {
		total += c.Added
	}
	return total
}

// TotalUpdated returns the updated count summed across categories.
func (o *SyncOutcome) TotalUpdated() int {
	total := 0
	for _, c := range o.Categories {
		total += c.Updated
	}
	return total
}

// TotalErrors returns the error count summed across categories.
func (o *SyncOutcome) TotalErrors() int {
	total := 0
	for _, c := range o.Categories {
		total += c.Errors
	}
	return total
}

// ResultSummary converts the outcome to the persisted per-category map.
func (o *SyncOutcome) ResultSummary() map[string]CategoryResult {
	summary := make(map[string]CategoryResult, len(o.Categories))
	for _, c := range o.Categories {
		summary[c.Category] = CategoryResult{Added: c.Added, Updated: c.Updated, Errors: c.Errors}
	}
	return summary
}
