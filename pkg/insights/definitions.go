package insights

// AggregateKind selects how a definition is computed from category records.
type AggregateKind string

const (
	// KindSum totals a numeric attribute across the period.
	KindSum AggregateKind = "sum"
	// KindAverage takes the mean of a numeric attribute across the period.
	KindAverage AggregateKind = "average"
	// KindFilteredCount counts records matching attribute filters in the
	// period. No percent change is computed for counts.
	KindFilteredCount AggregateKind = "filtered_count"
)

// TargetRule derives a target value from the previous period's value. A nil
// rule means the metric has no target.
type TargetRule func(previous float64) *float64

// GrowthTarget targets the previous value plus the given percentage.
func GrowthTarget(percent float64) TargetRule {
	return func(previous float64) *float64 {
		target := previous * (1 + percent/100)
		return &target
	}
}

// AggregateDef describes one derived metric: where its numbers come from and
// how they are rolled up.
type AggregateDef struct {
	// Category is the business grouping the insight is filed under.
	Category string
	Name     string
	Unit     string
	Kind     AggregateKind

	// SourceCategory is the sync category whose records feed the aggregate.
	SourceCategory string
	// Field is the numeric attribute for sum and average kinds. For a
	// filtered count it is optional; when set, the sum over it is attached
	// as metadata.
	Field string
	// DateField is the attribute that places a record in a period. Records
	// without it fall back to their created_at.
	DateField string
	// Filters are attribute equality predicates for filtered counts.
	Filters map[string]string

	// Target is optional. Sum kinds default to a +10% growth target.
	Target TargetRule
}

// DefaultDefinitions returns the stock dashboard metric set.
func DefaultDefinitions() []AggregateDef {
	return []AggregateDef{
		{
			Category:       "operations",
			Name:           "monthly_visits",
			Unit:           "visits",
			Kind:           KindSum,
			SourceCategory: "visits",
			Field:          "count",
			DateField:      "date",
			Target:         GrowthTarget(10),
		},
		{
			Category:       "operations",
			Name:           "monthly_revenue",
			Unit:           "usd",
			Kind:           KindSum,
			SourceCategory: "orders",
			Field:          "total",
			DateField:      "placed_at",
			Target:         GrowthTarget(10),
		},
		{
			Category:       "customer",
			Name:           "average_rating",
			Unit:           "stars",
			Kind:           KindAverage,
			SourceCategory: "reviews",
			Field:          "rating",
			DateField:      "submitted_at",
		},
		{
			Category:       "customer",
			Name:           "open_tickets",
			Unit:           "tickets",
			Kind:           KindFilteredCount,
			SourceCategory: "tickets",
			DateField:      "opened_at",
			Filters:        map[string]string{"status": "open"},
		},
	}
}
