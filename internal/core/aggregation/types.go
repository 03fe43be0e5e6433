package aggregation

import (
	"fmt"

	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/shopspring/decimal"
)

// Snapshot is the per-(product, window) metric state.
// Mutable only inside the aggregator while the window is open; the copies
// handed out by Snapshot/WindowSnapshots/Seal are value types and never
// alias internal state.
type Snapshot struct {
	ProductID       string          `json:"product_id"`
	WindowID        WindowID        `json:"window_id"`
	TotalQuantity   int64           `json:"total_quantity"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	OccurrenceCount int64           `json:"occurrence_count"`
}

// MetricValue reads the accumulator selected by metric as an exact decimal.
func (s Snapshot) MetricValue(m sales.Metric) decimal.Decimal {
	switch m {
	case sales.MetricRevenue:
		return s.TotalRevenue
	case sales.MetricOccurrences:
		return decimal.NewFromInt(s.OccurrenceCount)
	default:
		return decimal.NewFromInt(s.TotalQuantity)
	}
}

// SealedWindowError reports an attempted mutation of a sealed window.
// Recoverable: signals a caller bug or a late-arrival policy decision.
type SealedWindowError struct {
	WindowID WindowID
}

func (e *SealedWindowError) Error() string {
	return fmt.Sprintf("window %s is sealed", e.WindowID)
}

// NotFoundError reports a query against an unknown window or product.
type NotFoundError struct {
	Kind string // "window" or "product"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}
