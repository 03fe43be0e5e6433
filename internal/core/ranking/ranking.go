package ranking

import (
	"sort"

	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/shopspring/decimal"
)

// Entry is one row of a Top-N result. Derived, never persisted.
type Entry struct {
	ProductID string          `json:"product_id"`
	Value     decimal.Decimal `json:"value"`
	Rank      int             `json:"rank"` // 1-based
}

// Less is the single ranking comparator: metric value descending, product ID
// ascending on ties. Every component that orders products goes through this
// function so tie-break behavior cannot diverge.
func Less(a, b aggregation.Snapshot, metric sales.Metric) bool {
	av, bv := a.MetricValue(metric), b.MetricValue(metric)
	if !av.Equal(bv) {
		return av.GreaterThan(bv)
	}
	return a.ProductID < b.ProductID
}

// TopN ranks snapshots by the chosen metric and returns at most n entries.
// n <= 0 yields an empty result; n beyond the number of products returns all
// of them, no padding. The input slice is not modified.
func TopN(snapshots []aggregation.Snapshot, metric sales.Metric, n int) []Entry {
	if n <= 0 || len(snapshots) == 0 {
		return []Entry{}
	}

	sorted := make([]aggregation.Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j], metric) })

	if n > len(sorted) {
		n = len(sorted)
	}

	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Entry{
			ProductID: sorted[i].ProductID,
			Value:     sorted[i].MetricValue(metric),
			Rank:      i + 1,
		})
	}
	return out
}
