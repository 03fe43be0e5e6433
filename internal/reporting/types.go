package reporting

import (
	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/anomaly"
	"github.com/epione-lab/project-epione/internal/core/ranking"
	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/shopspring/decimal"
)

// ReportRequest carries the parameters of one report query.
type ReportRequest struct {
	WindowID     aggregation.WindowID
	Metric       sales.Metric
	N            int
	BaselineSize int
}

// Report is the composed query result: Top-N rankings plus anomaly flags for
// one window. Pure composition of the ranker and detector — no new numbers
// are computed here.
type Report struct {
	Window       aggregation.Window `json:"window"`
	Metric       sales.Metric       `json:"metric"`
	BaselineSize int                `json:"baseline_size"`
	Rankings     []ranking.Entry    `json:"rankings"`
	Anomalies    []anomaly.Flag     `json:"anomalies"`
}

// ExportRow is the flat tabular shape handed to an external CSV writer.
// The core defines this row shape, not the file format.
type ExportRow struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Value       decimal.Decimal `json:"value"`
	Rank        int             `json:"rank"`
	Anomaly     string          `json:"anomaly"` // SPIKE, DROP, or empty
}

// Summary is the aggregate view across all known windows.
type Summary struct {
	Windows          int             `json:"windows"`
	SealedWindows    int             `json:"sealed_windows"`
	Products         int             `json:"products"`
	TotalQuantity    int64           `json:"total_quantity"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalOccurrences int64           `json:"total_occurrences"`
}
