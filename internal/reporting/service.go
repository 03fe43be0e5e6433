package reporting

import (
	"errors"
	"fmt"

	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/anomaly"
	"github.com/epione-lab/project-epione/internal/core/ranking"
	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/shopspring/decimal"
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid report query")

// ProductCatalog resolves display names for export rows.
type ProductCatalog interface {
	DisplayName(id string) string
}

// Options are the engine-level query defaults from configuration.
type Options struct {
	DefaultBaselineSize int
	MaxTopN             int
}

// Service implements the read path: report composition, window discovery,
// summary totals, and the export row shape.
type Service struct {
	engine   *aggregation.Aggregator
	detector *anomaly.Detector
	catalog  ProductCatalog
	opts     Options
}

// NewService creates a reporting service. catalog may be nil — export rows
// then fall back to raw product IDs.
func NewService(engine *aggregation.Aggregator, detector *anomaly.Detector, catalog ProductCatalog, opts Options) *Service {
	if engine == nil {
		panic("reporting: engine must not be nil")
	}
	if detector == nil {
		panic("reporting: detector must not be nil")
	}
	if opts.DefaultBaselineSize < anomaly.MinBaselinePoints {
		opts.DefaultBaselineSize = 8
	}
	if opts.MaxTopN <= 0 {
		opts.MaxTopN = 100
	}
	return &Service{
		engine:   engine,
		detector: detector,
		catalog:  catalog,
		opts:     opts,
	}
}

// Report composes rankings and anomaly flags for one window.
//
// Querying an open window is allowed and yields a point-in-time partial view;
// the caller distinguishes via Window.Sealed. Over sealed data the result is
// fully deterministic: identical arguments return identical bytes.
func (s *Service) Report(req ReportRequest) (*Report, error) {
	req, err := s.normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	window, snapshots, err := s.engine.WindowSnapshots(req.WindowID)
	if err != nil {
		return nil, err
	}

	rankings := ranking.TopN(snapshots, req.Metric, req.N)

	// Snapshots arrive sorted by product ID, so the anomaly order is stable.
	anomalies := make([]anomaly.Flag, 0)
	for _, snap := range snapshots {
		baseline, err := s.engine.Baseline(snap.ProductID, req.WindowID, req.BaselineSize)
		if err != nil {
			return nil, fmt.Errorf("baseline for %s: %w", snap.ProductID, err)
		}

		values := make([]decimal.Decimal, len(baseline))
		for i, b := range baseline {
			values[i] = b.MetricValue(req.Metric)
		}

		if flag := s.detector.Detect(snap.ProductID, req.WindowID, snap.MetricValue(req.Metric), values); flag != nil {
			anomalies = append(anomalies, *flag)
		}
	}

	return &Report{
		Window:       window,
		Metric:       req.Metric,
		BaselineSize: req.BaselineSize,
		Rankings:     rankings,
		Anomalies:    anomalies,
	}, nil
}

// Detect runs anomaly detection for a single product in a window.
// Unknown products are a null result, not an error; unknown windows fail with
// *aggregation.NotFoundError.
func (s *Service) Detect(productID string, windowID aggregation.WindowID, metric sales.Metric, baselineSize int) (*anomaly.Flag, error) {
	if baselineSize <= 0 {
		baselineSize = s.opts.DefaultBaselineSize
	}

	if _, err := s.engine.Window(windowID); err != nil {
		return nil, err
	}

	snap, ok := s.engine.Snapshot(productID, windowID)
	if !ok {
		return nil, nil
	}

	baseline, err := s.engine.Baseline(productID, windowID, baselineSize)
	if err != nil {
		return nil, err
	}

	values := make([]decimal.Decimal, len(baseline))
	for i, b := range baseline {
		values[i] = b.MetricValue(metric)
	}
	return s.detector.Detect(productID, windowID, snap.MetricValue(metric), values), nil
}

// ListWindows returns known windows for discovery, oldest first.
// A non-empty productID restricts to windows containing that product.
func (s *Service) ListWindows(productID string) []aggregation.Window {
	return s.engine.Windows(productID)
}

// Summary totals all metrics across every known window, open or sealed.
func (s *Service) Summary() (*Summary, error) {
	sum := &Summary{TotalRevenue: decimal.Zero}
	seen := make(map[string]struct{})

	for _, w := range s.engine.Windows("") {
		sum.Windows++
		if w.Sealed {
			sum.SealedWindows++
		}

		_, snapshots, err := s.engine.WindowSnapshots(w.ID)
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		for _, snap := range snapshots {
			seen[snap.ProductID] = struct{}{}
			sum.TotalQuantity += snap.TotalQuantity
			sum.TotalRevenue = sum.TotalRevenue.Add(snap.TotalRevenue)
			sum.TotalOccurrences += snap.OccurrenceCount
		}
	}

	sum.Products = len(seen)
	return sum, nil
}

// ExportRows flattens a report into the tabular export shape: one row per
// ranking entry, annotated with the anomaly kind where one was flagged.
func (s *Service) ExportRows(req ReportRequest) (aggregation.Window, []ExportRow, error) {
	report, err := s.Report(req)
	if err != nil {
		return aggregation.Window{}, nil, err
	}

	flagged := make(map[string]anomaly.Kind, len(report.Anomalies))
	for _, f := range report.Anomalies {
		flagged[f.ProductID] = f.Kind
	}

	rows := make([]ExportRow, 0, len(report.Rankings))
	for _, entry := range report.Rankings {
		rows = append(rows, ExportRow{
			ProductID:   entry.ProductID,
			ProductName: s.displayName(entry.ProductID),
			Value:       entry.Value,
			Rank:        entry.Rank,
			Anomaly:     string(flagged[entry.ProductID]),
		})
	}
	return report.Window, rows, nil
}

func (s *Service) displayName(productID string) string {
	if s.catalog == nil {
		return productID
	}
	return s.catalog.DisplayName(productID)
}

func (s *Service) normalizeRequest(req ReportRequest) (ReportRequest, error) {
	if req.WindowID == "" {
		return req, invalidQueryf("window id is required")
	}
	if req.Metric == "" {
		req.Metric = sales.MetricQuantity
	}
	if _, err := sales.ParseMetric(string(req.Metric)); err != nil {
		return req, invalidQueryf("%s", err)
	}
	if req.N > s.opts.MaxTopN {
		return req, invalidQueryf("n %d exceeds maximum %d", req.N, s.opts.MaxTopN)
	}
	if req.BaselineSize <= 0 {
		req.BaselineSize = s.opts.DefaultBaselineSize
	}
	return req, nil
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
