package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/epione-lab/project-epione/internal/core/aggregation"
	httperr "github.com/epione-lab/project-epione/internal/core/errors"
	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/gin-gonic/gin"
)

const defaultTopN = 10

// RegisterRoutes registers the reporting service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/reports/:window_id", s.ReportHandler)
	r.GET("/v1/windows", s.WindowsHandler)
	r.GET("/v1/summary", s.SummaryHandler)
	r.GET("/v1/export/:window_id", s.ExportHandler)
}

// ReportHandler handles HTTP GET requests for one window's composed report.
//
// Query parameters: metric (quantity|revenue|occurrences, default quantity),
// n (Top-N size, default 10), baseline (baseline window count, default from
// configuration).
func (s *Service) ReportHandler(c *gin.Context) {
	req, ok := s.parseReportQuery(c)
	if !ok {
		return
	}

	report, err := s.Report(req)
	if err != nil {
		writeQueryError(c, err)
		return
	}

	slog.Info("Report served",
		"window_id", req.WindowID,
		"metric", req.Metric,
		"rankings", len(report.Rankings),
		"anomalies", len(report.Anomalies))

	c.JSON(http.StatusOK, report)
}

// WindowsHandler lists known windows, optionally filtered by product_id.
func (s *Service) WindowsHandler(c *gin.Context) {
	windows := s.ListWindows(c.Query("product_id"))
	c.JSON(http.StatusOK, gin.H{
		"windows": windows,
		"count":   len(windows),
	})
}

// SummaryHandler serves the aggregate totals across all windows.
func (s *Service) SummaryHandler(c *gin.Context) {
	summary, err := s.Summary()
	if err != nil {
		slog.Error("Failed to compute summary", "error", err)
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExportHandler streams one window's report as CSV. Same query parameters as
// ReportHandler. The file format lives here at the HTTP edge; the core only
// defines the row shape.
func (s *Service) ExportHandler(c *gin.Context) {
	req, ok := s.parseReportQuery(c)
	if !ok {
		return
	}

	window, rows, err := s.ExportRows(req)
	if err != nil {
		writeQueryError(c, err)
		return
	}

	filename := fmt.Sprintf("report_%s_%s.csv", sanitizeFilename(string(window.ID)), req.Metric)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	header := []string{"product_id", "product_name", "metric", "value", "rank", "anomaly"}
	if err := w.Write(header); err != nil {
		slog.Error("Failed to write CSV header", "error", err)
		return
	}
	for _, row := range rows {
		record := []string{
			row.ProductID,
			row.ProductName,
			string(req.Metric),
			row.Value.String(),
			strconv.Itoa(row.Rank),
			row.Anomaly,
		}
		if err := w.Write(record); err != nil {
			slog.Error("Failed to write CSV row", "error", err, "product_id", row.ProductID)
			return
		}
	}
	w.Flush()

	slog.Info("Report exported",
		"window_id", window.ID,
		"metric", req.Metric,
		"rows", len(rows))
}

// parseReportQuery binds the shared report/export query parameters. On failure
// it writes the 400 response itself and returns ok=false.
func (s *Service) parseReportQuery(c *gin.Context) (ReportRequest, bool) {
	req := ReportRequest{
		WindowID: aggregation.WindowID(c.Param("window_id")),
		Metric:   sales.Metric(c.DefaultQuery("metric", string(sales.MetricQuantity))),
		N:        defaultTopN,
	}

	if raw := c.Query("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeQueryError(c, invalidQueryf("n must be an integer, got %q", raw))
			return req, false
		}
		req.N = n
	}
	if raw := c.Query("baseline"); raw != "" {
		b, err := strconv.Atoi(raw)
		if err != nil {
			writeQueryError(c, invalidQueryf("baseline must be an integer, got %q", raw))
			return req, false
		}
		req.BaselineSize = b
	}
	return req, true
}

// writeQueryError maps read-path errors onto the HTTP error shape.
func writeQueryError(c *gin.Context, err error) {
	var nfErr *aggregation.NotFoundError
	switch {
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   err.Error(),
		})
	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   err.Error(),
			Details:   map[string]string{"kind": nfErr.Kind, "key": nfErr.Key},
		})
	default:
		slog.Error("Report query failed", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to serve report",
		})
	}
}

// sanitizeFilename keeps window IDs safe inside a Content-Disposition filename.
func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
