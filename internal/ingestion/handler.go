package ingestion

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/epione-lab/project-epione/internal/api/v1"
	"github.com/epione-lab/project-epione/internal/core/aggregation"
	httperr "github.com/epione-lab/project-epione/internal/core/errors"
	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgWindowSealed   = "Target window is sealed"

	onInvalidAbort = "abort"
	onInvalidSkip  = "skip"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles HTTP POST requests for single sale line-items.
func (s *Service) IngestHandler(c *gin.Context) {
	var raw v1.Sale
	if herr := s.parseBody(c, &raw); herr != nil {
		writeError(c, herr)
		return
	}

	rec, herr := normalizeSale(raw)
	if herr != nil {
		writeError(c, herr)
		return
	}
	rec.ID = uuid.NewString()

	if err := s.engine.Ingest(rec); err != nil {
		writeError(c, ingestFailure(err, rec))
		return
	}

	slog.Info("Ingested sale",
		"record_id", rec.ID,
		"product_id", rec.ProductID,
		"quantity", rec.Quantity,
		"window_id", aggregation.IDFor(rec.Timestamp, s.engine.Granularity()))

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"record_id": rec.ID,
		"window_id": aggregation.IDFor(rec.Timestamp, s.engine.Granularity()),
	})
}

// IngestBatchHandler handles HTTP POST requests for sale batches.
//
// The on_invalid field surfaces the skip-or-abort policy to the caller:
// "abort" (default) validates the whole batch up front and ingests nothing if
// any record is invalid; "skip" drops invalid records and ingests the rest.
// Cancellation is checked once per record, never mid-record.
func (s *Service) IngestBatchHandler(c *gin.Context) {
	var req v1.BatchRequest
	if herr := s.parseBody(c, &req); herr != nil {
		writeError(c, herr)
		return
	}

	switch req.OnInvalid {
	case "", onInvalidAbort, onInvalidSkip:
	default:
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "on_invalid must be \"abort\" or \"skip\"",
		})
		return
	}
	skipInvalid := req.OnInvalid == onInvalidSkip

	// Normalize everything first so abort mode rejects the batch before any
	// record reaches the engine.
	type pendingRecord struct {
		index int // position in the submitted batch
		rec   sales.Record
	}

	resp := v1.BatchResponse{}
	records := make([]pendingRecord, 0, len(req.Records))
	for i, raw := range req.Records {
		rec, err := sales.Normalize(raw)
		if err != nil {
			var verr *sales.ValidationError
			batchErr := v1.BatchError{Index: i, Message: err.Error()}
			if errors.As(err, &verr) {
				batchErr.Field = verr.Field
			}

			if !skipInvalid {
				writeError(c, &ingestionError{
					statusCode: http.StatusBadRequest,
					errorType:  httperr.HttpValidationError,
					message:    "Batch rejected: invalid record",
					details:    batchErr,
				})
				return
			}

			resp.Skipped++
			resp.Errors = append(resp.Errors, batchErr)
			continue
		}
		rec.ID = uuid.NewString()
		records = append(records, pendingRecord{index: i, rec: rec})
	}

	ctx := c.Request.Context()
	for i, p := range records {
		// Cooperative cancellation between records.
		select {
		case <-ctx.Done():
			slog.Warn("Batch ingest interrupted",
				"accepted", resp.Accepted,
				"remaining", len(records)-i)
			writeError(c, &ingestionError{
				statusCode: http.StatusServiceUnavailable,
				errorType:  httperr.HttpInternalError,
				message:    "Batch ingest interrupted",
				details:    resp,
			})
			return
		default:
		}

		if err := s.engine.Ingest(p.rec); err != nil {
			// Sealed-window hits are reported per record regardless of policy:
			// they are a late-data condition, not a validation failure.
			resp.Skipped++
			resp.Errors = append(resp.Errors, v1.BatchError{Index: p.index, Message: err.Error()})
			continue
		}
		resp.Accepted++
	}

	slog.Info("Batch ingested",
		"accepted", resp.Accepted,
		"skipped", resp.Skipped)

	c.JSON(http.StatusAccepted, resp)
}

// SealHandler freezes a window and flushes its snapshots to durable storage.
func (s *Service) SealHandler(c *gin.Context) {
	windowID := aggregation.WindowID(c.Param("window_id"))

	w, snaps, err := s.engine.Seal(windowID)
	if err != nil {
		var nfErr *aggregation.NotFoundError
		if errors.As(err, &nfErr) {
			writeError(c, &ingestionError{
				statusCode: http.StatusNotFound,
				errorType:  httperr.HttpNotFoundError,
				message:    err.Error(),
			})
			return
		}
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to seal window",
		})
		return
	}

	if err := s.store.SaveSealedWindow(c.Request.Context(), w, snaps); err != nil {
		slog.Error("Failed to persist sealed window", "error", err, "window_id", w.ID)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Window sealed but persistence failed",
		})
		return
	}

	slog.Info("Window sealed", "window_id", w.ID, "snapshots", len(snaps))

	c.JSON(http.StatusOK, gin.H{
		"window":    w,
		"snapshots": len(snaps),
	})
}

// parseBody reads the size-capped request body and binds it into out.
func (s *Service) parseBody(c *gin.Context, out interface{}) *ingestionError {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if err := c.ShouldBindJSON(out); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return nil
}

// normalizeSale validates a raw sale, mapping validation failures to the HTTP shape.
func normalizeSale(raw v1.Sale) (sales.Record, *ingestionError) {
	rec, err := sales.Normalize(raw)
	if err == nil {
		return rec, nil
	}

	slog.Warn("Sale validation failed", "error", err, "product_id", raw.ProductID)

	var verr *sales.ValidationError
	details := interface{}(nil)
	if errors.As(err, &verr) {
		details = map[string]string{"field": verr.Field, "reason": verr.Reason}
	}
	return sales.Record{}, &ingestionError{
		statusCode: http.StatusBadRequest,
		errorType:  httperr.HttpValidationError,
		message:    err.Error(),
		details:    details,
	}
}

// ingestFailure maps engine ingest errors to the HTTP shape.
func ingestFailure(err error, rec sales.Record) *ingestionError {
	var sealedErr *aggregation.SealedWindowError
	if errors.As(err, &sealedErr) {
		slog.Info("Late sale rejected", "product_id", rec.ProductID, "window_id", sealedErr.WindowID)
		return &ingestionError{
			statusCode: http.StatusConflict,
			errorType:  httperr.HttpSealedWindowError,
			message:    msgWindowSealed,
			details:    map[string]string{"window_id": string(sealedErr.WindowID)},
		}
	}

	slog.Error("Failed to ingest sale", "error", err, "product_id", rec.ProductID)
	return &ingestionError{
		statusCode: http.StatusInternalServerError,
		errorType:  httperr.HttpInternalError,
		message:    "Failed to ingest sale",
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
