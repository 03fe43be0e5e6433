package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "github.com/epione-lab/project-epione/internal/api/v1"
	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/epione-lab/project-epione/internal/core/storage"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved []storage.SealedWindow
	err   error
}

func (f *fakeStore) SaveSealedWindow(_ context.Context, w aggregation.Window, snaps []aggregation.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, storage.SealedWindow{Window: w, Snapshots: snaps})
	return nil
}

func (f *fakeStore) LoadSealedWindows(context.Context, aggregation.Granularity) ([]storage.SealedWindow, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *aggregation.Aggregator, *fakeStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := aggregation.New(aggregation.GranularityDay)
	store := &fakeStore{}
	svc := NewService(engine, store, 1)

	r := gin.New()
	svc.RegisterRoutes(r)
	return r, engine, store
}

func postJSON(t *testing.T, r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func testSale(productID string, qty int64) v1.Sale {
	return v1.Sale{
		ProductID: productID,
		Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("4.99"),
	}
}

func TestIngestHandler_Accepted(t *testing.T) {
	r, engine, _ := newTestRouter(t)

	w := postJSON(t, r, "/v1/sales", testSale("sku-1", 3))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		Status   string `json:"status"`
		RecordID string `json:"record_id"`
		WindowID string `json:"window_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "accepted", resp.Status)
	require.NotEmpty(t, resp.RecordID)
	require.Equal(t, "day:2026-08-20", resp.WindowID)

	snap, ok := engine.Snapshot("sku-1", "day:2026-08-20")
	require.True(t, ok)
	require.Equal(t, int64(3), snap.TotalQuantity)
}

func TestIngestHandler_InvalidJSON(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sales", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_json")
}

func TestIngestHandler_ValidationFailure(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := postJSON(t, r, "/v1/sales", testSale("", 3))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "validation_failed")
	require.Contains(t, w.Body.String(), "product_id")
}

func TestIngestHandler_OversizedBody(t *testing.T) {
	r, _, _ := newTestRouter(t)

	big := fmt.Sprintf(`{"product_id":"%s"}`, strings.Repeat("x", 2*1024*1024))
	req := httptest.NewRequest(http.MethodPost, "/v1/sales", strings.NewReader(big))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestIngestHandler_SealedWindowConflict(t *testing.T) {
	r, engine, _ := newTestRouter(t)

	w := postJSON(t, r, "/v1/sales", testSale("sku-1", 3))
	require.Equal(t, http.StatusAccepted, w.Code)

	_, _, err := engine.Seal("day:2026-08-20")
	require.NoError(t, err)

	w = postJSON(t, r, "/v1/sales", testSale("sku-1", 1))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "window_sealed")
}

func TestIngestBatchHandler_AbortIsDefault(t *testing.T) {
	r, engine, _ := newTestRouter(t)

	w := postJSON(t, r, "/v1/sales/batch", v1.BatchRequest{
		Records: []v1.Sale{testSale("sku-1", 3), testSale("", 1)},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "validation_failed")

	// Nothing reached the engine.
	_, ok := engine.Snapshot("sku-1", "day:2026-08-20")
	require.False(t, ok)
}

func TestIngestBatchHandler_SkipPolicy(t *testing.T) {
	r, engine, _ := newTestRouter(t)

	w := postJSON(t, r, "/v1/sales/batch", v1.BatchRequest{
		Records:   []v1.Sale{testSale("sku-1", 3), testSale("", 1), testSale("sku-2", 2)},
		OnInvalid: "skip",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp v1.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Accepted)
	require.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, 1, resp.Errors[0].Index)
	require.Equal(t, "product_id", resp.Errors[0].Field)

	_, ok := engine.Snapshot("sku-2", "day:2026-08-20")
	require.True(t, ok)
}

func TestIngestBatchHandler_SealedWindowReportedPerRecord(t *testing.T) {
	r, engine, _ := newTestRouter(t)

	require.NoError(t, engine.Ingest(mustNormalize(t, testSale("sku-0", 1))))
	_, _, err := engine.Seal("day:2026-08-20")
	require.NoError(t, err)

	late := testSale("sku-1", 3)
	fresh := testSale("sku-2", 2)
	fresh.Timestamp = fresh.Timestamp.AddDate(0, 0, 1)

	w := postJSON(t, r, "/v1/sales/batch", v1.BatchRequest{Records: []v1.Sale{late, fresh}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp v1.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Accepted)
	require.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, 0, resp.Errors[0].Index)
}

func TestIngestBatchHandler_UnknownPolicy(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := postJSON(t, r, "/v1/sales/batch", v1.BatchRequest{
		Records:   []v1.Sale{testSale("sku-1", 1)},
		OnInvalid: "explode",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSealHandler_PersistsWindow(t *testing.T) {
	r, engine, store := newTestRouter(t)

	require.NoError(t, engine.Ingest(mustNormalize(t, testSale("sku-1", 3))))

	req := httptest.NewRequest(http.MethodPost, "/v1/windows/day:2026-08-20/seal", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, store.saved, 1)
	require.Equal(t, aggregation.WindowID("day:2026-08-20"), store.saved[0].Window.ID)
	require.Len(t, store.saved[0].Snapshots, 1)

	win, err := engine.Window("day:2026-08-20")
	require.NoError(t, err)
	require.True(t, win.Sealed)
}

func TestSealHandler_UnknownWindow(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/windows/day:2031-01-01/seal", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not_found")
}

func TestSealHandler_StoreFailure(t *testing.T) {
	r, engine, store := newTestRouter(t)
	store.err = errors.New("connection refused")

	require.NoError(t, engine.Ingest(mustNormalize(t, testSale("sku-1", 3))))

	req := httptest.NewRequest(http.MethodPost, "/v1/windows/day:2026-08-20/seal", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func mustNormalize(t *testing.T, raw v1.Sale) sales.Record {
	t.Helper()
	rec, err := sales.Normalize(raw)
	require.NoError(t, err)
	return rec
}
