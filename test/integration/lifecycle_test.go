//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "github.com/epione-lab/project-epione/internal/api/v1"
	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/anomaly"
	"github.com/epione-lab/project-epione/internal/core/storage"
	"github.com/epione-lab/project-epione/internal/ingestion"
	"github.com/epione-lab/project-epione/internal/reporting"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-process SnapshotStore so the lifecycle test runs
// without a database. Restart rehydration reads back what was saved.
type memoryStore struct {
	mu    sync.Mutex
	saved map[aggregation.WindowID]storage.SealedWindow
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[aggregation.WindowID]storage.SealedWindow)}
}

func (m *memoryStore) SaveSealedWindow(_ context.Context, w aggregation.Window, snaps []aggregation.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saved[w.ID]; ok {
		return nil // idempotent, like the postgres adapter
	}
	m.saved[w.ID] = storage.SealedWindow{Window: w, Snapshots: snaps}
	return nil
}

func (m *memoryStore) LoadSealedWindows(_ context.Context, g aggregation.Granularity) ([]storage.SealedWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.SealedWindow, 0, len(m.saved))
	for _, sw := range m.saved {
		if sw.Window.Granularity == g {
			out = append(out, sw)
		}
	}
	return out, nil
}

type harness struct {
	srv    *httptest.Server
	client *http.Client
	engine *aggregation.Aggregator
	store  *memoryStore
}

func startHarness(t *testing.T, store *memoryStore) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := aggregation.New(aggregation.GranularityDay)

	restored, err := store.LoadSealedWindows(context.Background(), aggregation.GranularityDay)
	require.NoError(t, err)
	for _, sw := range restored {
		require.NoError(t, engine.RestoreSealed(sw.Window, sw.Snapshots))
	}

	ingestionSvc := ingestion.NewService(engine, store, 1)
	reportingSvc := reporting.NewService(engine, anomaly.NewDetector(2.0), nil, reporting.Options{
		DefaultBaselineSize: 8,
		MaxTopN:             100,
	})

	r := gin.New()
	ingestionSvc.RegisterRoutes(r)
	reportingSvc.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &harness{srv: srv, client: srv.Client(), engine: engine, store: store}
}

func (h *harness) postJSON(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	var body bytes.Buffer
	require.NoError(t, json.NewEncoder(&body).Encode(payload))
	resp, err := h.client.Post(h.srv.URL+path, "application/json", &body)
	require.NoError(t, err)
	return resp
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func saleAt(productID string, day int, qty int64, price string) v1.Sale {
	return v1.Sale{
		ProductID: productID,
		Timestamp: time.Date(2026, 8, day, 14, 0, 0, 0, time.UTC),
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

// Full lifecycle: a quiet four-day baseline, a spike day, report and export
// queries, late-data rejection, and restart rehydration from the store.
func TestLifecycle_IngestSealReportExport(t *testing.T) {
	store := newMemoryStore()
	h := startHarness(t, store)

	// Baseline days: seal each through the API after ingesting.
	baseline := map[int]int64{1: 10, 2: 12, 3: 9, 4: 11}
	for day := 1; day <= 4; day++ {
		resp := h.postJSON(t, "/v1/sales", saleAt("sku-ibuprofen", day, baseline[day], "4.99"))
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		resp.Body.Close()

		resp = h.postJSON(t, fmt.Sprintf("/v1/windows/day:2026-08-0%d/seal", day), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// Spike day plus an unremarkable second product, via the batch endpoint.
	resp := h.postJSON(t, "/v1/sales/batch", v1.BatchRequest{
		Records: []v1.Sale{
			saleAt("sku-ibuprofen", 5, 200, "4.99"),
			saleAt("sku-bandage", 5, 30, "1.50"),
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var batch v1.BatchResponse
	decodeJSON(t, resp, &batch)
	require.Equal(t, 2, batch.Accepted)
	require.Equal(t, 0, batch.Skipped)

	// Report: spiking product ranked first and flagged as SPIKE.
	resp = h.get(t, "/v1/reports/day:2026-08-05?metric=quantity&n=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report reporting.Report
	decodeJSON(t, resp, &report)
	require.Len(t, report.Rankings, 2)
	require.Equal(t, "sku-ibuprofen", report.Rankings[0].ProductID)
	require.Equal(t, 1, report.Rankings[0].Rank)
	require.Len(t, report.Anomalies, 1)
	require.Equal(t, anomaly.KindSpike, report.Anomalies[0].Kind)
	require.Equal(t, "sku-ibuprofen", report.Anomalies[0].ProductID)

	// Export: CSV carries the anomaly marker on the spiking row only.
	resp = h.get(t, "/v1/export/day:2026-08-05?metric=quantity")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	var csvBody bytes.Buffer
	_, err := csvBody.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csvBody.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "sku-ibuprofen")
	require.Contains(t, lines[1], "SPIKE")
	require.NotContains(t, lines[2], "SPIKE")

	// Late data against a sealed baseline window is rejected with 409.
	resp = h.postJSON(t, "/v1/sales", saleAt("sku-ibuprofen", 3, 5, "4.99"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Seal the spike day so it survives the restart.
	resp = h.postJSON(t, "/v1/windows/day:2026-08-05/seal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Summary over all five windows.
	resp = h.get(t, "/v1/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary reporting.Summary
	decodeJSON(t, resp, &summary)
	require.Equal(t, 5, summary.Windows)
	require.Equal(t, 5, summary.SealedWindows)
	require.Equal(t, 2, summary.Products)
	require.Equal(t, int64(10+12+9+11+200+30), summary.TotalQuantity)

	// Restart: a fresh harness rehydrates sealed history from the store and
	// serves the identical report.
	h2 := startHarness(t, store)

	resp = h2.get(t, "/v1/reports/day:2026-08-05?metric=quantity&n=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report2 reporting.Report
	decodeJSON(t, resp, &report2)
	require.Equal(t, report.Rankings, report2.Rankings)
	require.Len(t, report2.Anomalies, 1)
	require.Equal(t, report.Anomalies[0].Kind, report2.Anomalies[0].Kind)
}
