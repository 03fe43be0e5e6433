package sealing

import (
	"context"
	"log/slog"
	"time"

	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/storage"
)

// Scheduler seals expired windows on a periodic interval. A window is expired
// once its end lies more than the grace period in the past; the grace period
// absorbs clock skew and late-arriving sales.
//
// The scheduler owns the sealing clock — the aggregator itself never seals.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration
	engine   *aggregation.Aggregator
	store    storage.SnapshotStore

	// now is swappable for tests
	now func() time.Time
}

// NewScheduler creates a sealing scheduler over the given engine and store.
func NewScheduler(interval, grace time.Duration, engine *aggregation.Aggregator, store storage.SnapshotStore) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if grace < 0 {
		grace = 0
	}
	return &Scheduler{
		interval: interval,
		grace:    grace,
		engine:   engine,
		store:    store,
		now:      time.Now,
	}
}

// Start begins periodic sealing. Runs until the context is cancelled, then
// performs one final sweep so no expired window is left open across restarts.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Sealing] Starting sealing scheduler",
		"interval", s.interval,
		"grace", s.grace,
		"granularity", s.engine.Granularity(),
	)

	// Initial sweep to catch windows that expired while the service was down.
	s.SealExpired(ctx)

	for {
		select {
		case <-ticker.C:
			s.SealExpired(ctx)
		case <-ctx.Done():
			slog.Info("[Sealing] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			slog.Info("[Sealing] Running final sweep before shutdown...")
			s.SealExpired(shutdownCtx)
			slog.Info("[Sealing] Final sweep complete")

			return nil
		}
	}
}

// SealExpired seals and persists every open window whose end precedes
// now - grace. Returns the number of windows sealed in this sweep.
// Persistence failures are logged and skipped; the window stays sealed
// in memory and the adapter's idempotent save allows a later retry at
// the API seal endpoint.
func (s *Scheduler) SealExpired(ctx context.Context) int {
	cutoff := s.now().Add(-s.grace)
	sealed := 0

	for _, w := range s.engine.Windows("") {
		if w.Sealed || !w.End.Before(cutoff) {
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("[Sealing] Sweep interrupted by context cancellation", "sealed_so_far", sealed)
			return sealed
		default:
		}

		win, snaps, err := s.engine.Seal(w.ID)
		if err != nil {
			slog.Error("[Sealing] Failed to seal window", "error", err, "window_id", w.ID)
			continue
		}

		if err := s.store.SaveSealedWindow(ctx, win, snaps); err != nil {
			slog.Error("[Sealing] Failed to persist sealed window",
				"error", err,
				"window_id", win.ID,
				"snapshots", len(snaps),
			)
			continue
		}

		sealed++
		slog.Info("[Sealing] Window sealed",
			"window_id", win.ID,
			"snapshots", len(snaps),
			"window_end", win.End,
		)
	}

	if sealed > 0 {
		slog.Info("[Sealing] Sweep complete", "windows_sealed", sealed)
	}
	return sealed
}
