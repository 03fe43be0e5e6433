package storage

import (
	"context"

	"github.com/epione-lab/project-epione/internal/core/aggregation"
)

// SealedWindow couples a sealed window with its frozen snapshots as one
// persistence unit.
type SealedWindow struct {
	Window    aggregation.Window
	Snapshots []aggregation.Snapshot
}

// SnapshotStore is the interface for durable sealed-window persistence.
// Sealed snapshots are immutable, so the store only ever appends.
//
// Contract: SaveSealedWindow writes the window row and all its snapshots in a
// single transaction, and is idempotent per window — re-saving an
// already-persisted window is a no-op. This makes the seal-then-flush path
// safe to retry after a crash.
type SnapshotStore interface {
	SaveSealedWindow(ctx context.Context, w aggregation.Window, snapshots []aggregation.Snapshot) error

	// LoadSealedWindows returns all persisted sealed windows for one
	// granularity, ordered by window start ASC. Used at startup to rehydrate
	// the engine's baseline history.
	LoadSealedWindows(ctx context.Context, g aggregation.Granularity) ([]SealedWindow, error)
}
