package postgres

// SQL queries for sealed-window persistence.

const (
	// queryInsertSealedWindow registers a sealed window.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) when the window
	// was already persisted — the idempotent re-save path.
	queryInsertSealedWindow = `
		INSERT INTO sealed_windows (
			window_id, granularity, window_start, window_end, sealed_at
		)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (window_id) DO NOTHING
		RETURNING window_id
	`

	// queryInsertSnapshot inserts one frozen (product, window) snapshot.
	// Snapshots are immutable — there is no upsert path; the window-level
	// conflict check above guarantees each window's snapshots are written once.
	queryInsertSnapshot = `
		INSERT INTO sealed_snapshots (
			window_id, partition_id, product_id,
			total_quantity, total_revenue, occurrence_count
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	// queryLoadSealedWindows streams all sealed windows of one granularity
	// with their snapshots, ordered so consecutive rows of the same window are
	// adjacent and windows come back oldest first.
	queryLoadSealedWindows = `
		SELECT
			w.window_id, w.granularity, w.window_start, w.window_end,
			s.product_id, s.total_quantity, s.total_revenue, s.occurrence_count
		FROM sealed_windows w
		LEFT JOIN sealed_snapshots s ON s.window_id = w.window_id
		WHERE w.granularity = $1
		ORDER BY w.window_start ASC, s.product_id ASC
	`
)
