package aggregation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/epione-lab/project-epione/internal/core/sales"
	"github.com/shopspring/decimal"
)

// Aggregator maintains per-(product, window) metric accumulators in an
// explicit keyed store. Windows are created lazily on first ingest and
// frozen by Seal; the aggregator itself never seals — the external
// scheduler/caller owns that clock.
//
// Concurrency: the outer RWMutex guards the window map and the sealed-history
// index; each window carries its own mutex serializing accumulation and the
// seal flip. Sealed snapshots are immutable, so queries against sealed windows
// copy without holding the window lock. Lock order is always outer before
// window mutex.
type Aggregator struct {
	granularity Granularity

	mu      sync.RWMutex
	windows map[WindowID]*windowState

	// sealedByProduct indexes sealed snapshots per product, ascending by
	// window start. Baseline retrieval walks it backwards from the target
	// window — no back-references between Window and Snapshot.
	sealedByProduct map[string][]sealedRef
}

type windowState struct {
	mu      sync.Mutex
	window  Window
	buckets map[string]*accumulator

	// set once at seal time, sorted by product ID, never mutated after
	sealed []Snapshot
}

type accumulator struct {
	quantity    int64
	revenue     decimal.Decimal
	occurrences int64
}

type sealedRef struct {
	start    time.Time
	snapshot Snapshot
}

// New creates an empty aggregator for the given granularity.
func New(g Granularity) *Aggregator {
	return &Aggregator{
		granularity:     g,
		windows:         make(map[WindowID]*windowState),
		sealedByProduct: make(map[string][]sealedRef),
	}
}

// Granularity returns the configured window granularity.
func (a *Aggregator) Granularity() Granularity {
	return a.granularity
}

// Ingest accumulates one normalized sale record into its (product, window)
// bucket. Out-of-order timestamps are accepted as long as the target window
// is still open; ingesting into a sealed window fails with *SealedWindowError.
// Duplicate records are not detected here — callers must not feed duplicates.
func (a *Aggregator) Ingest(rec sales.Record) error {
	ws := a.windowFor(rec.Timestamp)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.window.Sealed {
		return &SealedWindowError{WindowID: ws.window.ID}
	}

	acc, ok := ws.buckets[rec.ProductID]
	if !ok {
		acc = &accumulator{revenue: decimal.Zero}
		ws.buckets[rec.ProductID] = acc
	}
	acc.quantity += rec.Quantity
	acc.revenue = acc.revenue.Add(rec.Revenue())
	acc.occurrences++

	return nil
}

func (a *Aggregator) windowFor(t time.Time) *windowState {
	id := IDFor(t, a.granularity)

	a.mu.RLock()
	ws, ok := a.windows[id]
	a.mu.RUnlock()
	if ok {
		return ws
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ws, ok := a.windows[id]; ok {
		return ws
	}
	ws = &windowState{
		window:  windowAt(t, a.granularity),
		buckets: make(map[string]*accumulator),
	}
	a.windows[id] = ws
	return ws
}

// Snapshot returns the current metric state for one (product, window) pair.
// The second return is false when the window or product is unknown.
// For open windows this is a point-in-time view.
func (a *Aggregator) Snapshot(productID string, windowID WindowID) (Snapshot, bool) {
	a.mu.RLock()
	ws, ok := a.windows[windowID]
	a.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.window.Sealed {
		for _, s := range ws.sealed {
			if s.ProductID == productID {
				return s, true
			}
		}
		return Snapshot{}, false
	}

	acc, ok := ws.buckets[productID]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(productID, windowID, acc), true
}

// Window returns the window entity (including its sealed flag) for inspection.
func (a *Aggregator) Window(windowID WindowID) (Window, error) {
	a.mu.RLock()
	ws, ok := a.windows[windowID]
	a.mu.RUnlock()
	if !ok {
		return Window{}, &NotFoundError{Kind: "window", Key: string(windowID)}
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.window, nil
}

// WindowSnapshots returns the window entity plus all product snapshots in it,
// sorted by product ID. Open windows yield a point-in-time partial view —
// callers distinguish via Window.Sealed. Unknown windows fail with
// *NotFoundError.
func (a *Aggregator) WindowSnapshots(windowID WindowID) (Window, []Snapshot, error) {
	a.mu.RLock()
	ws, ok := a.windows[windowID]
	a.mu.RUnlock()
	if !ok {
		return Window{}, nil, &NotFoundError{Kind: "window", Key: string(windowID)}
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.window.Sealed {
		out := make([]Snapshot, len(ws.sealed))
		copy(out, ws.sealed)
		return ws.window, out, nil
	}

	out := make([]Snapshot, 0, len(ws.buckets))
	for productID, acc := range ws.buckets {
		out = append(out, snapshotOf(productID, windowID, acc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return ws.window, out, nil
}

// Seal freezes a window: its snapshots become immutable and eligible as
// baseline history. One-way and idempotent — sealing a sealed window returns
// the frozen state unchanged. The caller is responsible for quiescing writers
// first; Seal is a barrier, not a fence. Unknown windows fail with
// *NotFoundError.
func (a *Aggregator) Seal(windowID WindowID) (Window, []Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ws, ok := a.windows[windowID]
	if !ok {
		return Window{}, nil, &NotFoundError{Kind: "window", Key: string(windowID)}
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.window.Sealed {
		out := make([]Snapshot, len(ws.sealed))
		copy(out, ws.sealed)
		return ws.window, out, nil
	}

	snaps := make([]Snapshot, 0, len(ws.buckets))
	for productID, acc := range ws.buckets {
		snaps = append(snaps, snapshotOf(productID, windowID, acc))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ProductID < snaps[j].ProductID })

	ws.window.Sealed = true
	ws.sealed = snaps
	ws.buckets = nil

	for _, s := range snaps {
		a.indexSealed(ws.window.Start, s)
	}

	out := make([]Snapshot, len(snaps))
	copy(out, snaps)
	return ws.window, out, nil
}

// RestoreSealed rehydrates a sealed window from durable storage at startup.
// Fails if the window is already present.
func (a *Aggregator) RestoreSealed(w Window, snaps []Snapshot) error {
	if w.Granularity != a.granularity {
		return fmt.Errorf("restore window %s: granularity %s does not match engine granularity %s",
			w.ID, w.Granularity, a.granularity)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.windows[w.ID]; exists {
		return fmt.Errorf("restore window %s: window already present", w.ID)
	}

	sealed := make([]Snapshot, len(snaps))
	copy(sealed, snaps)
	sort.Slice(sealed, func(i, j int) bool { return sealed[i].ProductID < sealed[j].ProductID })

	w.Sealed = true
	a.windows[w.ID] = &windowState{window: w, sealed: sealed}

	for _, s := range sealed {
		a.indexSealed(w.Start, s)
	}
	return nil
}

// indexSealed inserts a sealed snapshot into the per-product history,
// keeping it sorted ascending by window start. Caller holds a.mu.
func (a *Aggregator) indexSealed(start time.Time, s Snapshot) {
	refs := a.sealedByProduct[s.ProductID]
	i := sort.Search(len(refs), func(i int) bool { return !refs[i].start.Before(start) })
	refs = append(refs, sealedRef{})
	copy(refs[i+1:], refs[i:])
	refs[i] = sealedRef{start: start, snapshot: s}
	a.sealedByProduct[s.ProductID] = refs
}

// Baseline returns up to size sealed snapshots for the product from windows
// strictly preceding windowID, most recent first. The target window may be
// open; it must exist. Fewer than size points is not an error — insufficient
// history is the detector's null case, not the aggregator's.
func (a *Aggregator) Baseline(productID string, windowID WindowID, size int) ([]Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ws, ok := a.windows[windowID]
	if !ok {
		return nil, &NotFoundError{Kind: "window", Key: string(windowID)}
	}
	target := ws.window.Start

	refs := a.sealedByProduct[productID]
	i := sort.Search(len(refs), func(i int) bool { return !refs[i].start.Before(target) })

	if size <= 0 {
		return nil, nil
	}
	out := make([]Snapshot, 0, size)
	for j := i - 1; j >= 0 && len(out) < size; j-- {
		out = append(out, refs[j].snapshot)
	}
	return out, nil
}

// Windows lists known windows sorted ascending by start. With a non-empty
// productID only windows containing that product are returned.
func (a *Aggregator) Windows(productID string) []Window {
	a.mu.RLock()
	states := make([]*windowState, 0, len(a.windows))
	for _, ws := range a.windows {
		states = append(states, ws)
	}
	a.mu.RUnlock()

	out := make([]Window, 0, len(states))
	for _, ws := range states {
		ws.mu.Lock()
		include := productID == ""
		if !include {
			if ws.window.Sealed {
				for _, s := range ws.sealed {
					if s.ProductID == productID {
						include = true
						break
					}
				}
			} else {
				_, include = ws.buckets[productID]
			}
		}
		if include {
			out = append(out, ws.window)
		}
		ws.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func snapshotOf(productID string, windowID WindowID, acc *accumulator) Snapshot {
	return Snapshot{
		ProductID:       productID,
		WindowID:        windowID,
		TotalQuantity:   acc.quantity,
		TotalRevenue:    acc.revenue,
		OccurrenceCount: acc.occurrences,
	}
}
