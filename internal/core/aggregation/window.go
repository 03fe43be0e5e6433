package aggregation

import (
	"fmt"
	"time"
)

// Granularity is the configured time bucket size for aggregation windows.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity parses the wire/config form of a granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("unknown granularity %q (must be day, week, or month)", s)
	}
}

// WindowID identifies one aggregation window. It is a pure function of
// (timestamp, granularity) — see IDFor — which makes re-aggregation of the
// same record set idempotent regardless of ingestion order.
type WindowID string

// Window is one fixed time bucket: [Start, End), half-open.
type Window struct {
	ID          WindowID    `json:"id"`
	Granularity Granularity `json:"granularity"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Sealed      bool        `json:"sealed"`
}

// StartOf truncates a UTC timestamp to its window boundary.
// Weeks start on Monday; months on the 1st. Calendar-based rather than
// duration-based — months are not a fixed number of hours.
func StartOf(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	switch g {
	case GranularityWeek:
		offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
		return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// EndOf returns the exclusive end of the window starting at start.
func EndOf(start time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		return start.AddDate(0, 0, 7)
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// IDFor derives the window identifier for a timestamp.
// Deterministic and order-independent: "day:2026-08-27", "week:2026-08-24"
// (the Monday), "month:2026-08".
func IDFor(t time.Time, g Granularity) WindowID {
	start := StartOf(t, g)
	if g == GranularityMonth {
		return WindowID(fmt.Sprintf("%s:%s", g, start.Format("2006-01")))
	}
	return WindowID(fmt.Sprintf("%s:%s", g, start.Format("2006-01-02")))
}

// windowAt builds the full Window entity for a timestamp.
func windowAt(t time.Time, g Granularity) Window {
	start := StartOf(t, g)
	return Window{
		ID:          IDFor(t, g),
		Granularity: g,
		Start:       start,
		End:         EndOf(start, g),
	}
}
