/*
Package stats computes leaderboards and summaries over the deal collection.

PURPOSE:
  Window-scoped aggregation is a fresh scan over the deals on every call -
  nothing here is cached or incremental. The ledger keeps simple running
  counters for all-time totals; everything windowed lives in this package.

KEY CONCEPTS IN THIS FILE (window.go):
  - Window: AllTime / Today / ThisWeek / ThisMonth
  - Period: A half-open UTC interval [Start, End)
  - Bounds: Resolves a window against an explicit evaluation instant, so
    "today" is always the caller's instant, never a cached day

CONVENTIONS:
  All boundaries are UTC. Weeks start Monday 00:00 UTC.

SEE ALSO:
  - aggregate.go: Uses Bounds to filter deals
*/
package stats

import (
	"fmt"
	"time"
)

// =============================================================================
// WINDOW
// =============================================================================

type Window string

const (
	WindowAllTime   Window = "all"
	WindowToday     Window = "today"
	WindowThisWeek  Window = "week"
	WindowThisMonth Window = "month"
)

func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case WindowAllTime, WindowToday, WindowThisWeek, WindowThisMonth:
		return Window(s), nil
	case "":
		return WindowAllTime, nil
	}
	return "", fmt.Errorf("unknown window %q (want all, today, week or month)", s)
}

// =============================================================================
// PERIOD - Half-open UTC interval
// =============================================================================

// Period is [Start, End). The zero Period is unbounded and contains
// every instant.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Contains(t time.Time) bool {
	if p.Start.IsZero() && p.End.IsZero() {
		return true
	}
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}

// Bounds resolves the window against the evaluation instant. The instant is
// caller-supplied so reports can be anchored historically ("leaderboard as
// of 2026-02-01") and so window logic is deterministic under test.
func (w Window) Bounds(at time.Time) Period {
	at = at.UTC()
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)

	switch w {
	case WindowToday:
		return Period{Start: midnight, End: midnight.AddDate(0, 0, 1)}

	case WindowThisWeek:
		// Monday 00:00 UTC. Go's Weekday has Sunday = 0.
		offset := int(at.Weekday()+6) % 7
		start := midnight.AddDate(0, 0, -offset)
		return Period{Start: start, End: start.AddDate(0, 0, 7)}

	case WindowThisMonth:
		start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, 0)}

	default:
		return Period{}
	}
}
