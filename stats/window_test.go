package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/deal-engine/stats"
)

func at(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

func TestParseWindow(t *testing.T) {
	for raw, want := range map[string]stats.Window{
		"":      stats.WindowAllTime,
		"all":   stats.WindowAllTime,
		"today": stats.WindowToday,
		"week":  stats.WindowThisWeek,
		"month": stats.WindowThisMonth,
	} {
		got, err := stats.ParseWindow(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := stats.ParseWindow("fortnight")
	assert.Error(t, err)
}

func TestAllTimeContainsEverything(t *testing.T) {
	p := stats.WindowAllTime.Bounds(at(2024, time.January, 3, 12, 0, 0))
	assert.True(t, p.Contains(at(1970, time.January, 1, 0, 0, 0)))
	assert.True(t, p.Contains(at(2999, time.December, 31, 23, 59, 59)))
}

func TestTodayBounds(t *testing.T) {
	p := stats.WindowToday.Bounds(at(2024, time.January, 3, 12, 0, 0))

	assert.Equal(t, at(2024, time.January, 3, 0, 0, 0), p.Start)
	assert.Equal(t, at(2024, time.January, 4, 0, 0, 0), p.End)

	assert.True(t, p.Contains(at(2024, time.January, 3, 0, 0, 0)))
	assert.True(t, p.Contains(at(2024, time.January, 3, 23, 59, 59)))
	assert.False(t, p.Contains(at(2024, time.January, 4, 0, 0, 0))) // half-open
	assert.False(t, p.Contains(at(2024, time.January, 2, 23, 59, 59)))
}

func TestWeekStartsMonday(t *testing.T) {
	// 2024-01-03 is a Wednesday; the week is Mon Jan 1 .. Mon Jan 8.
	p := stats.WindowThisWeek.Bounds(at(2024, time.January, 3, 12, 0, 0))
	assert.Equal(t, at(2024, time.January, 1, 0, 0, 0), p.Start)
	assert.Equal(t, at(2024, time.January, 8, 0, 0, 0), p.End)

	// Evaluated on a Sunday, the week still began the previous Monday.
	p = stats.WindowThisWeek.Bounds(at(2024, time.January, 7, 23, 0, 0))
	assert.Equal(t, at(2024, time.January, 1, 0, 0, 0), p.Start)

	// Evaluated on a Monday, the week begins that same day.
	p = stats.WindowThisWeek.Bounds(at(2024, time.January, 8, 0, 30, 0))
	assert.Equal(t, at(2024, time.January, 8, 0, 0, 0), p.Start)
}

func TestMonthBoundsRollOverYear(t *testing.T) {
	p := stats.WindowThisMonth.Bounds(at(2023, time.December, 15, 10, 0, 0))
	assert.Equal(t, at(2023, time.December, 1, 0, 0, 0), p.Start)
	assert.Equal(t, at(2024, time.January, 1, 0, 0, 0), p.End)
}

func TestWeekIncludesDayTodayExcludes(t *testing.T) {
	// GIVEN a close at 2024-01-01T00:00:01Z
	closedAt := at(2024, time.January, 1, 0, 0, 1)
	// WHEN windows are evaluated at 2024-01-03T12:00:00Z
	eval := at(2024, time.January, 3, 12, 0, 0)

	// THEN the close is in this week but not today
	assert.True(t, stats.WindowThisWeek.Bounds(eval).Contains(closedAt))
	assert.False(t, stats.WindowToday.Bounds(eval).Contains(closedAt))
}
