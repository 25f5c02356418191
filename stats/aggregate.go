/*
aggregate.go - Leaderboards, company summary and per-rep reports

PURPOSE:
  Groups deals by representative within a window and produces ranked
  leaderboard rows. Closer metrics are evaluated against ClosedAt, setter
  metrics against SetAt. Every call is a full scan of the supplied deals;
  there is no hidden state to diverge from the collection.

ORDERING:
  Primary metric descending (deals closed for closers, appointments set
  for setters), ties broken by ascending representative ID. Never
  insertion order, which is unstable across a rebuilt store.

SEE ALSO:
  - window.go: Window bounds
  - ledger/tracker.go: The all-time running counters
*/
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/deal-engine/ledger"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleCloser Role = "closer"
	RoleSetter Role = "setter"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCloser, RoleSetter:
		return Role(s), nil
	case "":
		return RoleCloser, nil
	}
	return "", &UnknownRoleError{Raw: s}
}

type UnknownRoleError struct {
	Raw string
}

func (e *UnknownRoleError) Error() string {
	return "unknown role " + e.Raw + " (want closer or setter)"
}

// =============================================================================
// LEADERBOARD ROWS
// =============================================================================

// CloserRow is one closer's totals over the window's closed deals.
type CloserRow struct {
	RepID         ledger.RepID
	Name          string
	DealsClosed   int
	KWTotal       ledger.Amount
	RevenueTotal  ledger.Amount
	AvgSystemSize ledger.Amount // KWTotal / DealsClosed, zero when no deals
}

// SetterRow is one setter's totals over the window's set deals (any status).
type SetterRow struct {
	RepID              ledger.RepID
	Name               string
	AppointmentsSet    int
	AppointmentsClosed int
	CloseRate          float64       // closed/set, 0 when nothing set
	KWClosed           ledger.Amount // kilowatts from their set deals that closed
}

// Leaderboard is the ranked view for one window and role.
type Leaderboard struct {
	Window  Window
	Role    Role
	At      time.Time
	Closers []CloserRow // populated when Role == RoleCloser
	Setters []SetterRow // populated when Role == RoleSetter
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Aggregate scans the deals and builds the ranked leaderboard for the
// window, evaluated at the given instant. limit <= 0 means no cap.
func Aggregate(deals []*ledger.Deal, w Window, role Role, at time.Time, limit int) Leaderboard {
	lb := Leaderboard{Window: w, Role: role, At: at.UTC()}
	period := w.Bounds(at)

	switch role {
	case RoleSetter:
		lb.Setters = aggregateSetters(deals, period, limit)
	default:
		lb.Closers = aggregateClosers(deals, period, limit)
	}
	return lb
}

func aggregateClosers(deals []*ledger.Deal, period Period, limit int) []CloserRow {
	byID := make(map[ledger.RepID]*CloserRow)
	for _, d := range deals {
		if !d.IsClosed() || !period.Contains(d.ClosedAt) {
			continue
		}
		row, ok := byID[d.CloserID]
		if !ok {
			row = &CloserRow{
				RepID:        d.CloserID,
				Name:         d.CloserName,
				KWTotal:      ledger.Kilowatts(0),
				RevenueTotal: ledger.Currency(0),
			}
			byID[d.CloserID] = row
		}
		row.DealsClosed++
		row.KWTotal = row.KWTotal.Add(d.SystemSize)
		row.RevenueTotal = row.RevenueTotal.Add(d.Revenue)
	}

	rows := make([]CloserRow, 0, len(byID))
	for _, row := range byID {
		if row.DealsClosed > 0 {
			row.AvgSystemSize = row.KWTotal.Div(decimal.NewFromInt(int64(row.DealsClosed)))
		} else {
			row.AvgSystemSize = ledger.Kilowatts(0)
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DealsClosed != rows[j].DealsClosed {
			return rows[i].DealsClosed > rows[j].DealsClosed
		}
		return rows[i].RepID < rows[j].RepID
	})
	return truncate(rows, limit)
}

func aggregateSetters(deals []*ledger.Deal, period Period, limit int) []SetterRow {
	byID := make(map[ledger.RepID]*SetterRow)
	for _, d := range deals {
		if !period.Contains(d.SetAt) {
			continue
		}
		row, ok := byID[d.SetterID]
		if !ok {
			row = &SetterRow{
				RepID:    d.SetterID,
				Name:     d.SetterName,
				KWClosed: ledger.Kilowatts(0),
			}
			byID[d.SetterID] = row
		}
		row.AppointmentsSet++
		if d.IsClosed() {
			row.AppointmentsClosed++
			row.KWClosed = row.KWClosed.Add(d.SystemSize)
		}
	}

	rows := make([]SetterRow, 0, len(byID))
	for _, row := range byID {
		if row.AppointmentsSet > 0 {
			row.CloseRate = float64(row.AppointmentsClosed) / float64(row.AppointmentsSet)
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AppointmentsSet != rows[j].AppointmentsSet {
			return rows[i].AppointmentsSet > rows[j].AppointmentsSet
		}
		return rows[i].RepID < rows[j].RepID
	})
	return truncate(rows, limit)
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// =============================================================================
// COMPANY SUMMARY
// =============================================================================

// Summary is the company-wide reduction over the full deal collection.
type Summary struct {
	TotalClosed    int
	KWTotal        ledger.Amount
	RevenueTotal   ledger.Amount
	ClosedToday    int
	ClosedThisWeek int
}

// Summarize reduces the full deal collection, with the Today/ThisWeek
// counts evaluated at the given instant.
func Summarize(deals []*ledger.Deal, at time.Time) Summary {
	s := Summary{
		KWTotal:      ledger.Kilowatts(0),
		RevenueTotal: ledger.Currency(0),
	}
	today := WindowToday.Bounds(at)
	week := WindowThisWeek.Bounds(at)

	for _, d := range deals {
		if !d.IsClosed() {
			continue
		}
		s.TotalClosed++
		s.KWTotal = s.KWTotal.Add(d.SystemSize)
		s.RevenueTotal = s.RevenueTotal.Add(d.Revenue)
		if today.Contains(d.ClosedAt) {
			s.ClosedToday++
		}
		if week.Contains(d.ClosedAt) {
			s.ClosedThisWeek++
		}
	}
	return s
}

// =============================================================================
// PER-REP REPORT
// =============================================================================

// RepReport is one representative's windowed view in both roles.
type RepReport struct {
	RepID  ledger.RepID
	Window Window
	At     time.Time
	Setter SetterRow
	Closer CloserRow
}

// ReportFor builds the windowed report for a single representative.
func ReportFor(deals []*ledger.Deal, id ledger.RepID, w Window, at time.Time) RepReport {
	r := RepReport{RepID: id, Window: w, At: at.UTC()}

	for _, row := range aggregateSetters(deals, w.Bounds(at), 0) {
		if row.RepID == id {
			r.Setter = row
			break
		}
	}
	for _, row := range aggregateClosers(deals, w.Bounds(at), 0) {
		if row.RepID == id {
			r.Closer = row
			break
		}
	}

	if r.Setter.RepID == "" {
		r.Setter = SetterRow{RepID: id, KWClosed: ledger.Kilowatts(0)}
	}
	if r.Closer.RepID == "" {
		r.Closer = CloserRow{
			RepID:         id,
			KWTotal:       ledger.Kilowatts(0),
			RevenueTotal:  ledger.Currency(0),
			AvgSystemSize: ledger.Kilowatts(0),
		}
	}
	return r
}
