/*
tracker.go - Running per-representative and company-wide totals

PURPOSE:
  Maintains the simple running counters the engine updates on every
  mutation: appointments set, deals closed, kilowatt and revenue totals.
  These are views over the Deal collection, not sources of truth - the
  tracker can always be rebuilt from the deals alone, and Rebuild is how
  the engine restores them after a restart.

ROLLBACK:
  Reverse() is the exact algebraic inverse of ApplyCreate/ApplyClose, so
  create -> close -> delete returns every counter to its pre-creation
  value. This symmetry is the core correctness property of the engine.

CONCURRENCY:
  The tracker has its own mutex. Aggregate reads are eventually consistent
  with respect to in-flight deal operations; deal existence and status are
  the engine's job, not the tracker's.

SEE ALSO:
  - ledger.go: Calls ApplyCreate/ApplyClose/Reverse under its operations
  - stats/: Window-scoped aggregation, which scans deals fresh instead
*/
package ledger

import "sync"

// =============================================================================
// REP STATS - Per-representative running counters
// =============================================================================

// RepStats holds the running counters for one representative. Derived from
// the Deal collection; never diverges from it.
type RepStats struct {
	RepID RepID
	Name  string

	AppointmentsSet    int // deals they created
	AppointmentsClosed int // deals they created that reached closed
	DealsClosed        int // deals they closed

	KWTotal      Amount // kilowatts across deals they closed
	RevenueTotal Amount // revenue across deals they closed
}

func newRepStats(id RepID, name string) *RepStats {
	return &RepStats{
		RepID:        id,
		Name:         name,
		KWTotal:      Kilowatts(0),
		RevenueTotal: Currency(0),
	}
}

// CompanyStats holds the company-wide running totals.
type CompanyStats struct {
	TotalClosed  int
	KWTotal      Amount
	RevenueTotal Amount
}

// =============================================================================
// TRACKER
// =============================================================================

type tracker struct {
	mu      sync.RWMutex
	reps    map[RepID]*RepStats
	company CompanyStats
}

func newTracker() *tracker {
	return &tracker{
		reps: make(map[RepID]*RepStats),
		company: CompanyStats{
			KWTotal:      Kilowatts(0),
			RevenueTotal: Currency(0),
		},
	}
}

func (t *tracker) repLocked(id RepID, name string) *RepStats {
	r, ok := t.reps[id]
	if !ok {
		r = newRepStats(id, name)
		t.reps[id] = r
	}
	if name != "" {
		r.Name = name // names drift on chat platforms; keep the latest
	}
	return r
}

// ApplyCreate records a new pending deal: the setter gains one appointment.
func (t *tracker) ApplyCreate(d *Deal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.repLocked(d.SetterID, d.SetterName).AppointmentsSet++
}

// ApplyClose records a successful close: the setter's appointment converted,
// the closer gains the deal and its totals, and the company totals grow.
func (t *tracker) ApplyClose(d *Deal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.repLocked(d.SetterID, d.SetterName).AppointmentsClosed++

	closer := t.repLocked(d.CloserID, d.CloserName)
	closer.DealsClosed++
	closer.KWTotal = closer.KWTotal.Add(d.SystemSize)
	closer.RevenueTotal = closer.RevenueTotal.Add(d.Revenue)

	t.company.TotalClosed++
	t.company.KWTotal = t.company.KWTotal.Add(d.SystemSize)
	t.company.RevenueTotal = t.company.RevenueTotal.Add(d.Revenue)
}

// Reverse undoes a deal's entire contribution before physical deletion.
// For a pending deal this is the inverse of ApplyCreate; for a closed deal,
// the inverse of ApplyCreate and ApplyClose combined.
func (t *tracker) Reverse(d *Deal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.repLocked(d.SetterID, d.SetterName).AppointmentsSet--

	if !d.IsClosed() {
		return
	}

	t.repLocked(d.SetterID, d.SetterName).AppointmentsClosed--

	closer := t.repLocked(d.CloserID, d.CloserName)
	closer.DealsClosed--
	closer.KWTotal = closer.KWTotal.Sub(d.SystemSize)
	closer.RevenueTotal = closer.RevenueTotal.Sub(d.Revenue)

	t.company.TotalClosed--
	t.company.KWTotal = t.company.KWTotal.Sub(d.SystemSize)
	t.company.RevenueTotal = t.company.RevenueTotal.Sub(d.Revenue)
}

// Rebuild recomputes every counter from the deal collection alone.
func (t *tracker) Rebuild(deals []*Deal) {
	t.mu.Lock()
	t.reps = make(map[RepID]*RepStats)
	t.company = CompanyStats{KWTotal: Kilowatts(0), RevenueTotal: Currency(0)}
	t.mu.Unlock()

	for _, d := range deals {
		t.ApplyCreate(d)
		if d.IsClosed() {
			t.ApplyClose(d)
		}
	}
}

// RepStatsFor returns a copy of one representative's counters. A rep the
// tracker has never seen reports all-zero counters.
func (t *tracker) RepStatsFor(id RepID) RepStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.reps[id]; ok {
		return *r
	}
	return *newRepStats(id, "")
}

// Company returns a copy of the company-wide totals.
func (t *tracker) Company() CompanyStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.company
}
