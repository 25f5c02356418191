/*
ledger.go - The deal engine: identity issue, workflow, rollback-safe delete

PURPOSE:
  Ledger is the single owner of the deal collection. All mutation goes
  through its three operations (CreateAppointment, Close, Delete); no other
  component touches the records or the raw totals directly.

WORKFLOW:
  CreateAppointment issues the next ID and inserts a pending record.
  Close validates the transition (exists, not already closed, positive
  size), then flips the record to closed and computes revenue with the
  rate in effect at close time. Delete reverses the record's statistical
  contribution and removes it. IDs are never reused.

ATOMICITY:
  Every operation persists first and commits to memory only after the
  store accepted the write. A store failure therefore leaves the in-memory
  state at its pre-operation value and surfaces as PersistenceError. The
  new-deal write carries the advanced counter in the same store
  transaction, so a failed create never leaks an ID.

CONCURRENCY:
  - The engine mutex guards the record map and the counter.
  - Each record carries its own mutex, so closes on different IDs do not
    serialize against each other.
  - Close and Delete on the same ID are linearized through the record
    mutex plus a tombstone flag: the loser of a close/close race sees
    AlreadyClosed, the loser of a close/delete race sees NotFound.

SEE ALSO:
  - tracker.go: The running totals updated here
  - store.go: The persistence contract
*/
package ledger

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AUTHORIZER - Precondition check for administrative actions
// =============================================================================

// Authorizer decides whether a requester may perform administrative actions
// (delete, reset). Authorization policy itself lives outside the engine;
// this is the precondition hook. A nil Authorizer trusts the caller to have
// authorized upstream.
type Authorizer interface {
	IsAdmin(id RepID) bool
}

// AdminList authorizes exactly the listed representative IDs.
type AdminList []RepID

func (a AdminList) IsAdmin(id RepID) bool {
	for _, admin := range a {
		if admin == id {
			return true
		}
	}
	return false
}

// =============================================================================
// OPTIONS
// =============================================================================

type Options struct {
	// IDBase is the first ID ever issued. Default 1000.
	IDBase int64

	// RevenueRate is the currency-per-kilowatt multiplier captured into
	// each deal at close time. Default 3.50.
	RevenueRate decimal.Decimal

	// Authorizer gates Delete and Reset. Nil trusts the caller.
	Authorizer Authorizer
}

const DefaultIDBase = 1000

func DefaultRevenueRate() decimal.Decimal { return decimal.NewFromFloat(3.50) }

func (o Options) withDefaults() Options {
	if o.IDBase <= 0 {
		o.IDBase = DefaultIDBase
	}
	if o.RevenueRate.IsZero() {
		o.RevenueRate = DefaultRevenueRate()
	}
	return o
}

// SizeFromFloat validates a raw system size and converts it to the exact
// representation used everywhere else. Rejects NaN, infinities and
// non-positive values.
func SizeFromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, &InvalidSizeError{Size: decimal.Zero}
	}
	if v <= 0 {
		return decimal.Zero, &InvalidSizeError{Size: decimal.NewFromFloat(v)}
	}
	return decimal.NewFromFloat(v), nil
}

// =============================================================================
// LEDGER - The engine
// =============================================================================

type Ledger struct {
	mu    sync.RWMutex
	deals map[int64]*record
	next  int64

	store   Store
	tracker *tracker
	opts    Options

	auditMu sync.Mutex
	audit   []AuditEntry
}

// record wraps a deal with its own mutex so operations on different IDs do
// not block each other. deleted is the tombstone a racing close checks.
type record struct {
	mu      sync.Mutex
	deal    *Deal
	deleted bool
}

func New(store Store, opts Options) *Ledger {
	opts = opts.withDefaults()
	return &Ledger{
		deals:   make(map[int64]*record),
		next:    opts.IDBase,
		store:   store,
		tracker: newTracker(),
		opts:    opts,
	}
}

// Load replays the stored deal collection, rebuilds the running totals and
// restores the identity counter. Call once before serving traffic.
func (l *Ledger) Load(ctx context.Context) error {
	deals, err := l.store.LoadAll(ctx)
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}
	counter, err := l.store.LoadCounter(ctx)
	if err != nil {
		return &PersistenceError{Op: "load counter", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.deals = make(map[int64]*record, len(deals))
	next := l.opts.IDBase
	for _, d := range deals {
		l.deals[d.ID] = &record{deal: d}
		if d.ID >= next {
			next = d.ID + 1
		}
	}
	// The persisted counter wins over max(ID)+1: a deleted highest deal
	// must not cause its ID to be reissued.
	if counter > next {
		next = counter
	}
	l.next = next

	l.tracker.Rebuild(deals)
	return nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateAppointment issues the next deal ID and inserts a pending record.
// The setter's appointments-set counter is incremented as a side effect.
func (l *Ledger) CreateAppointment(ctx context.Context, setterID RepID, setterName string, at time.Time) (*Deal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := &Deal{
		ID:         l.next,
		Status:     StatusPending,
		SetterID:   setterID,
		SetterName: setterName,
		SystemSize: Kilowatts(0),
		Revenue:    Currency(0),
		SetAt:      at.UTC(),
	}

	if err := l.store.CreateDeal(ctx, d, d.ID+1); err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	l.next = d.ID + 1
	l.deals[d.ID] = &record{deal: d}
	l.tracker.ApplyCreate(d)
	l.recordAudit(ctx, AuditDealCreated, d.ID, setterID, "appointment set by "+setterName)
	return d.Clone(), nil
}

// Close transitions a pending deal to closed. Validation order: existence,
// size, current status. Either every closed-state field is set and the
// status flips, or nothing changes and an error kind is returned.
func (l *Ledger) Close(ctx context.Context, id int64, closerID RepID, closerName string, size decimal.Decimal, at time.Time) (*Deal, error) {
	if !size.IsPositive() {
		return nil, &InvalidSizeError{Size: size}
	}

	l.mu.RLock()
	rec, ok := l.deals[id]
	l.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.deleted {
		return nil, &NotFoundError{ID: id}
	}
	if rec.deal.IsClosed() {
		return nil, &AlreadyClosedError{ID: id, CloserName: rec.deal.CloserName, ClosedAt: rec.deal.ClosedAt}
	}

	closed := rec.deal.Clone()
	closed.Status = StatusClosed
	closed.CloserID = closerID
	closed.CloserName = closerName
	closed.SystemSize = Amount{Value: size, Unit: UnitKilowatts}
	closed.Revenue = Amount{Value: size.Mul(l.opts.RevenueRate), Unit: UnitCurrency}
	closed.ClosedAt = at.UTC()
	if closed.ClosedAt.Before(closed.SetAt) {
		// Event sources can disagree on clocks; ClosedAt >= SetAt must hold.
		closed.ClosedAt = closed.SetAt
	}

	if err := l.store.SaveDeal(ctx, closed); err != nil {
		return nil, &PersistenceError{Op: "close", Err: err}
	}

	rec.deal = closed
	l.tracker.ApplyClose(closed)
	l.recordAudit(ctx, AuditDealClosed, id, closerID, "closed at "+closed.SystemSize.String()+" by "+closerName)
	return closed.Clone(), nil
}

// Delete reverses the deal's statistical contribution and removes the
// record, returning it for audit purposes. The ID is never reissued.
// A delete racing a close either fully precedes it (the close then sees
// NotFound) or fully follows it (the rollback reverses the closed state).
func (l *Ledger) Delete(ctx context.Context, id int64, requesterID RepID) (*Deal, error) {
	if err := l.authorize(requesterID, "delete"); err != nil {
		return nil, err
	}

	l.mu.Lock()
	rec, ok := l.deals[id]
	if !ok {
		l.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}

	// Lock order is always engine -> record. Close never takes the engine
	// lock while holding a record lock, so this cannot deadlock.
	rec.mu.Lock()
	if err := l.store.DeleteDeal(ctx, id); err != nil {
		rec.mu.Unlock()
		l.mu.Unlock()
		return nil, &PersistenceError{Op: "delete", Err: err}
	}
	rec.deleted = true
	delete(l.deals, id)
	removed := rec.deal
	rec.mu.Unlock()
	l.mu.Unlock()

	l.tracker.Reverse(removed)
	l.recordAudit(ctx, AuditDealDeleted, id, requesterID, "deleted while "+string(removed.Status))
	return removed.Clone(), nil
}

// Reset drops every deal and counter back to the configured base.
func (l *Ledger) Reset(ctx context.Context, requesterID RepID) error {
	if err := l.authorize(requesterID, "reset"); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Reset(ctx); err != nil {
		return &PersistenceError{Op: "reset", Err: err}
	}

	for _, rec := range l.deals {
		rec.mu.Lock()
		rec.deleted = true
		rec.mu.Unlock()
	}
	l.deals = make(map[int64]*record)
	l.next = l.opts.IDBase
	l.tracker.Rebuild(nil)
	l.recordAudit(ctx, AuditReset, 0, requesterID, "all deals cleared")
	return nil
}

func (l *Ledger) authorize(requesterID RepID, action string) error {
	if l.opts.Authorizer != nil && !l.opts.Authorizer.IsAdmin(requesterID) {
		return &UnauthorizedError{RequesterID: requesterID, Action: action}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns the deal with the given ID.
func (l *Ledger) Get(ctx context.Context, id int64) (*Deal, error) {
	l.mu.RLock()
	rec, ok := l.deals[id]
	l.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, &NotFoundError{ID: id}
	}
	return rec.deal.Clone(), nil
}

// ListPending returns all pending deals ordered by SetAt ascending.
func (l *Ledger) ListPending(ctx context.Context) []*Deal {
	deals := l.snapshot()
	pending := deals[:0]
	for _, d := range deals {
		if d.IsPending() {
			pending = append(pending, d)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].SetAt.Equal(pending[j].SetAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].SetAt.Before(pending[j].SetAt)
	})
	return pending
}

// ListAll returns the full audit trail of deals ordered by ID ascending.
func (l *Ledger) ListAll(ctx context.Context) []*Deal {
	deals := l.snapshot()
	sort.Slice(deals, func(i, j int) bool { return deals[i].ID < deals[j].ID })
	return deals
}

func (l *Ledger) snapshot() []*Deal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	deals := make([]*Deal, 0, len(l.deals))
	for _, rec := range l.deals {
		rec.mu.Lock()
		deals = append(deals, rec.deal.Clone())
		rec.mu.Unlock()
	}
	return deals
}

// RepStatsFor returns the running counters for one representative.
func (l *Ledger) RepStatsFor(id RepID) RepStats { return l.tracker.RepStatsFor(id) }

// Company returns the company-wide running totals.
func (l *Ledger) Company() CompanyStats { return l.tracker.Company() }

// NextID returns the ID the next CreateAppointment will issue. Exposed for
// reporting; never use it to predict an ID under concurrency.
func (l *Ledger) NextID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditTrail returns the audit entries recorded since startup, oldest first.
func (l *Ledger) AuditTrail(ctx context.Context) []AuditEntry {
	l.auditMu.Lock()
	defer l.auditMu.Unlock()
	out := make([]AuditEntry, len(l.audit))
	copy(out, l.audit)
	return out
}

func (l *Ledger) recordAudit(ctx context.Context, action AuditAction, dealID int64, actor RepID, detail string) {
	e := AuditEntry{
		ID:      uuid.NewString(),
		Action:  action,
		DealID:  dealID,
		ActorID: actor,
		At:      time.Now().UTC(),
		Detail:  detail,
	}

	l.auditMu.Lock()
	l.audit = append(l.audit, e)
	l.auditMu.Unlock()

	// The audit trail is advisory. The mutation already committed, so a
	// failed audit write must not fail the operation.
	_ = l.store.AppendAudit(ctx, e)
}
