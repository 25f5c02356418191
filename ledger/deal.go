/*
Package ledger provides the core deal tracking engine.

PURPOSE:
  This package contains the authoritative record of every appointment and
  sale in the pipeline. It issues deal identifiers, enforces the two-step
  set -> close workflow, maintains running per-representative and
  company-wide totals, and reverses a deal's statistical contribution when
  the deal is deleted.

KEY CONCEPTS IN THIS FILE (deal.go):
  - Deal: The aggregate root. One record per appointment.
  - Status: Two-state lifecycle (pending -> closed).
  - Amount: A quantity with a unit (kilowatts or currency).
  - RepID: Type-safe representative identifier.

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so deletion restores totals exactly
  2. Type Safety: Strong typing for representative IDs
  3. Derivability: Every aggregate can be rebuilt from the Deal collection

USAGE:
  size := ledger.Kilowatts(8.5)
  deal, err := eng.Close(ctx, 1000, "rep-7", "Jordan", size.Value, time.Now())

SEE ALSO:
  - ledger.go: The engine operating on these types
  - tracker.go: Running totals derived from Deals
  - errors.go: Error kinds returned by deal operations
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitKilowatts Unit = "kW"
	UnitCurrency  Unit = "usd"
)

func Kilowatts(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: UnitKilowatts}
}

func Currency(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: UnitCurrency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Unit == b.Unit && a.Value.Equal(b.Value) }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// RepID identifies a sales representative. The value is whatever identity
// the chat platform supplies; the engine never interprets it.
type RepID string

// =============================================================================
// DEAL - The aggregate root
// =============================================================================

type Status string

const (
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

// Deal is one tracked appointment/sale. Created pending by the setter,
// transitioned to closed exactly once by the closer, removed only by an
// explicit delete.
//
// INVARIANTS:
//   - ID is immutable and never reused, even after deletion.
//   - Status is closed if and only if CloserID, SystemSize, Revenue and
//     ClosedAt are all present.
//   - SystemSize is positive whenever present.
//   - ClosedAt >= SetAt whenever both are present.
type Deal struct {
	ID         int64
	Status     Status
	SetterID   RepID
	SetterName string
	CloserID   RepID  // empty while pending
	CloserName string // empty while pending
	SystemSize Amount // kilowatts; zero while pending
	Revenue    Amount // currency; computed at close time, never recomputed
	SetAt      time.Time
	ClosedAt   time.Time // zero while pending
}

func (d *Deal) IsClosed() bool  { return d.Status == StatusClosed }
func (d *Deal) IsPending() bool { return d.Status == StatusPending }

// Clone returns a copy safe to hand to callers while the original keeps
// mutating under the engine's locks.
func (d *Deal) Clone() *Deal {
	c := *d
	return &c
}
