/*
store.go - Persistence interface for deals and the identity counter

PURPOSE:
  Defines the interface between the engine and durable storage. The engine
  is storage-agnostic: any key-value or relational backend satisfies this
  contract. Different implementations can use SQLite or in-memory storage.

KEY CONTRACT POINTS:
  - LoadAll() replays the full deal collection at startup; every aggregate
    the engine keeps is rebuilt from it.
  - CreateDeal() persists a new deal AND the advanced counter atomically.
    If the write fails, the ID was never issued (no orphan IDs).
  - Writes are durable before the engine reports success to any caller.
    A store failure fails the triggering operation; persistence is never
    silently skipped.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing/dev

SEE ALSO:
  - ledger.go: The engine consuming this interface
  - store/sqlite/sqlite.go: Concrete implementation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Durable persistence for deals
// =============================================================================

// Store handles persistence of deals, the identity counter and the audit
// trail. The engine calls it while holding its own locks; implementations
// only need to be safe for the concurrency they document.
type Store interface {
	// LoadAll returns every stored deal, in any order. Called once at startup.
	LoadAll(ctx context.Context) ([]*Deal, error)

	// LoadCounter returns the persisted next deal ID, or 0 if the counter
	// has never been persisted.
	LoadCounter(ctx context.Context) (int64, error)

	// CreateDeal persists a new deal and the advanced counter value in one
	// atomic write. Either both land or neither does.
	CreateDeal(ctx context.Context, d *Deal, next int64) error

	// SaveDeal overwrites the stored record for d.ID.
	SaveDeal(ctx context.Context, d *Deal) error

	// DeleteDeal removes the stored record. The counter is untouched; IDs
	// are never reclaimed.
	DeleteDeal(ctx context.Context, id int64) error

	// AppendAudit persists one audit entry.
	AppendAudit(ctx context.Context, e AuditEntry) error

	// Reset drops all deals and audit entries and clears the counter.
	Reset(ctx context.Context) error
}

// =============================================================================
// AUDIT LOG - Tracks who did what when
// =============================================================================

// AuditEntry records one mutation of the deal collection.
type AuditEntry struct {
	ID      string // uuid
	Action  AuditAction
	DealID  int64
	ActorID RepID
	At      time.Time
	Detail  string
}

type AuditAction string

const (
	AuditDealCreated AuditAction = "deal_created"
	AuditDealClosed  AuditAction = "deal_closed"
	AuditDealDeleted AuditAction = "deal_deleted"
	AuditReset       AuditAction = "reset"
)
