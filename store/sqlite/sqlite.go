/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Durable persistence for the deal collection, the identity counter and
  the audit trail. In production, the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

KEY TABLES:
  deals:     One row per tracked appointment/sale
  counter:   Single row holding the next deal ID to issue
  audit_log: One row per mutation

ATOMICITY:
  CreateDeal inserts the deal row and advances the counter in one SQL
  transaction. If either write fails, neither lands - a failed create
  never leaks an ID.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The engine serializes writes per
  deal anyway; the mutex keeps the store safe on its own.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/deals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := ledger.New(store, ledger.Options{})
  if err := eng.Load(ctx); err != nil { ... }

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/deal-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Deals (one row per tracked appointment/sale)
	CREATE TABLE IF NOT EXISTS deals (
		id INTEGER PRIMARY KEY,
		status TEXT NOT NULL,
		setter_id TEXT NOT NULL,
		setter_name TEXT NOT NULL,
		closer_id TEXT,
		closer_name TEXT,
		system_size TEXT,
		revenue TEXT,
		set_at TEXT NOT NULL,
		closed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_deals_status
		ON deals(status);
	CREATE INDEX IF NOT EXISTS idx_deals_setter
		ON deals(setter_id);
	CREATE INDEX IF NOT EXISTS idx_deals_closer
		ON deals(closer_id) WHERE closer_id IS NOT NULL;

	-- Identity counter (single row; next ID to issue)
	CREATE TABLE IF NOT EXISTS counter (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_id INTEGER NOT NULL
	);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		deal_id INTEGER NOT NULL,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_deal
		ON audit_log(deal_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DEAL STORE (ledger.Store interface)
// =============================================================================

// LoadAll returns every stored deal.
func (s *Store) LoadAll(ctx context.Context) ([]*ledger.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, status, setter_id, setter_name, closer_id, closer_name,
		       system_size, revenue, set_at, closed_at
		FROM deals
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query deals: %w", err)
	}
	defer rows.Close()

	var deals []*ledger.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}

	return deals, rows.Err()
}

// LoadCounter returns the persisted next deal ID, or 0 if never persisted.
func (s *Store) LoadCounter(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next int64
	err := s.db.QueryRowContext(ctx, "SELECT next_id FROM counter WHERE id = 1").Scan(&next)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load counter: %w", err)
	}
	return next, nil
}

// CreateDeal inserts the deal and advances the counter in one SQL
// transaction. Either both writes land or neither does.
func (s *Store) CreateDeal(ctx context.Context, d *ledger.Deal, next int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.insertDeal(ctx, sqlTx, d); err != nil {
		return err
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO counter (id, next_id) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET next_id = excluded.next_id
	`, next)
	if err != nil {
		return fmt.Errorf("failed to advance counter: %w", err)
	}

	return sqlTx.Commit()
}

// SaveDeal overwrites the stored record.
func (s *Store) SaveDeal(ctx context.Context, d *ledger.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE deals
		SET status = ?, closer_id = ?, closer_name = ?,
		    system_size = ?, revenue = ?, closed_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(d.Status),
		nullString(string(d.CloserID)),
		nullString(d.CloserName),
		nullString(decimalString(d.SystemSize)),
		nullString(decimalString(d.Revenue)),
		nullString(timeString(d.ClosedAt)),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save deal %d: %w", d.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save deal %d: %w", d.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("deal %d does not exist", d.ID)
	}
	return nil
}

// DeleteDeal removes the stored record. The counter is untouched.
func (s *Store) DeleteDeal(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM deals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete deal %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete deal %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("deal %d does not exist", id)
	}
	return nil
}

// AppendAudit persists one audit entry.
func (s *Store) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, deal_id, actor_id, at, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		string(e.Action),
		e.DealID,
		string(e.ActorID),
		e.At.UTC().Format(time.RFC3339),
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Reset drops all deals and audit entries and clears the counter.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM deals",
		"DELETE FROM audit_log",
		"DELETE FROM counter",
	} {
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset: %w", err)
		}
	}

	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) insertDeal(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, d *ledger.Deal) error {
	query := `
		INSERT INTO deals
		(id, status, setter_id, setter_name, closer_id, closer_name,
		 system_size, revenue, set_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		d.ID,
		string(d.Status),
		string(d.SetterID),
		d.SetterName,
		nullString(string(d.CloserID)),
		nullString(d.CloserName),
		nullString(decimalString(d.SystemSize)),
		nullString(decimalString(d.Revenue)),
		d.SetAt.UTC().Format(time.RFC3339),
		nullString(timeString(d.ClosedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert deal %d: %w", d.ID, err)
	}
	return nil
}

func scanDeal(rows *sql.Rows) (*ledger.Deal, error) {
	var (
		d          ledger.Deal
		status     string
		setterID   string
		closerID   sql.NullString
		closerName sql.NullString
		systemSize sql.NullString
		revenue    sql.NullString
		setAt      string
		closedAt   sql.NullString
	)

	err := rows.Scan(&d.ID, &status, &setterID, &d.SetterName,
		&closerID, &closerName, &systemSize, &revenue, &setAt, &closedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan deal: %w", err)
	}

	d.Status = ledger.Status(status)
	d.SetterID = ledger.RepID(setterID)
	d.CloserID = ledger.RepID(closerID.String)
	d.CloserName = closerName.String

	d.SystemSize = ledger.Kilowatts(0)
	if systemSize.Valid {
		v, err := decimal.NewFromString(systemSize.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse system size for deal %d: %w", d.ID, err)
		}
		d.SystemSize = ledger.Amount{Value: v, Unit: ledger.UnitKilowatts}
	}

	d.Revenue = ledger.Currency(0)
	if revenue.Valid {
		v, err := decimal.NewFromString(revenue.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse revenue for deal %d: %w", d.ID, err)
		}
		d.Revenue = ledger.Amount{Value: v, Unit: ledger.UnitCurrency}
	}

	d.SetAt, err = time.Parse(time.RFC3339, setAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse set_at for deal %d: %w", d.ID, err)
	}

	if closedAt.Valid {
		d.ClosedAt, err = time.Parse(time.RFC3339, closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse closed_at for deal %d: %w", d.ID, err)
		}
	}

	return &d, nil
}

// nullString converts empty strings to NULL for optional columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// decimalString renders an amount for storage, empty when zero-valued on a
// pending deal.
func decimalString(a ledger.Amount) string {
	if a.Value.IsZero() {
		return ""
	}
	return a.Value.String()
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
