// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/deal-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	deals   map[int64]*ledger.Deal
	counter int64
	audit   []ledger.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		deals: make(map[int64]*ledger.Deal),
	}
}

func (m *Memory) LoadAll(_ context.Context) ([]*ledger.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*ledger.Deal, 0, len(m.deals))
	for _, d := range m.deals {
		result = append(result, d.Clone())
	}
	return result, nil
}

func (m *Memory) LoadCounter(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counter, nil
}

// CreateDeal inserts the deal and advances the counter in one locked step.
func (m *Memory) CreateDeal(_ context.Context, d *ledger.Deal, next int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deals[d.ID]; exists {
		return fmt.Errorf("deal %d already exists", d.ID)
	}
	m.deals[d.ID] = d.Clone()
	m.counter = next
	return nil
}

func (m *Memory) SaveDeal(_ context.Context, d *ledger.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deals[d.ID]; !exists {
		return fmt.Errorf("deal %d does not exist", d.ID)
	}
	m.deals[d.ID] = d.Clone()
	return nil
}

func (m *Memory) DeleteDeal(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deals[id]; !exists {
		return fmt.Errorf("deal %d does not exist", id)
	}
	delete(m.deals, id)
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deals = make(map[int64]*ledger.Deal)
	m.counter = 0
	m.audit = nil
	return nil
}

// AuditEntries returns the persisted audit trail. Test helper.
func (m *Memory) AuditEntries() []ledger.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}
