// Package memory provides an in-memory inventory.Store for tests and
// development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/shift"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu              sync.RWMutex
	labels          map[labelKey]inventory.LabelRecord
	movements       []inventory.Movement // insertion order
	reconciliations []inventory.ReconciliationRecord
	reconciled      map[reconKey]bool
	seq             int64
}

type labelKey struct {
	Location inventory.LocationID
	Label    string
}

type reconKey struct {
	Location inventory.LocationID
	Label    string
	Shift    shift.ID
}

func keyOf(loc inventory.LocationID, label string) labelKey {
	return labelKey{Location: loc, Label: strings.ToUpper(label)}
}

func NewMemory() *Memory {
	return &Memory{
		labels:     make(map[labelKey]inventory.LabelRecord),
		reconciled: make(map[reconKey]bool),
	}
}

// Apply writes all records then all movements, or nothing.
func (m *Memory) Apply(ctx context.Context, changes []inventory.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every version first (atomic check)
	for _, c := range changes {
		cur, ok := m.labels[keyOf(c.Record.Location, c.Record.Name)]
		version := int64(0)
		if ok {
			version = cur.Version
		}
		if version != c.ExpectedVersion {
			return inventory.ErrConcurrentModification
		}
	}

	// Ledger first, then log
	for _, c := range changes {
		rec := c.Record.Clone()
		rec.Version = c.ExpectedVersion + 1
		m.labels[keyOf(rec.Location, rec.Name)] = rec
	}
	for i := range changes {
		for j := range changes[i].Movements {
			m.seq++
			changes[i].Movements[j].Seq = m.seq
			m.movements = append(m.movements, changes[i].Movements[j].Clone())
		}
	}
	return nil
}

func (m *Memory) GetLabel(_ context.Context, loc inventory.LocationID, label string) (*inventory.LabelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.labels[keyOf(loc, label)]
	if !ok {
		return nil, nil
	}
	c := rec.Clone()
	return &c, nil
}

func (m *Memory) ListLabels(_ context.Context, loc inventory.LocationID) ([]inventory.LabelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []inventory.LabelRecord
	for k, rec := range m.labels {
		if k.Location == loc {
			result = append(result, rec.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) ListLocations(_ context.Context) ([]inventory.LocationID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[inventory.LocationID]bool)
	var result []inventory.LocationID
	for k := range m.labels {
		if !seen[k.Location] {
			seen[k.Location] = true
			result = append(result, k.Location)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func (m *Memory) LoadMovementsByShift(_ context.Context, loc inventory.LocationID, s shift.ID) ([]inventory.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []inventory.Movement
	for _, mv := range m.movements {
		if mv.Location == loc && mv.Shift == s {
			result = append(result, mv.Clone())
		}
	}
	return result, nil
}

func (m *Memory) LoadMovementsByLabel(_ context.Context, loc inventory.LocationID, label string) ([]inventory.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []inventory.Movement
	for _, mv := range m.movements {
		if mv.Location == loc && strings.EqualFold(mv.Label, label) {
			result = append(result, mv.Clone())
		}
	}
	return result, nil
}

func (m *Memory) LoadReconciliations(_ context.Context, loc inventory.LocationID, s shift.ID) ([]inventory.ReconciliationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []inventory.ReconciliationRecord
	for _, r := range m.reconciliations {
		if r.Location == loc && r.Shift == s {
			result = append(result, r)
		}
	}
	return result, nil
}

// SaveReconciliations inserts all records or none.
func (m *Memory) SaveReconciliations(ctx context.Context, recs []inventory.ReconciliationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make(map[reconKey]bool, len(recs))
	for _, r := range recs {
		k := reconKey{Location: r.Location, Label: strings.ToUpper(r.Label), Shift: r.Shift}
		if m.reconciled[k] || batch[k] {
			return &inventory.AlreadyReconciledError{Label: r.Label, Shift: r.Shift}
		}
		batch[k] = true
	}
	for k := range batch {
		m.reconciled[k] = true
	}
	m.reconciliations = append(m.reconciliations, recs...)
	return nil
}

var _ inventory.Store = (*Memory)(nil)
