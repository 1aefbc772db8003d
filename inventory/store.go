/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the engine and the outside world: the
  document-style store, the label catalog, the evidence (photo) store and
  the per-label writer lock.

APPEND-ONLY CONTRACT:
  Movements and reconciliation records are only ever inserted. There is no
  Update or Delete for either. Label records are overwritten as a whole,
  guarded by an optimistic version number.

ATOMIC CHANGES:
  Apply() writes every label record and then every movement of the batch in
  one transaction. Either the whole batch is visible or none of it is. A
  reader that sees a movement is guaranteed to see the ledger state it
  describes.

IMPLEMENTATIONS:
  - store/memory: in-memory, for tests and development
  - store/sqlite: database/sql + mattn/go-sqlite3

SEE ALSO:
  - ledger.go: the only writer of label records and movements
  - reconcile.go: the only writer of reconciliation records
*/
package inventory

import (
	"context"

	"github.com/warp/barstock/shift"
)

// =============================================================================
// STORE
// =============================================================================

// Change is one label's new state plus the movements that produced it.
// ExpectedVersion is the Version the record had when it was read (0 for a
// record that did not exist yet).
type Change struct {
	Record          LabelRecord
	ExpectedVersion int64
	Movements       []Movement
}

type LabelStore interface {
	// GetLabel returns nil, nil when the record does not exist.
	GetLabel(ctx context.Context, loc LocationID, label string) (*LabelRecord, error)
	ListLabels(ctx context.Context, loc LocationID) ([]LabelRecord, error)
	ListLocations(ctx context.Context) ([]LocationID, error)
}

type MovementStore interface {
	// LoadMovementsByShift returns movements in insertion order.
	LoadMovementsByShift(ctx context.Context, loc LocationID, s shift.ID) ([]Movement, error)
	// LoadMovementsByLabel returns the full history in insertion order.
	LoadMovementsByLabel(ctx context.Context, loc LocationID, label string) ([]Movement, error)
}

type ReconciliationStore interface {
	LoadReconciliations(ctx context.Context, loc LocationID, s shift.ID) ([]ReconciliationRecord, error)

	// SaveReconciliations inserts all records or none. A record for an
	// existing (location, label, shift) fails with *AlreadyReconciledError.
	SaveReconciliations(ctx context.Context, recs []ReconciliationRecord) error
}

// Store is everything the engine persists.
type Store interface {
	LabelStore
	MovementStore
	ReconciliationStore

	// Apply commits label records then movements atomically. Returns
	// ErrConcurrentModification when any ExpectedVersion is stale. The
	// store assigns Seq to every movement.
	Apply(ctx context.Context, changes []Change) error
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// EvidenceStore keeps photographic proof. The engine never looks at the
// bytes; the returned URL is opaque.
type EvidenceStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Locker serialises writers on a key. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
