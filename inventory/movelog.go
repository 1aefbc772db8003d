package inventory

import (
	"context"

	"github.com/warp/barstock/shift"
)

// MovementLog is the read side of the append-only movement log. Appends
// happen only through the Ledger, inside Store.Apply.
type MovementLog struct {
	store   MovementStore
	catalog Catalog
}

func NewMovementLog(store MovementStore, catalog Catalog) *MovementLog {
	return &MovementLog{store: store, catalog: catalog}
}

// QueryByShift returns every movement of the location in the shift, newest
// first. Entries with the same timestamp keep reverse insertion order.
func (ml *MovementLog) QueryByShift(ctx context.Context, loc LocationID, s shift.ID) ([]Movement, error) {
	ms, err := ml.store.LoadMovementsByShift(ctx, loc, s)
	if err != nil {
		return nil, upstream("load movements", err)
	}
	SortNewestFirst(ms)
	return ms, nil
}

// QueryByLabel returns the full history of a label, newest first.
func (ml *MovementLog) QueryByLabel(ctx context.Context, loc LocationID, label string) ([]Movement, error) {
	name, _, ok := lookupLabel(ml.catalog, label)
	if !ok {
		return nil, &NotFoundError{Kind: "label", Key: label}
	}
	ms, err := ml.store.LoadMovementsByLabel(ctx, loc, name)
	if err != nil {
		return nil, upstream("load movements", err)
	}
	SortNewestFirst(ms)
	return ms, nil
}
