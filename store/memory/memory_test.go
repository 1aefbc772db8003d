package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/store/memory"
)

func rec(loc inventory.LocationID, name string, weights ...int64) inventory.LabelRecord {
	r := inventory.LabelRecord{Location: loc, Name: name, Category: "RON", Active: true}
	for i, w := range weights {
		r.Units = append(r.Units, inventory.Unit{ID: string(rune('A' + i)), Weight: decimal.NewFromInt(w)})
	}
	return r
}

func TestMemory_ApplyAssignsVersionAndSeq(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	ts := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	moves := []inventory.Movement{
		{ID: "m1", Location: "bar", Label: "RON", Shift: "2025-03-01", Timestamp: ts,
			Detail: inventory.Receive{UnitIDs: []string{"A"}, UnitWeight: decimal.NewFromInt(700)}},
	}
	err := m.Apply(ctx, []inventory.Change{{Record: rec("bar", "RON", 700), ExpectedVersion: 0, Movements: moves}})
	require.NoError(t, err)

	// THEN: the caller's movement got its sequence number
	assert.Equal(t, int64(1), moves[0].Seq)

	got, err := m.GetLabel(ctx, "bar", "ron")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 1, got.Quantity())

	byShift, err := m.LoadMovementsByShift(ctx, "bar", "2025-03-01")
	require.NoError(t, err)
	assert.Len(t, byShift, 1)
}

func TestMemory_MovementsAreCopied(t *testing.T) {
	// GIVEN: a receive and a pour applied to the store
	ctx := context.Background()
	m := memory.NewMemory()
	ts := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	ids := []string{"A", "B"}
	batch := []string{"RON", "VODKA"}
	moves := []inventory.Movement{
		{ID: "m1", Location: "bar", Label: "RON", Shift: "2025-03-01", Timestamp: ts,
			Detail: inventory.Receive{UnitIDs: ids, UnitWeight: decimal.NewFromInt(700)}},
		{ID: "m2", Location: "bar", Label: "RON", Shift: "2025-03-01", Timestamp: ts,
			Detail: inventory.Pour{BatchID: "b1", BatchLabels: batch}},
	}
	require.NoError(t, m.Apply(ctx, []inventory.Change{{Record: rec("bar", "RON", 700, 700), Movements: moves}}))

	// WHEN: the caller's slices and a loaded movement are mutated
	ids[0] = "Z"
	batch[0] = "GIN"
	loaded, err := m.LoadMovementsByLabel(ctx, "bar", "RON")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	loaded[0].Detail.(inventory.Receive).UnitIDs[1] = "Y"
	loaded[1].Detail.(inventory.Pour).BatchLabels[1] = "TEQUILA"

	// THEN: the log still holds what was applied
	again, err := m.LoadMovementsByShift(ctx, "bar", "2025-03-01")
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, []string{"A", "B"}, again[0].Detail.(inventory.Receive).UnitIDs)
	assert.Equal(t, []string{"RON", "VODKA"}, again[1].Detail.(inventory.Pour).BatchLabels)
}

func TestMemory_StaleVersionRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	require.NoError(t, m.Apply(ctx, []inventory.Change{{Record: rec("bar", "RON", 700)}}))

	// WHEN: a batch contains one fresh record and one stale one
	err := m.Apply(ctx, []inventory.Change{
		{Record: rec("bar", "VODKA", 500), ExpectedVersion: 0,
			Movements: []inventory.Movement{{ID: "x", Location: "bar", Label: "VODKA"}}},
		{Record: rec("bar", "RON", 600), ExpectedVersion: 0},
	})

	// THEN: nothing from the batch is visible
	assert.ErrorIs(t, err, inventory.ErrConcurrentModification)
	vodka, err := m.GetLabel(ctx, "bar", "VODKA")
	require.NoError(t, err)
	assert.Nil(t, vodka)
	hist, err := m.LoadMovementsByLabel(ctx, "bar", "VODKA")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestMemory_ReconciliationsUniquePerLabelAndShift(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	r := inventory.ReconciliationRecord{ID: "r1", Location: "bar", Label: "RON", Shift: "2025-03-01"}

	require.NoError(t, m.SaveReconciliations(ctx, []inventory.ReconciliationRecord{r}))

	// Same label in a batch with a new one: whole batch rejected
	other := inventory.ReconciliationRecord{ID: "r2", Location: "bar", Label: "GIN", Shift: "2025-03-01"}
	err := m.SaveReconciliations(ctx, []inventory.ReconciliationRecord{other, r})
	assert.ErrorIs(t, err, inventory.ErrAlreadyReconciled)

	recs, err := m.LoadReconciliations(ctx, "bar", "2025-03-01")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// Other shifts are independent
	r.Shift = "2025-03-02"
	assert.NoError(t, m.SaveReconciliations(ctx, []inventory.ReconciliationRecord{r}))
}

func TestMemory_ListLocations(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	require.NoError(t, m.Apply(ctx, []inventory.Change{
		{Record: rec("boston", "RON")},
		{Record: rec("club-social", "GIN")},
		{Record: rec("boston", "GIN")},
	}))

	locs, err := m.ListLocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []inventory.LocationID{"boston", "club-social"}, locs)
}
