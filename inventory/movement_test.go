package inventory_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/inventory"
)

func TestMovement_Accessors(t *testing.T) {
	receive := inventory.Movement{Detail: inventory.Receive{UnitIDs: []string{"A1", "A2"}, UnitWeight: d(700)}}
	assert.Equal(t, 2, receive.QuantityDelta())
	assert.Nil(t, receive.WeightBefore())
	assert.Empty(t, receive.UnitID(), "multi-unit receive has no single unit")

	retire := inventory.Movement{Detail: inventory.Retire{UnitIDs: []string{"A1"}}}
	assert.Equal(t, -1, retire.QuantityDelta())
	assert.Equal(t, "A1", retire.UnitID())

	pour := inventory.Movement{Detail: inventory.Pour{
		WeightChange: inventory.WeightChange{UnitID: "B1", Before: d(750), After: d(720)},
		BatchID:      "batch-1",
	}}
	assert.Equal(t, inventory.ActionPour, pour.Kind())
	assert.Equal(t, 0, pour.QuantityDelta())
	require.NotNil(t, pour.WeightAfter())
	assert.True(t, pour.WeightAfter().Equal(d(720)))
	assert.True(t, pour.Consumed().Equal(d(30)))

	adjust := inventory.Movement{Detail: inventory.Adjust{WeightChange: inventory.WeightChange{Before: d(700), After: d(650)}}}
	assert.True(t, adjust.Consumed().IsZero())
}

func TestSortNewestFirst_StableOnEqualTimestamps(t *testing.T) {
	ts := time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)
	ms := []inventory.Movement{
		{ID: "a", Seq: 1, Timestamp: ts},
		{ID: "b", Seq: 2, Timestamp: ts.Add(time.Second)},
		{ID: "c", Seq: 3, Timestamp: ts},
	}

	inventory.SortNewestFirst(ms)
	assert.Equal(t, "b,c,a", ids(ms))

	inventory.SortChronological(ms)
	assert.Equal(t, "a,c,b", ids(ms))
}

func ids(ms []inventory.Movement) string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return strings.Join(out, ",")
}

func TestDetailCodec(t *testing.T) {
	details := []inventory.Detail{
		inventory.Receive{UnitIDs: []string{"A1"}, UnitWeight: d(1000)},
		inventory.Retire{UnitIDs: []string{"A1", "A2"}},
		inventory.Consume{WeightChange: inventory.WeightChange{UnitID: "A1", Before: d(1000), After: d(850)}},
		inventory.Adjust{WeightChange: inventory.WeightChange{UnitID: "A1", Before: d(850), After: d(860)}},
		inventory.Pour{
			WeightChange: inventory.WeightChange{UnitID: "A1", Before: d(860), After: d(830)},
			BatchID:      "b1",
			BatchLabels:  []string{"TEQUILA X", "HAVANA 7"},
		},
	}
	for _, det := range details {
		t.Run(string(det.Kind()), func(t *testing.T) {
			data, err := inventory.MarshalDetail(det)
			require.NoError(t, err)
			got, err := inventory.UnmarshalDetail(det.Kind(), data)
			require.NoError(t, err)
			assert.Equal(t, det.Kind(), got.Kind())

			before := inventory.Movement{Detail: det}
			after := inventory.Movement{Detail: got}
			assert.Equal(t, before.QuantityDelta(), after.QuantityDelta())
			assert.Equal(t, before.UnitID(), after.UnitID())
			if before.WeightAfter() != nil {
				assert.True(t, before.WeightAfter().Equal(*after.WeightAfter()))
			}
		})
	}

	_, err := inventory.UnmarshalDetail("MELT", []byte(`{}`))
	assert.Error(t, err)
}

func TestStaticCatalog_Lookup(t *testing.T) {
	cat, err := inventory.ReadCatalog(strings.NewReader(`[
		{"name": "WHISKY", "labels": ["Buchanan's 12", "JACK DANIEL'S", "buchanan's 12"]},
		{"name": "GIN", "labels": ["TANQUERAY"]}
	]`))
	require.NoError(t, err)

	name, category, ok := cat.Lookup("  BUCHANAN'S 12 ")
	require.True(t, ok)
	assert.Equal(t, "Buchanan's 12", name)
	assert.Equal(t, "WHISKY", category)

	_, _, ok = cat.Lookup("MEZCAL")
	assert.False(t, ok)

	// Duplicates are dropped, order kept
	cats := cat.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, []string{"Buchanan's 12", "JACK DANIEL'S"}, cats[0].Labels)
}
