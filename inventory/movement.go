/*
movement.go - Immutable movement log entries

PURPOSE:
  A Movement records one state-changing action on a label. The envelope
  carries what every action shares (who, where, when, which shift, proof);
  the Detail carries only the fields meaningful to that action.

ACTIONS:
  RECEIVE  new units enter the active set        quantityDelta = +n
  RETIRE   units leave the active set             quantityDelta = -n
  CONSUME  a unit got lighter (delta > 0)         weight before/after
  ADJUST   a unit got heavier or was corrected    weight before/after
  POUR     cocktail draw, grouped by a batch id   weight before/after

INVARIANTS:
  - Once appended, a movement is never mutated or deleted.
  - Shift is derived from Timestamp at write time.
  - Seq is assigned by the store; it breaks ties between equal timestamps.
  - Folding all movements of a label reproduces its unit set (replay.go).
*/
package inventory

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/barstock/shift"
)

type ActionKind string

const (
	ActionReceive ActionKind = "RECEIVE"
	ActionRetire  ActionKind = "RETIRE"
	ActionConsume ActionKind = "CONSUME"
	ActionAdjust  ActionKind = "ADJUST"
	ActionPour    ActionKind = "POUR"
)

// =============================================================================
// DETAIL VARIANTS - Closed set, one per ActionKind
// =============================================================================

// Detail is implemented only by the variants in this file.
type Detail interface {
	Kind() ActionKind
	isDetail()
}

// Receive lists the barcodes of the new units, all at UnitWeight.
type Receive struct {
	UnitIDs    []string
	UnitWeight decimal.Decimal
}

// Retire lists the barcodes removed from the active set.
type Retire struct {
	UnitIDs []string
}

// WeightChange is shared by Consume and Adjust.
type WeightChange struct {
	UnitID string
	Before decimal.Decimal
	After  decimal.Decimal
}

type Consume struct{ WeightChange }
type Adjust struct{ WeightChange }

// Pour is one label's share of a cocktail. Every line of the same cocktail
// carries the same BatchID and the full list of labels used together.
type Pour struct {
	WeightChange
	BatchID     string
	BatchLabels []string
}

func (Receive) Kind() ActionKind { return ActionReceive }
func (Retire) Kind() ActionKind  { return ActionRetire }
func (Consume) Kind() ActionKind { return ActionConsume }
func (Adjust) Kind() ActionKind  { return ActionAdjust }
func (Pour) Kind() ActionKind    { return ActionPour }

func (Receive) isDetail() {}
func (Retire) isDetail()  {}
func (Consume) isDetail() {}
func (Adjust) isDetail()  {}
func (Pour) isDetail()    {}

// =============================================================================
// MOVEMENT - Envelope
// =============================================================================

type Movement struct {
	ID        string
	Seq       int64
	Location  LocationID
	Label     string
	Category  string
	Actor     ActorID
	ProofURL  string // empty when no evidence was attached
	Timestamp time.Time
	Shift     shift.ID

	// TotalAfter is the label's total weight once this movement applied.
	TotalAfter decimal.Decimal

	Detail Detail
}

// Clone returns a copy that shares no slices with m.
func (m Movement) Clone() Movement {
	switch d := m.Detail.(type) {
	case Receive:
		d.UnitIDs = cloneStrings(d.UnitIDs)
		m.Detail = d
	case Retire:
		d.UnitIDs = cloneStrings(d.UnitIDs)
		m.Detail = d
	case Pour:
		d.BatchLabels = cloneStrings(d.BatchLabels)
		m.Detail = d
	}
	return m
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func (m Movement) Kind() ActionKind {
	if m.Detail == nil {
		return ""
	}
	return m.Detail.Kind()
}

// QuantityDelta is nonzero only for RECEIVE and RETIRE.
func (m Movement) QuantityDelta() int {
	switch d := m.Detail.(type) {
	case Receive:
		return len(d.UnitIDs)
	case Retire:
		return -len(d.UnitIDs)
	}
	return 0
}

func (m Movement) weightChange() (WeightChange, bool) {
	switch d := m.Detail.(type) {
	case Consume:
		return d.WeightChange, true
	case Adjust:
		return d.WeightChange, true
	case Pour:
		return d.WeightChange, true
	}
	return WeightChange{}, false
}

// WeightBefore is nil for actions that do not change a unit's weight.
func (m Movement) WeightBefore() *decimal.Decimal {
	if wc, ok := m.weightChange(); ok {
		return &wc.Before
	}
	return nil
}

func (m Movement) WeightAfter() *decimal.Decimal {
	if wc, ok := m.weightChange(); ok {
		return &wc.After
	}
	return nil
}

// UnitID is the single unit affected, empty for multi-unit actions.
func (m Movement) UnitID() string {
	if wc, ok := m.weightChange(); ok {
		return wc.UnitID
	}
	switch d := m.Detail.(type) {
	case Receive:
		if len(d.UnitIDs) == 1 {
			return d.UnitIDs[0]
		}
	case Retire:
		if len(d.UnitIDs) == 1 {
			return d.UnitIDs[0]
		}
	}
	return ""
}

// Consumed is the weight drawn by CONSUME and POUR movements.
func (m Movement) Consumed() decimal.Decimal {
	switch d := m.Detail.(type) {
	case Consume:
		return d.Before.Sub(d.After)
	case Pour:
		return d.Before.Sub(d.After)
	}
	return decimal.Zero
}

// SortNewestFirst orders by timestamp descending, later inserts first on ties.
func SortNewestFirst(ms []Movement) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].Timestamp.Equal(ms[j].Timestamp) {
			return ms[i].Timestamp.After(ms[j].Timestamp)
		}
		return ms[i].Seq > ms[j].Seq
	})
}

// SortChronological is the inverse of SortNewestFirst.
func SortChronological(ms []Movement) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].Timestamp.Equal(ms[j].Timestamp) {
			return ms[i].Timestamp.Before(ms[j].Timestamp)
		}
		return ms[i].Seq < ms[j].Seq
	})
}

// =============================================================================
// DETAIL CODEC - For persistent stores
// =============================================================================

type detailJSON struct {
	UnitIDs     []string         `json:"unit_ids,omitempty"`
	UnitWeight  *decimal.Decimal `json:"unit_weight,omitempty"`
	UnitID      string           `json:"unit_id,omitempty"`
	Before      *decimal.Decimal `json:"before,omitempty"`
	After       *decimal.Decimal `json:"after,omitempty"`
	BatchID     string           `json:"batch_id,omitempty"`
	BatchLabels []string         `json:"batch_labels,omitempty"`
}

// MarshalDetail encodes a detail for storage next to its kind column.
func MarshalDetail(d Detail) ([]byte, error) {
	var out detailJSON
	switch v := d.(type) {
	case Receive:
		out.UnitIDs = v.UnitIDs
		out.UnitWeight = &v.UnitWeight
	case Retire:
		out.UnitIDs = v.UnitIDs
	case Consume:
		out.UnitID, out.Before, out.After = v.UnitID, &v.Before, &v.After
	case Adjust:
		out.UnitID, out.Before, out.After = v.UnitID, &v.Before, &v.After
	case Pour:
		out.UnitID, out.Before, out.After = v.UnitID, &v.Before, &v.After
		out.BatchID = v.BatchID
		out.BatchLabels = v.BatchLabels
	default:
		return nil, fmt.Errorf("unknown movement detail %T", d)
	}
	return json.Marshal(out)
}

// UnmarshalDetail is the inverse of MarshalDetail.
func UnmarshalDetail(kind ActionKind, data []byte) (Detail, error) {
	var in detailJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode %s detail: %w", kind, err)
	}
	wc := WeightChange{UnitID: in.UnitID, Before: deref(in.Before), After: deref(in.After)}

	switch kind {
	case ActionReceive:
		return Receive{UnitIDs: in.UnitIDs, UnitWeight: deref(in.UnitWeight)}, nil
	case ActionRetire:
		return Retire{UnitIDs: in.UnitIDs}, nil
	case ActionConsume:
		return Consume{wc}, nil
	case ActionAdjust:
		return Adjust{wc}, nil
	case ActionPour:
		return Pour{WeightChange: wc, BatchID: in.BatchID, BatchLabels: in.BatchLabels}, nil
	}
	return nil, fmt.Errorf("unknown movement kind %q", kind)
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
