/*
replay.go - Rebuilding ledger state from the movement log

PURPOSE:
  The log is the audit source of truth. Folding a label's movements in
  chronological order must reproduce the units the ledger holds.
  Verify compares the two and reports any drift.

FOLD RULES:
  RECEIVE          append each unit id at UnitWeight
  RETIRE           drop each unit id
  CONSUME/ADJUST/  set the unit's weight to After
  POUR
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
)

// Replay folds movements of ONE label into its active units. Movements may
// be in any order; they are sorted chronologically first.
func Replay(movements []Movement) ([]Unit, error) {
	ms := append([]Movement(nil), movements...)
	SortChronological(ms)

	var units []Unit
	find := func(id string) int {
		for i, u := range units {
			if strings.EqualFold(u.ID, id) {
				return i
			}
		}
		return -1
	}

	for _, m := range ms {
		switch d := m.Detail.(type) {
		case Receive:
			for _, id := range d.UnitIDs {
				if find(id) >= 0 {
					return nil, fmt.Errorf("movement %s: unit %s received twice", m.ID, id)
				}
				units = append(units, Unit{ID: id, Weight: d.UnitWeight, CreatedAt: m.Timestamp})
			}
		case Retire:
			for _, id := range d.UnitIDs {
				i := find(id)
				if i < 0 {
					return nil, fmt.Errorf("movement %s: retired unit %s is not active", m.ID, id)
				}
				units = append(units[:i], units[i+1:]...)
			}
		default:
			wc, ok := m.weightChange()
			if !ok {
				return nil, fmt.Errorf("movement %s: unknown detail %T", m.ID, m.Detail)
			}
			i := find(wc.UnitID)
			if i < 0 {
				return nil, fmt.Errorf("movement %s: weighed unit %s is not active", m.ID, wc.UnitID)
			}
			units[i].Weight = wc.After
		}
	}
	return units, nil
}

// VerifyReport compares a stored label record with its replayed history.
type VerifyReport struct {
	Label            string
	StoredQuantity   int
	ReplayedQuantity int
	Differences      []string
}

func (r VerifyReport) OK() bool { return len(r.Differences) == 0 }

// Verify replays a label's log and reports every unit whose stored state
// differs from the fold.
func (l *Ledger) Verify(ctx context.Context, loc LocationID, label string) (*VerifyReport, error) {
	rec, err := l.Label(ctx, loc, label)
	if err != nil {
		return nil, err
	}
	ms, err := l.store.LoadMovementsByLabel(ctx, loc, rec.Name)
	if err != nil {
		return nil, upstream("load movements", err)
	}
	replayed, err := Replay(ms)
	if err != nil {
		return &VerifyReport{
			Label:          rec.Name,
			StoredQuantity: rec.Quantity(),
			Differences:    []string{err.Error()},
		}, nil
	}

	report := &VerifyReport{Label: rec.Name, StoredQuantity: rec.Quantity(), ReplayedQuantity: len(replayed)}
	if report.StoredQuantity != report.ReplayedQuantity {
		report.Differences = append(report.Differences,
			fmt.Sprintf("quantity: stored %d, replayed %d", report.StoredQuantity, report.ReplayedQuantity))
	}
	for _, u := range replayed {
		i := rec.FindUnit(u.ID)
		if i < 0 {
			report.Differences = append(report.Differences, fmt.Sprintf("unit %s missing from ledger", u.ID))
			continue
		}
		if !rec.Units[i].Weight.Equal(u.Weight) {
			report.Differences = append(report.Differences,
				fmt.Sprintf("unit %s: stored weight %s, replayed %s", u.ID, rec.Units[i].Weight, u.Weight))
		}
	}
	for _, u := range rec.Units {
		found := false
		for _, r := range replayed {
			if strings.EqualFold(r.ID, u.ID) {
				found = true
				break
			}
		}
		if !found {
			report.Differences = append(report.Differences, fmt.Sprintf("unit %s missing from log", u.ID))
		}
	}
	return report, nil
}
