/*
ledger.go - Bottle unit ledger operations

PURPOSE:
  The Ledger is the only writer of label records and movements. Each
  operation validates its input, mutates a copy of the label record, and
  hands the new record plus its movement(s) to Store.Apply in one batch.

ALL-OR-NOTHING:
  Validation runs against the copy. Any failure returns before Apply, so a
  failed operation leaves neither a ledger change nor a log entry. A pour
  touching three labels commits all three or none.

CONCURRENCY:
  Every mutation holds the per-(location, label) lock for its duration.
  Multi-label pours take their locks in sorted order. The store also checks
  the record version it was read at; on ErrConcurrentModification (another
  process without a shared lock won the race) the ledger reloads and
  retries a few times.

  Two terminals weighing the SAME unit is an accepted last-writer-wins race:
  both movements are logged with their before/after so the history shows it.

OPENING WEIGHT:
  Receive never sets it; a label with stock and no opening weight is an
  alert, not an error. The first consume or pour on a label whose opening
  weight is still zero captures the label's total weight before that draw.

SEE ALSO:
  - movement.go: the entries appended here
  - replay.go: folding the log back into a unit set
*/
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/shift"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store   Store
	catalog Catalog
	settings
}

func NewLedger(store Store, catalog Catalog, opts ...Option) *Ledger {
	l := &Ledger{store: store, catalog: catalog, settings: defaultSettings()}
	for _, opt := range opts {
		opt(&l.settings)
	}
	return l
}

func (l *Ledger) Calendar() shift.Calendar { return l.calendar }

// =============================================================================
// REQUESTS AND RESULTS
// =============================================================================

type ReceiveRequest struct {
	Location   LocationID
	Label      string
	Quantity   int
	UnitWeight decimal.Decimal
	UnitIDs    []string
	ProofURL   string // optional
	Actor      ActorID
}

// RetireRequest removes either Quantity units from the tail of the active
// set, or the single unit UnitID.
type RetireRequest struct {
	Location LocationID
	Label    string
	Quantity int
	UnitID   string
	ProofURL string
	Actor    ActorID
}

type WeightChangeRequest struct {
	Location  LocationID
	Label     string
	UnitID    string
	NewWeight decimal.Decimal
	ProofURL  string
	Actor     ActorID
}

// WeightChangeResult reports Delta = Previous - New. Logged is false for a
// zero delta, which is accepted but records nothing.
type WeightChangeResult struct {
	Previous decimal.Decimal
	New      decimal.Decimal
	Delta    decimal.Decimal
	Logged   bool
	Movement *Movement
}

type PourLine struct {
	Label     string
	UnitID    string // empty: first unit that still has weight
	NewWeight decimal.Decimal
}

type PourRequest struct {
	Location LocationID
	Lines    []PourLine
	ProofURL string // optional
	Actor    ActorID
}

type PourResult struct {
	Label  string
	UnitID string
	Delta  decimal.Decimal
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Receive adds new units to a label.
func (l *Ledger) Receive(ctx context.Context, req ReceiveRequest) (*LabelRecord, error) {
	if err := checkActor(req.Location, req.Actor); err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, invalid("quantity", "must be at least 1")
	}
	if len(req.UnitIDs) != req.Quantity {
		return nil, invalid("unit_ids", "expected %d barcodes, got %d", req.Quantity, len(req.UnitIDs))
	}
	if req.UnitWeight.IsNegative() {
		return nil, invalid("unit_weight", "must not be negative")
	}
	ids := make([]string, len(req.UnitIDs))
	seen := make(map[string]bool, len(req.UnitIDs))
	for i, raw := range req.UnitIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, invalid("unit_ids", "barcode %d is empty", i+1)
		}
		key := strings.ToUpper(id)
		if seen[key] {
			return nil, invalid("unit_ids", "duplicate barcode %s", id)
		}
		seen[key] = true
		ids[i] = id
	}

	op := operation{location: req.Location, actor: req.Actor, proof: req.ProofURL}
	drafts, err := l.update(ctx, op, []string{req.Label}, func(d map[string]*draft, now time.Time) error {
		dr := d[firstKey(d)]
		if err := dr.requireActive(); err != nil {
			return err
		}
		for _, id := range ids {
			if dr.rec.FindUnit(id) >= 0 {
				return invalid("unit_ids", "duplicate barcode %s", id)
			}
		}
		for _, id := range ids {
			dr.rec.Units = append(dr.rec.Units, Unit{ID: id, Weight: req.UnitWeight, CreatedAt: now})
		}
		dr.record(Receive{UnitIDs: ids, UnitWeight: req.UnitWeight})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drafts[0].result(), nil
}

// Retire removes units from the active set. Proof is required.
func (l *Ledger) Retire(ctx context.Context, req RetireRequest) (*LabelRecord, error) {
	if err := checkActor(req.Location, req.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProofURL) == "" {
		return nil, invalid("proof", "proof required")
	}
	unitID := strings.TrimSpace(req.UnitID)
	switch {
	case unitID != "" && req.Quantity > 1:
		return nil, invalid("quantity", "a single barcode retires exactly one bottle")
	case unitID == "" && req.Quantity < 1:
		return nil, invalid("quantity", "must be at least 1")
	}

	op := operation{location: req.Location, actor: req.Actor, proof: req.ProofURL}
	drafts, err := l.update(ctx, op, []string{req.Label}, func(d map[string]*draft, _ time.Time) error {
		dr := d[firstKey(d)]
		if err := dr.requireActive(); err != nil {
			return err
		}
		var removed []string
		if unitID != "" {
			i := dr.rec.FindUnit(unitID)
			if i < 0 {
				return &NotFoundError{Kind: "unit", Key: unitID}
			}
			removed = []string{dr.rec.Units[i].ID}
			dr.rec.Units = append(dr.rec.Units[:i], dr.rec.Units[i+1:]...)
		} else {
			n := dr.rec.Quantity()
			if req.Quantity > n {
				return &InsufficientStockError{Action: "retire", Label: dr.rec.Name, Available: n, Requested: req.Quantity}
			}
			// Most recently received first.
			for i := n - 1; i >= n-req.Quantity; i-- {
				removed = append(removed, dr.rec.Units[i].ID)
			}
			dr.rec.Units = dr.rec.Units[:n-req.Quantity]
		}
		dr.record(Retire{UnitIDs: removed})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drafts[0].result(), nil
}

// RecordWeightChange sets a unit's measured weight. A lighter bottle is a
// CONSUME, a heavier one an ADJUST. Proof is required.
func (l *Ledger) RecordWeightChange(ctx context.Context, req WeightChangeRequest) (WeightChangeResult, error) {
	if strings.TrimSpace(req.ProofURL) == "" {
		return WeightChangeResult{}, invalid("proof", "proof required")
	}
	return l.changeWeight(ctx, req, false)
}

// CorrectWeight is the administrative correction of a unit's weight. It is
// always logged as an ADJUST and proof is optional.
func (l *Ledger) CorrectWeight(ctx context.Context, req WeightChangeRequest) (WeightChangeResult, error) {
	return l.changeWeight(ctx, req, true)
}

func (l *Ledger) changeWeight(ctx context.Context, req WeightChangeRequest, correction bool) (WeightChangeResult, error) {
	var res WeightChangeResult
	if err := checkActor(req.Location, req.Actor); err != nil {
		return res, err
	}
	if req.NewWeight.IsNegative() {
		return res, invalid("new_weight", "must not be negative")
	}
	unitID := strings.TrimSpace(req.UnitID)
	if unitID == "" {
		return res, invalid("unit_id", "barcode required")
	}

	op := operation{location: req.Location, actor: req.Actor, proof: req.ProofURL}
	drafts, err := l.update(ctx, op, []string{req.Label}, func(d map[string]*draft, _ time.Time) error {
		dr := d[firstKey(d)]
		if !correction {
			if err := dr.requireActive(); err != nil {
				return err
			}
		}
		i := dr.rec.FindUnit(unitID)
		if i < 0 {
			return &NotFoundError{Kind: "unit", Key: unitID}
		}
		prev := dr.rec.Units[i].Weight
		res = WeightChangeResult{Previous: prev, New: req.NewWeight, Delta: prev.Sub(req.NewWeight)}
		if res.Delta.IsZero() {
			return nil
		}
		if res.Delta.IsPositive() && !correction {
			dr.captureOpening()
		}
		dr.rec.Units[i].Weight = req.NewWeight

		wc := WeightChange{UnitID: dr.rec.Units[i].ID, Before: prev, After: req.NewWeight}
		if res.Delta.IsPositive() && !correction {
			dr.record(Consume{wc})
		} else {
			dr.record(Adjust{wc})
		}
		return nil
	})
	if err != nil {
		return WeightChangeResult{}, err
	}
	if len(drafts) > 0 && len(drafts[0].moves) > 0 {
		m := drafts[0].moves[0]
		res.Logged = true
		res.Movement = &m
	}
	return res, nil
}

// RecordPour draws from one or more labels for a single cocktail. Every
// line must lower its unit's weight or the whole batch is rejected.
func (l *Ledger) RecordPour(ctx context.Context, req PourRequest) ([]PourResult, error) {
	if err := checkActor(req.Location, req.Actor); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, invalid("lines", "at least one bottle required")
	}
	labels := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		if line.NewWeight.IsNegative() {
			return nil, invalid(fmt.Sprintf("lines[%d].new_weight", i), "must not be negative")
		}
		labels[i] = line.Label
	}

	batchID := l.newID()
	results := make([]PourResult, 0, len(req.Lines))
	op := operation{location: req.Location, actor: req.Actor, proof: req.ProofURL}
	_, err := l.update(ctx, op, labels, func(d map[string]*draft, _ time.Time) error {
		results = results[:0]
		var batchLabels []string
		for _, line := range req.Lines {
			name := d[labelKey(line.Label)].rec.Name
			if !containsFold(batchLabels, name) {
				batchLabels = append(batchLabels, name)
			}
		}
		for i, line := range req.Lines {
			dr := d[labelKey(line.Label)]
			if err := dr.requireActive(); err != nil {
				return err
			}
			idx := -1
			if id := strings.TrimSpace(line.UnitID); id != "" {
				if idx = dr.rec.FindUnit(id); idx < 0 {
					return &NotFoundError{Kind: "unit", Key: id}
				}
			} else {
				for j, u := range dr.rec.Units {
					if u.Weight.IsPositive() {
						idx = j
						break
					}
				}
				if idx < 0 {
					return &InsufficientStockError{Action: "pour", Label: dr.rec.Name, Available: dr.rec.Quantity(), Requested: 1}
				}
			}
			unit := dr.rec.Units[idx]
			delta := unit.Weight.Sub(line.NewWeight)
			if !delta.IsPositive() {
				return invalid(fmt.Sprintf("lines[%d].new_weight", i),
					"%s must be lighter than %s after a pour", unit.ID, unit.Weight.String())
			}
			dr.captureOpening()
			dr.rec.Units[idx].Weight = line.NewWeight
			dr.record(Pour{
				WeightChange: WeightChange{UnitID: unit.ID, Before: unit.Weight, After: line.NewWeight},
				BatchID:      batchID,
				BatchLabels:  batchLabels,
			})
			results = append(results, PourResult{Label: dr.rec.Name, UnitID: unit.ID, Delta: delta})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SetOpeningWeight records the reference weight for the current cycle. It
// does not produce a movement.
func (l *Ledger) SetOpeningWeight(ctx context.Context, loc LocationID, label string, weight decimal.Decimal, actor ActorID) (*LabelRecord, error) {
	if err := checkActor(loc, actor); err != nil {
		return nil, err
	}
	if weight.IsNegative() {
		return nil, invalid("opening_weight", "must not be negative")
	}
	op := operation{location: loc, actor: actor}
	drafts, err := l.update(ctx, op, []string{label}, func(d map[string]*draft, _ time.Time) error {
		dr := d[firstKey(d)]
		dr.rec.OpeningWeight = weight
		dr.dirty = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drafts[0].result(), nil
}

// SetActive toggles whether a label accepts new operations.
func (l *Ledger) SetActive(ctx context.Context, loc LocationID, label string, active bool, actor ActorID) (*LabelRecord, error) {
	if err := checkActor(loc, actor); err != nil {
		return nil, err
	}
	op := operation{location: loc, actor: actor}
	drafts, err := l.update(ctx, op, []string{label}, func(d map[string]*draft, _ time.Time) error {
		dr := d[firstKey(d)]
		dr.dirty = dr.rec.Active != active
		dr.rec.Active = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drafts[0].result(), nil
}

// =============================================================================
// READS
// =============================================================================

// Label returns the record for a catalog label. A label never operated on
// at this location comes back empty and active.
func (l *Ledger) Label(ctx context.Context, loc LocationID, label string) (*LabelRecord, error) {
	name, category, ok := lookupLabel(l.catalog, label)
	if !ok {
		return nil, &NotFoundError{Kind: "label", Key: label}
	}
	rec, err := l.store.GetLabel(ctx, loc, name)
	if err != nil {
		return nil, upstream("load label", err)
	}
	if rec == nil {
		fresh := newLabelRecord(loc, name, category)
		return &fresh, nil
	}
	return rec, nil
}

// Snapshot returns every label record of a location, ordered by name.
func (l *Ledger) Snapshot(ctx context.Context, loc LocationID) ([]LabelRecord, error) {
	recs, err := l.store.ListLabels(ctx, loc)
	if err != nil {
		return nil, upstream("list labels", err)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	return recs, nil
}

// =============================================================================
// MUTATION PIPELINE
// =============================================================================

type operation struct {
	location LocationID
	actor    ActorID
	proof    string
}

// draft is the working copy of one label during an operation.
type draft struct {
	rec      LabelRecord
	expected int64
	moves    []Movement
	dirty    bool
}

func (d *draft) requireActive() error {
	if !d.rec.Active {
		return invalid("label", "%s is inactive", d.rec.Name)
	}
	return nil
}

func (d *draft) captureOpening() {
	if d.rec.OpeningWeight.IsZero() {
		d.rec.OpeningWeight = d.rec.TotalWeight()
	}
}

// record appends a movement describing the draft's current state.
func (d *draft) record(detail Detail) {
	d.moves = append(d.moves, Movement{
		Location:   d.rec.Location,
		Label:      d.rec.Name,
		Category:   d.rec.Category,
		TotalAfter: d.rec.TotalWeight(),
		Detail:     detail,
	})
	d.dirty = true
}

func (d *draft) result() *LabelRecord {
	rec := d.rec.Clone()
	return &rec
}

func labelKey(label string) string { return catalogKey(label) }

func firstKey(d map[string]*draft) string {
	for k := range d {
		return k
	}
	return ""
}

func lockKey(loc LocationID, name string) string {
	return fmt.Sprintf("label:%s:%s", loc, catalogKey(name))
}

// update runs fn against fresh copies of the named labels and commits the
// result. fn sees a map keyed by labelKey; the returned drafts are in
// sorted label order.
func (l *Ledger) update(ctx context.Context, op operation, labels []string, fn func(map[string]*draft, time.Time) error) ([]*draft, error) {
	type target struct{ name, category string }
	targets := make(map[string]target, len(labels))
	for _, label := range labels {
		name, category, ok := lookupLabel(l.catalog, label)
		if !ok {
			return nil, &NotFoundError{Kind: "label", Key: strings.TrimSpace(label)}
		}
		targets[catalogKey(name)] = target{name: name, category: category}
	}
	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		unlock, err := l.locker.Lock(ctx, lockKey(op.location, targets[k].name))
		if err != nil {
			return nil, upstream("lock label", err)
		}
		defer unlock()
	}

	for attempt := 0; ; attempt++ {
		drafts := make(map[string]*draft, len(keys))
		ordered := make([]*draft, 0, len(keys))
		for _, k := range keys {
			t := targets[k]
			cur, err := l.store.GetLabel(ctx, op.location, t.name)
			if err != nil {
				return nil, upstream("load label", err)
			}
			dr := &draft{rec: newLabelRecord(op.location, t.name, t.category)}
			if cur != nil {
				dr.rec = cur.Clone()
				dr.expected = cur.Version
			}
			drafts[k] = dr
			ordered = append(ordered, dr)
		}

		now := l.now()
		if err := fn(drafts, now); err != nil {
			return nil, err
		}

		sh := l.calendar.IDFor(now)
		var changes []Change
		for _, dr := range ordered {
			if !dr.dirty {
				continue
			}
			dr.rec.Version = dr.expected + 1
			dr.rec.UpdatedAt = now
			for i := range dr.moves {
				m := &dr.moves[i]
				m.ID = l.newID()
				m.Actor = op.actor
				m.ProofURL = op.proof
				m.Timestamp = now
				m.Shift = sh
			}
			changes = append(changes, Change{Record: dr.rec.Clone(), ExpectedVersion: dr.expected, Movements: dr.moves})
		}
		if len(changes) == 0 {
			return ordered, nil
		}

		err := l.store.Apply(ctx, changes)
		if err == nil {
			l.logCommitted(changes, sh)
			return ordered, nil
		}
		if IsConcurrentModification(err) && attempt < l.retries {
			l.log.WithFields(logrus.Fields{"location": op.location, "attempt": attempt + 1}).
				Debug("label changed underneath, retrying")
			continue
		}
		if IsConcurrentModification(err) {
			return nil, err
		}
		l.log.WithFields(logrus.Fields{"location": op.location}).WithError(err).Error("apply ledger change")
		return nil, upstream("apply ledger change", err)
	}
}

func (l *Ledger) logCommitted(changes []Change, sh shift.ID) {
	for _, c := range changes {
		if len(c.Movements) == 0 {
			l.log.WithFields(logrus.Fields{
				"location": c.Record.Location,
				"label":    c.Record.Name,
				"version":  c.Record.Version,
			}).Info("label updated")
			continue
		}
		for _, m := range c.Movements {
			l.log.WithFields(logrus.Fields{
				"location": m.Location,
				"label":    m.Label,
				"kind":     m.Kind(),
				"shift":    sh,
				"actor":    m.Actor,
				"total":    m.TotalAfter.String(),
			}).Info("movement recorded")
		}
	}
}

func checkActor(loc LocationID, actor ActorID) error {
	if loc == "" {
		return invalid("location", "location required")
	}
	if actor == "" {
		return invalid("actor", "actor required")
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
