/*
reconcile.go - End-of-shift reconciliation

PURPOSE:
  At shift close every label that was touched (anything other than pure
  receiving) must be physically weighed and photographed. The closing
  weight is compared with what the ledger expects; a gap beyond tolerance
  is flagged on the record but never blocks the close.

WORKFLOW:
  1. PendingLabels: worklist, derived from the log on every call
  2. CloseLabel:    one label at a time
  3. CloseShift:    the whole worklist at once, all or nothing

INVARIANTS:
  - At most one ReconciliationRecord per (location, label, shift).
  - Records are never updated. A correction is a new movement.
  - Only labels with a non-RECEIVE movement in the shift can be reconciled.

EXPECTED WEIGHT:
  Every movement stores the label total after it applied (TotalAfter). The
  expected closing weight is the TotalAfter of the label's most recent
  non-RECEIVE movement in the shift. Stock received after that movement
  is not part of the expectation.

CONCURRENCY:
  Closes for the same (location, shift) are serialized through the Locker.
  The store's uniqueness on (location, label, shift) is the second guard.
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

// ReconciliationRecord is the verified closing state of one label for one
// shift.
type ReconciliationRecord struct {
	ID             string
	Location       LocationID
	Label          string
	Category       string
	Shift          shift.ID
	ClosingWeight  decimal.Decimal
	ExpectedWeight decimal.Decimal
	Difference     decimal.Decimal // closing - expected
	Mismatch       bool
	ProofURL       string
	Actor          ActorID
	Timestamp      time.Time
}

// Closure is one label's measured closing weight. ClosingWeight is nullable
// so a missing value can be told apart from zero.
type Closure struct {
	Label         string
	ClosingWeight decimal.NullDecimal
	ProofURL      string
}

type CloseLabelRequest struct {
	Location LocationID
	Shift    shift.ID
	Actor    ActorID
	Closure
}

type CloseShiftRequest struct {
	Location LocationID
	Shift    shift.ID
	Actor    ActorID
	Closures []Closure
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	store   Store
	catalog Catalog
	settings
}

func NewReconciler(store Store, catalog Catalog, opts ...Option) *Reconciler {
	r := &Reconciler{store: store, catalog: catalog, settings: defaultSettings()}
	for _, opt := range opts {
		opt(&r.settings)
	}
	return r
}

func (r *Reconciler) Tolerance() decimal.Decimal { return r.tolerance }

// shiftState is everything the reconciler derives from the log for one
// shift.
type shiftState struct {
	// latest non-RECEIVE movement, keyed by label key
	touched map[string]Movement
	// reconciled label keys
	reconciled map[string]bool
}

func (r *Reconciler) load(ctx context.Context, loc LocationID, s shift.ID) (*shiftState, error) {
	ms, err := r.store.LoadMovementsByShift(ctx, loc, s)
	if err != nil {
		return nil, upstream("load movements", err)
	}
	recs, err := r.store.LoadReconciliations(ctx, loc, s)
	if err != nil {
		return nil, upstream("load reconciliations", err)
	}

	SortChronological(ms)
	st := &shiftState{
		touched:    make(map[string]Movement),
		reconciled: make(map[string]bool),
	}
	for _, m := range ms {
		key := catalogKey(m.Label)
		if m.Kind() != ActionReceive {
			st.touched[key] = m
		}
	}
	for _, rec := range recs {
		st.reconciled[catalogKey(rec.Label)] = true
	}
	return st, nil
}

func (st *shiftState) pending() []string {
	var out []string
	for key, m := range st.touched {
		if !st.reconciled[key] {
			out = append(out, m.Label)
		}
	}
	sort.Strings(out)
	return out
}

// PendingLabels lists labels with a non-RECEIVE movement in the shift that
// have not been reconciled yet, sorted by name.
func (r *Reconciler) PendingLabels(ctx context.Context, loc LocationID, s shift.ID) ([]string, error) {
	st, err := r.load(ctx, loc, s)
	if err != nil {
		return nil, err
	}
	return st.pending(), nil
}

// CloseLabel reconciles a single pending label.
func (r *Reconciler) CloseLabel(ctx context.Context, req CloseLabelRequest) (*ReconciliationRecord, error) {
	if err := checkActor(req.Location, req.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Label) == "" {
		return nil, invalid("label", "label required")
	}
	if err := validateClosure(req.Closure, "closing_weight", "proof"); err != nil {
		return nil, err
	}

	unlock, err := r.locker.Lock(ctx, reconcileLockKey(req.Location, req.Shift))
	if err != nil {
		return nil, upstream("lock shift", err)
	}
	defer unlock()

	st, err := r.load(ctx, req.Location, req.Shift)
	if err != nil {
		return nil, err
	}
	rec, err := r.build(st, req.Location, req.Shift, req.Actor, req.Closure)
	if err != nil {
		return nil, err
	}
	if err := r.save(ctx, []ReconciliationRecord{rec}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CloseShift reconciles the whole worklist. It fails without persisting
// anything if a pending label has no closure or any closure is invalid.
func (r *Reconciler) CloseShift(ctx context.Context, req CloseShiftRequest) ([]ReconciliationRecord, error) {
	if err := checkActor(req.Location, req.Actor); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(req.Closures))
	for i, c := range req.Closures {
		prefix := fmt.Sprintf("closures[%d].", i)
		if strings.TrimSpace(c.Label) == "" {
			return nil, invalid(prefix+"label", "label required")
		}
		if err := validateClosure(c, prefix+"closing_weight", prefix+"proof"); err != nil {
			return nil, err
		}
		key := catalogKey(c.Label)
		if seen[key] {
			return nil, invalid(prefix+"label", "%s listed twice", strings.TrimSpace(c.Label))
		}
		seen[key] = true
	}

	unlock, err := r.locker.Lock(ctx, reconcileLockKey(req.Location, req.Shift))
	if err != nil {
		return nil, upstream("lock shift", err)
	}
	defer unlock()

	st, err := r.load(ctx, req.Location, req.Shift)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, label := range st.pending() {
		if !seen[catalogKey(label)] {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteReconciliationError{Shift: req.Shift, Missing: missing}
	}

	recs := make([]ReconciliationRecord, 0, len(req.Closures))
	for _, c := range req.Closures {
		rec, err := r.build(st, req.Location, req.Shift, req.Actor, c)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return recs, nil
	}
	if err := r.save(ctx, recs); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"location": req.Location,
		"shift":    req.Shift,
		"labels":   len(recs),
	}).Info("shift closed")
	return recs, nil
}

// Reconciliations returns the records of a shift ordered by label.
func (r *Reconciler) Reconciliations(ctx context.Context, loc LocationID, s shift.ID) ([]ReconciliationRecord, error) {
	recs, err := r.store.LoadReconciliations(ctx, loc, s)
	if err != nil {
		return nil, upstream("load reconciliations", err)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Label < recs[j].Label })
	return recs, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (r *Reconciler) build(st *shiftState, loc LocationID, s shift.ID, actor ActorID, c Closure) (ReconciliationRecord, error) {
	key := catalogKey(c.Label)
	name := strings.TrimSpace(c.Label)
	if canonical, _, ok := lookupLabel(r.catalog, c.Label); ok {
		name = canonical
	}
	if st.reconciled[key] {
		return ReconciliationRecord{}, &AlreadyReconciledError{Label: name, Shift: s}
	}
	touched, ok := st.touched[key]
	if !ok {
		return ReconciliationRecord{}, &NotPendingError{Label: name, Shift: s}
	}

	expected := touched.TotalAfter
	closing := c.ClosingWeight.Decimal
	diff := closing.Sub(expected)
	rec := ReconciliationRecord{
		ID:             r.newID(),
		Location:       loc,
		Label:          touched.Label,
		Category:       touched.Category,
		Shift:          s,
		ClosingWeight:  closing,
		ExpectedWeight: expected,
		Difference:     diff,
		Mismatch:       diff.Abs().GreaterThan(r.tolerance),
		ProofURL:       strings.TrimSpace(c.ProofURL),
		Actor:          actor,
		Timestamp:      r.now(),
	}
	if rec.Mismatch {
		r.log.WithFields(logrus.Fields{
			"location": loc,
			"label":    rec.Label,
			"shift":    s,
			"expected": expected.String(),
			"closing":  closing.String(),
		}).Warn("reconciliation mismatch")
	}
	return rec, nil
}

func (r *Reconciler) save(ctx context.Context, recs []ReconciliationRecord) error {
	err := r.store.SaveReconciliations(ctx, recs)
	if err == nil || IsClientError(err) {
		return err
	}
	r.log.WithError(err).Error("save reconciliations")
	return upstream("save reconciliations", err)
}

func validateClosure(c Closure, weightField, proofField string) error {
	if !c.ClosingWeight.Valid {
		return invalid(weightField, "closing weight required")
	}
	if c.ClosingWeight.Decimal.IsNegative() {
		return invalid(weightField, "closing weight must not be negative")
	}
	if strings.TrimSpace(c.ProofURL) == "" {
		return invalid(proofField, "proof required")
	}
	return nil
}

func reconcileLockKey(loc LocationID, s shift.ID) string {
	return fmt.Sprintf("reconcile:%s:%s", loc, s)
}
