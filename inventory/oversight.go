package inventory

import (
	"context"

	"github.com/warp/barstock/shift"
)

// Oversight is the read-only surface for auditors: movements, reconciliations,
// the current snapshot, alerts and the flattened shift report.
type Oversight struct {
	ledger     *Ledger
	movements  *MovementLog
	reconciler *Reconciler
}

func NewOversight(l *Ledger, ml *MovementLog, r *Reconciler) *Oversight {
	return &Oversight{ledger: l, movements: ml, reconciler: r}
}

// CurrentShift is the live shift according to the ledger's clock.
func (o *Oversight) CurrentShift() shift.ID {
	return o.ledger.calendar.IDFor(o.ledger.now())
}

// ShiftData loads everything Analyze and BuildReport need.
func (o *Oversight) ShiftData(ctx context.Context, loc LocationID, s shift.ID) (AnalysisInput, error) {
	snapshot, err := o.ledger.Snapshot(ctx, loc)
	if err != nil {
		return AnalysisInput{}, err
	}
	ms, err := o.movements.QueryByShift(ctx, loc, s)
	if err != nil {
		return AnalysisInput{}, err
	}
	recs, err := o.reconciler.Reconciliations(ctx, loc, s)
	if err != nil {
		return AnalysisInput{}, err
	}
	return AnalysisInput{
		Snapshot:        snapshot,
		Movements:       ms,
		Reconciliations: recs,
		Shift:           s,
		CurrentShift:    o.CurrentShift(),
	}, nil
}

func (o *Oversight) Alerts(ctx context.Context, loc LocationID, s shift.ID) ([]Alert, error) {
	in, err := o.ShiftData(ctx, loc, s)
	if err != nil {
		return nil, err
	}
	return Analyze(o.ledger.calendar, in), nil
}

func (o *Oversight) Report(ctx context.Context, loc LocationID, s shift.ID, opts ReportOptions) ([]ReportRow, error) {
	in, err := o.ShiftData(ctx, loc, s)
	if err != nil {
		return nil, err
	}
	return BuildReport(in.Snapshot, in.Movements, in.Reconciliations, opts), nil
}

// Locations lists every location with a label record.
func (o *Oversight) Locations(ctx context.Context) ([]LocationID, error) {
	locs, err := o.ledger.store.ListLocations(ctx)
	if err != nil {
		return nil, upstream("list locations", err)
	}
	return locs, nil
}
