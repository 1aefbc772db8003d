/*
alerts.go - Advisory anomaly detection

PURPOSE:
  Derives warnings for the oversight view from a ledger snapshot, one
  shift's movements and that shift's reconciliations. Alerts are data:
  they never block an operation and Analyze never fails.

RULES (each evaluated independently, one label may trigger several):
  ZeroOpeningWeight         high    stock on hand but no opening weight
  SuspiciousWeightIncrease  high    observed weight above the opening weight
  MissingProof              medium  CONSUME or ADJUST without evidence
  NoActivity                high    live shift with no movements at all
  OutsideOperatingWindow    low     timestamp outside its own shift window
  ReconciliationMismatch    high    closing weight off by more than tolerance

ORDER:
  high, then medium, then low. Within a severity, rule order above and then
  input order.
*/
package inventory

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/barstock/shift"
)

type AlertKind string

const (
	AlertZeroOpeningWeight        AlertKind = "ZeroOpeningWeight"
	AlertSuspiciousWeightIncrease AlertKind = "SuspiciousWeightIncrease"
	AlertMissingProof             AlertKind = "MissingProof"
	AlertNoActivity               AlertKind = "NoActivity"
	AlertOutsideOperatingWindow   AlertKind = "OutsideOperatingWindow"
	AlertReconciliationMismatch   AlertKind = "ReconciliationMismatch"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	}
	return 2
}

type Alert struct {
	Kind       AlertKind
	Severity   Severity
	Message    string
	Label      string // empty for location-wide alerts
	MovementID string // set for alerts about a single movement
}

// AnalysisInput is one location's data for one shift.
type AnalysisInput struct {
	Snapshot        []LabelRecord
	Movements       []Movement
	Reconciliations []ReconciliationRecord
	Shift           shift.ID
	CurrentShift    shift.ID
}

// Analyze is pure: it reads its input and returns alerts, nothing else.
func Analyze(cal shift.Calendar, in AnalysisInput) []Alert {
	var alerts []Alert

	closing := make(map[string]decimal.Decimal, len(in.Reconciliations))
	for _, r := range in.Reconciliations {
		closing[catalogKey(r.Label)] = r.ClosingWeight
	}

	for _, rec := range in.Snapshot {
		if rec.Quantity() > 0 && rec.OpeningWeight.IsZero() {
			alerts = append(alerts, Alert{
				Kind:     AlertZeroOpeningWeight,
				Severity: SeverityHigh,
				Label:    rec.Name,
				Message:  fmt.Sprintf("%s has %d bottles in stock but no opening weight", rec.Name, rec.Quantity()),
			})
		}
	}

	for _, rec := range in.Snapshot {
		if !rec.OpeningWeight.IsPositive() {
			continue
		}
		observed, source := rec.TotalWeight(), "current weight"
		if w, ok := closing[catalogKey(rec.Name)]; ok {
			observed, source = w, "closing weight"
		}
		if observed.GreaterThan(rec.OpeningWeight) {
			alerts = append(alerts, Alert{
				Kind:     AlertSuspiciousWeightIncrease,
				Severity: SeverityHigh,
				Label:    rec.Name,
				Message: fmt.Sprintf("%s %s %s is above opening weight %s",
					rec.Name, source, observed.String(), rec.OpeningWeight.String()),
			})
		}
	}

	for _, m := range in.Movements {
		switch m.Kind() {
		case ActionConsume, ActionAdjust:
		default:
			continue
		}
		if m.ProofURL == "" {
			alerts = append(alerts, Alert{
				Kind:       AlertMissingProof,
				Severity:   SeverityMedium,
				Label:      m.Label,
				MovementID: m.ID,
				Message:    fmt.Sprintf("%s on %s (%s) has no photo evidence", m.Kind(), m.Label, m.UnitID()),
			})
		}
	}

	if in.Shift != "" && in.Shift == in.CurrentShift && len(in.Movements) == 0 {
		alerts = append(alerts, Alert{
			Kind:     AlertNoActivity,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("no inventory movements recorded in shift %s", in.Shift),
		})
	}

	for _, m := range in.Movements {
		w := cal.Window(m.Shift)
		if w.Start.IsZero() || !w.Contains(m.Timestamp) {
			alerts = append(alerts, Alert{
				Kind:       AlertOutsideOperatingWindow,
				Severity:   SeverityLow,
				Label:      m.Label,
				MovementID: m.ID,
				Message: fmt.Sprintf("%s on %s at %s is outside shift %s (%s)",
					m.Kind(), m.Label, m.Timestamp.In(w.Start.Location()).Format("2006-01-02 15:04"), m.Shift, w),
			})
		}
	}

	for _, r := range in.Reconciliations {
		if r.Mismatch {
			alerts = append(alerts, Alert{
				Kind:     AlertReconciliationMismatch,
				Severity: SeverityHigh,
				Label:    r.Label,
				Message: fmt.Sprintf("%s closed at %s, ledger expected %s (difference %s)",
					r.Label, r.ClosingWeight.String(), r.ExpectedWeight.String(), r.Difference.String()),
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.rank() < alerts[j].Severity.rank()
	})
	return alerts
}
