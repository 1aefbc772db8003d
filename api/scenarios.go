/*
scenarios.go - Demo shift loaders for training and demonstrations

PURPOSE:

	Provides pre-built shifts that populate a location with realistic
	activity so new managers can see the oversight screen, the report and
	the alerts without waiting for a real night of service. Each scenario
	goes through the same ledger and reconciler calls a bartender would.

AVAILABLE SCENARIOS:

	clean-shift:   Bottles received, weighed and poured, shift closed on target
	missing-proof: Corrections without photos and an unset opening weight
	mismatch:      Closing weight well below what the ledger expects

HOW SCENARIOS WORK:
 1. Pick the first label of the first two catalog categories
 2. Receive bottles with fresh barcodes
 3. Record weight changes, pours or corrections
 4. Optionally close the live shift for the labels it touched

USAGE VIA API:

	POST /api/scenarios/load?location=demo
	{"scenario_id": "mismatch"}

NOTE:

	The ledger is append-only so nothing is reset. Loading the same
	closing scenario twice in one shift fails with 409 because the labels
	are already reconciled. Point demos at a dedicated location.

SEE ALSO:
  - handlers.go: Ledger and reconciler endpoints used by real clients
  - inventory/alerts.go: What each scenario is expected to trigger
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/barstock/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "clean-shift",
		Name:        "Clean Shift",
		Description: "Two labels received, weighed and poured; closed on target",
	},
	{
		ID:          "missing-proof",
		Name:        "Missing Proof",
		Description: "Weight correction without a photo and no opening weight",
	},
	{
		ID:          "mismatch",
		Name:        "Closing Mismatch",
		Description: "Closing weight 120 below the ledger, outside tolerance",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario plays a predefined shift into the caller's location.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body LoadScenarioBody
	if !h.decode(w, r, &body) {
		return
	}

	labels, err := h.demoLabels()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s := scenarioRun{h: h, loc: loc, actor: id.Actor, proof: "demo://evidence/" + body.ScenarioID, batch: time.Now().UnixNano()}

	ctx := r.Context()
	switch body.ScenarioID {
	case "clean-shift":
		err = s.cleanShift(ctx, labels[0], labels[1])
	case "missing-proof":
		err = s.missingProof(ctx, labels[0])
	case "mismatch":
		err = s.mismatch(ctx, labels[0])
	default:
		writeDomainError(w, r, &inventory.ValidationError{Field: "scenario_id", Message: "unknown scenario " + body.ScenarioID})
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	requestLog(r).WithField("scenario", body.ScenarioID).WithField("location", loc).Info("scenario loaded")
	writeJSON(w, http.StatusOK, ScenarioResultDTO{
		Scenario: body.ScenarioID,
		Location: loc,
		Shift:    h.Oversight.CurrentShift(),
		Labels:   labels,
	})
}

func (h *Handler) demoLabels() ([]string, error) {
	var labels []string
	for _, c := range h.Catalog.Categories() {
		if len(c.Labels) > 0 {
			labels = append(labels, c.Labels[0])
		}
		if len(labels) == 2 {
			return labels, nil
		}
	}
	return nil, &inventory.ValidationError{Field: "catalog", Message: "demo scenarios need two categories with labels"}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type scenarioRun struct {
	h     *Handler
	loc   inventory.LocationID
	actor inventory.ActorID
	proof string
	batch int64
}

func (s scenarioRun) unitIDs(label string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("DEMO-%d-%s-%d", s.batch, label, i+1)
	}
	return ids
}

func (s scenarioRun) receive(ctx context.Context, label string, n int, weight int64) ([]string, error) {
	ids := s.unitIDs(label, n)
	_, err := s.h.Ledger.Receive(ctx, inventory.ReceiveRequest{
		Location:   s.loc,
		Label:      label,
		Quantity:   n,
		UnitWeight: decimal.NewFromInt(weight),
		UnitIDs:    ids,
		ProofURL:   s.proof,
		Actor:      s.actor,
	})
	return ids, err
}

func (s scenarioRun) weigh(ctx context.Context, label, unit string, weight int64) error {
	_, err := s.h.Ledger.RecordWeightChange(ctx, inventory.WeightChangeRequest{
		Location:  s.loc,
		Label:     label,
		UnitID:    unit,
		NewWeight: decimal.NewFromInt(weight),
		ProofURL:  s.proof,
		Actor:     s.actor,
	})
	return err
}

// closeShift closes labels at their current weight plus offset.
func (s scenarioRun) closeShift(ctx context.Context, labels []string, offset map[string]int64) error {
	closures := make([]inventory.Closure, 0, len(labels))
	for _, label := range labels {
		rec, err := s.h.Ledger.Label(ctx, s.loc, label)
		if err != nil {
			return err
		}
		weight := rec.TotalWeight().Add(decimal.NewFromInt(offset[label]))
		closures = append(closures, inventory.Closure{
			Label:         label,
			ClosingWeight: decimal.NewNullDecimal(weight),
			ProofURL:      s.proof,
		})
	}
	_, err := s.h.Reconciler.CloseShift(ctx, inventory.CloseShiftRequest{
		Location: s.loc,
		Shift:    s.h.Oversight.CurrentShift(),
		Actor:    s.actor,
		Closures: closures,
	})
	return err
}

func (s scenarioRun) cleanShift(ctx context.Context, a, b string) error {
	aIDs, err := s.receive(ctx, a, 2, 1000)
	if err != nil {
		return err
	}
	bIDs, err := s.receive(ctx, b, 1, 700)
	if err != nil {
		return err
	}
	if err := s.weigh(ctx, a, aIDs[0], 850); err != nil {
		return err
	}
	_, err = s.h.Ledger.RecordPour(ctx, inventory.PourRequest{
		Location: s.loc,
		Lines: []inventory.PourLine{
			{Label: a, UnitID: aIDs[1], NewWeight: decimal.NewFromInt(955)},
			{Label: b, UnitID: bIDs[0], NewWeight: decimal.NewFromInt(670)},
		},
		ProofURL: s.proof,
		Actor:    s.actor,
	})
	if err != nil {
		return err
	}
	return s.closeShift(ctx, []string{a, b}, nil)
}

func (s scenarioRun) missingProof(ctx context.Context, a string) error {
	ids, err := s.receive(ctx, a, 1, 1000)
	if err != nil {
		return err
	}
	_, err = s.h.Ledger.CorrectWeight(ctx, inventory.WeightChangeRequest{
		Location:  s.loc,
		Label:     a,
		UnitID:    ids[0],
		NewWeight: decimal.NewFromInt(1100),
		Actor:     s.actor,
	})
	return err
}

func (s scenarioRun) mismatch(ctx context.Context, a string) error {
	ids, err := s.receive(ctx, a, 2, 1000)
	if err != nil {
		return err
	}
	if err := s.weigh(ctx, a, ids[0], 800); err != nil {
		return err
	}
	return s.closeShift(ctx, []string{a}, map[string]int64{a: -120})
}
