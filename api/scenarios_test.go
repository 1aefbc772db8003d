/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the location in the state it advertises:
	- Bottles are received with fresh barcodes
	- Closing scenarios reconcile every touched label
	- The expected alerts show up on the oversight screen
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/inventory"
)

func loadScenario(t *testing.T, s *testServer, id string, loc inventory.LocationID) ScenarioResultDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load?location="+string(loc), s.auditor(t), map[string]any{"scenario_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[ScenarioResultDTO](t, rec)
}

func alertKinds(t *testing.T, s *testServer, loc inventory.LocationID) []inventory.AlertKind {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/shifts/current/alerts?location="+string(loc), s.auditor(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var kinds []inventory.AlertKind
	for _, a := range decodeBody[[]AlertDTO](t, rec) {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/scenarios", s.bartender(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), 3)
}

func TestScenario_CleanShift(t *testing.T) {
	// GIVEN: An empty demo location
	s := newTestServer(t)

	// WHEN: Loading the clean shift
	res := loadScenario(t, s, "clean-shift", "demo")

	// THEN: Both labels are reconciled on target with no alerts
	assert.Equal(t, []string{"DON JULIO 70", "HAVANA 7"}, res.Labels)
	assert.Equal(t, testShift, res.Shift)

	rec := s.do(t, http.MethodGet, "/api/shifts/current/reconciliations?location=demo", s.auditor(t), nil)
	recs := decodeBody[[]ReconciliationDTO](t, rec)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.False(t, r.Mismatch, r.Label)
	}
	assert.Empty(t, alertKinds(t, s, "demo"))

	// AND: The caller's own location is untouched
	rec = s.do(t, http.MethodGet, "/api/inventory", s.bartender(t), nil)
	assert.Empty(t, decodeBody[[]LabelDTO](t, rec))
}

func TestScenario_MissingProof(t *testing.T) {
	s := newTestServer(t)
	loadScenario(t, s, "missing-proof", "demo")

	kinds := alertKinds(t, s, "demo")
	assert.Contains(t, kinds, inventory.AlertMissingProof)
	assert.Contains(t, kinds, inventory.AlertZeroOpeningWeight)
}

func TestScenario_Mismatch(t *testing.T) {
	// GIVEN: The mismatch scenario loaded once
	s := newTestServer(t)
	loadScenario(t, s, "mismatch", "demo")

	// THEN: The mismatch is on the oversight screen
	assert.Contains(t, alertKinds(t, s, "demo"), inventory.AlertReconciliationMismatch)

	// WHEN: It is loaded again in the same shift
	rec := s.do(t, http.MethodPost, "/api/scenarios/load?location=demo", s.auditor(t), map[string]any{"scenario_id": "mismatch"})

	// THEN: The label is already reconciled
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestLoadScenario_Rejects(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", s.bartender(t), map[string]any{"scenario_id": "clean-shift"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/scenarios/load?location=demo", s.auditor(t), map[string]any{"scenario_id": "happy-hour"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "scenario_id", decodeBody[ErrorResponse](t, rec).Field)
}
