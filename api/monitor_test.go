package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/inventory"
)

func TestAlertMonitor_RunNow(t *testing.T) {
	// GIVEN: A location holding bottles with no opening weight
	s := newTestServer(t)
	s.receive(t, s.bartender(t), "DON JULIO 70", 1000, "A1")
	m := NewAlertMonitor(s.oversight, time.Minute, s.handler.Logger)

	// WHEN: A scan runs
	scan := m.RunNow(context.Background())

	// THEN: The anomaly is reported for that location and logged at warn
	require.Contains(t, scan, bar)
	var kinds []inventory.AlertKind
	for _, a := range scan[bar] {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, inventory.AlertZeroOpeningWeight)
	assert.Equal(t, scan, m.Latest())

	warned := false
	for _, e := range s.logs.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["component"] == "alert-monitor" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestAlertMonitor_ScansConfiguredLocations(t *testing.T) {
	// GIVEN: Two configured restaurants, only one of which has recorded anything
	s := newTestServer(t)
	s.receive(t, s.bartender(t), "DON JULIO 70", 1000, "A1")
	m := NewAlertMonitor(s.oversight, time.Minute, s.handler.Logger, bar, "boston", bar)

	// WHEN: A scan runs
	scan := m.RunNow(context.Background())

	// THEN: The silent restaurant is scanned and flagged for no activity
	require.Len(t, scan, 2)
	require.Len(t, scan["boston"], 1)
	assert.Equal(t, inventory.AlertNoActivity, scan["boston"][0].Kind)
	for _, a := range scan[bar] {
		assert.NotEqual(t, inventory.AlertNoActivity, a.Kind)
	}
}

func TestAlertMonitor_LatestEndpoint(t *testing.T) {
	// GIVEN: A server with a monitor that has scanned once
	s := newTestServer(t)
	s.receive(t, s.bartender(t), "HAVANA 7", 700, "H1")
	s.handler.Monitor = NewAlertMonitor(s.oversight, time.Minute, s.handler.Logger)

	rec := s.do(t, http.MethodGet, "/api/alerts/latest", s.auditor(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[map[string][]AlertDTO](t, rec))

	s.handler.Monitor.RunNow(context.Background())

	// WHEN: An auditor asks for the latest scan
	rec = s.do(t, http.MethodGet, "/api/alerts/latest", s.auditor(t), nil)

	// THEN: The location's alerts come back
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decodeBody[map[string][]AlertDTO](t, rec)
	assert.NotEmpty(t, latest[string(bar)])

	// AND: Bartenders may not read it
	rec = s.do(t, http.MethodGet, "/api/alerts/latest", s.bartender(t), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAlertMonitor_StartStop(t *testing.T) {
	s := newTestServer(t)

	disabled := NewAlertMonitor(s.oversight, 0, nil)
	assert.False(t, disabled.Enabled)
	disabled.Start()
	disabled.Stop()

	m := NewAlertMonitor(s.oversight, time.Hour, s.handler.Logger)
	m.Start()
	m.Start()
	m.Stop()
	m.Stop()
	assert.False(t, m.GetNextRunTime().IsZero())
}
