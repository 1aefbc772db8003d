package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/config"
	"github.com/warp/barstock/evidence"
	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/shift"
	"github.com/warp/barstock/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	bar       inventory.LocationID = "negro-amaro"
	testShift shift.ID             = "2025-03-01"
)

// Saturday 1 March 2025, 20:00 UTC: inside shift 2025-03-01.
var shiftStart = time.Date(2025, time.March, 1, 20, 0, 0, 0, time.UTC)

var testCatalog = inventory.NewStaticCatalog([]inventory.Category{
	{Name: "TEQUILA", Labels: []string{"DON JULIO 70", "TEQUILA X"}},
	{Name: "RON", Labels: []string{"HAVANA 7"}},
	{Name: "CERVEZAS", Labels: []string{"CORONA"}},
})

type testServer struct {
	router    http.Handler
	auth      *Authenticator
	handler   *Handler
	oversight *inventory.Oversight
	evidence  *evidence.Memory
	now       time.Time
	logs      *test.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	s := &testServer{now: shiftStart, logs: hook, evidence: evidence.NewMemory()}
	seq := 0
	opts := []inventory.Option{
		inventory.WithClock(func() time.Time { return s.now }),
		inventory.WithCalendar(shift.NewCalendar(time.UTC)),
		inventory.WithLogger(logger),
		inventory.WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%03d", seq) }),
	}

	store := memory.NewMemory()
	ledger := inventory.NewLedger(store, testCatalog, opts...)
	reconciler := inventory.NewReconciler(store, testCatalog, opts...)
	movements := inventory.NewMovementLog(store, testCatalog)
	s.oversight = inventory.NewOversight(ledger, movements, reconciler)

	s.handler = NewHandler(Deps{
		Ledger:      ledger,
		Movements:   movements,
		Reconciler:  reconciler,
		Oversight:   s.oversight,
		Evidence:    s.evidence,
		Catalog:     testCatalog,
		Restaurants: config.Restaurants(),
		Report:      inventory.DefaultReportOptions(),
		Logger:      logger,
	})
	s.auth = NewAuthenticator("test-secret")
	s.router = NewRouter(s.handler, s.auth, RouterOptions{Logger: logger})
	return s
}

func (s *testServer) token(t *testing.T, actor inventory.ActorID, loc inventory.LocationID, role inventory.Role) string {
	t.Helper()
	tok, err := s.auth.Issue(inventory.Identity{Actor: actor, Location: loc, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) bartender(t *testing.T) string {
	return s.token(t, "ana", bar, inventory.RoleBartender)
}

func (s *testServer) auditor(t *testing.T) string {
	return s.token(t, "luis", "", inventory.RoleAuditor)
}

// do sends a request. A string body is sent as is, anything else as JSON.
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func labelPath(label, suffix string) string {
	return "/api/labels/" + url.PathEscape(label) + suffix
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got.String())
}

// receive stocks label with one bottle per id.
func (s *testServer) receive(t *testing.T, token, label string, weight int, ids ...string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, labelPath(label, "/receive"), token, map[string]any{
		"quantity":    len(ids),
		"unit_weight": weight,
		"unit_ids":    ids,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) weigh(t *testing.T, token, label, unit string, weight int) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, labelPath(label, "/units/"+url.PathEscape(unit)+"/weight"), token, map[string]any{
		"new_weight": weight,
		"proof_url":  "https://evidence.test/" + unit,
	})
}
