/*
handlers.go - HTTP API handlers for the bar inventory ledger

PURPOSE:
  Exposes the ledger, the reconciler and the oversight surface via REST.
  Handles HTTP request/response, JSON serialization, identity and location
  resolution, and delegates to the inventory package.

ENDPOINTS:
  Reference:
    GET    /api/catalog                          Categories and labels
    GET    /api/locations                        Known restaurants
    GET    /api/shifts/current                   Live shift and its window

  Ledger:
    GET    /api/inventory                        Snapshot of every label
    GET    /api/labels/{label}                   One label with its units
    GET    /api/labels/{label}/history           Movements, newest first
    GET    /api/labels/{label}/verify            Replay check (auditor)
    POST   /api/labels/{label}/receive           Add bottles
    POST   /api/labels/{label}/retire            Remove bottles (proof)
    POST   /api/labels/{label}/units/{unit}/weight      Weigh a bottle (proof)
    POST   /api/labels/{label}/units/{unit}/correction  Fix a weight (auditor)
    PUT    /api/labels/{label}/opening-weight    Record the opening weight
    PUT    /api/labels/{label}/active            Enable/disable (auditor)
    POST   /api/pours                            Multi-bottle drink
    POST   /api/evidence                         Upload a photo, get its URL

  Shifts ({shift} is YYYY-MM-DD or "current"):
    GET    /api/shifts/{shift}/movements
    GET    /api/shifts/{shift}/pending
    GET    /api/shifts/{shift}/reconciliations
    GET    /api/shifts/{shift}/alerts
    GET    /api/shifts/{shift}/report            ?format=xlsx for a workbook
    POST   /api/shifts/{shift}/closures          Close one label
    POST   /api/shifts/{shift}/close             Close the whole shift

  Monitor:
    GET    /api/alerts/latest                    Last background scan (auditor)

  Demo (see scenarios.go):
    GET    /api/scenarios
    POST   /api/scenarios/load                   Play a demo shift (auditor)

LOCATION:
  Bartenders act on the location in their token. Auditors may pass
  ?location= to act on or read any location.

ERROR HANDLING:
  See writeDomainError in middleware.go.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - auth.go: Bearer tokens and identity
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/config"
	"github.com/warp/barstock/export"
	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/shift"
)

// maxEvidenceBytes caps a single photo upload.
const maxEvidenceBytes = 20 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators a Handler serves.
type Deps struct {
	Ledger      *inventory.Ledger
	Movements   *inventory.MovementLog
	Reconciler  *inventory.Reconciler
	Oversight   *inventory.Oversight
	Evidence    inventory.EvidenceStore
	Catalog     inventory.Catalog
	Restaurants []config.Restaurant
	Report      inventory.ReportOptions
	Monitor     *AlertMonitor // optional
	Logger      logrus.FieldLogger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Deps
	validate *validator.Validate
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Deps: d, validate: v}
}

// =============================================================================
// REFERENCE HANDLERS
// =============================================================================

// GET /api/catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.Categories())
}

// GET /api/locations
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Restaurants)
}

// GET /api/shifts/current
func (h *Handler) GetCurrentShift(w http.ResponseWriter, r *http.Request) {
	id := h.Oversight.CurrentShift()
	win := h.Ledger.Calendar().Window(id)
	writeJSON(w, http.StatusOK, ShiftDTO{ID: id, Start: win.Start, End: win.End})
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GET /api/inventory
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	_, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	recs, err := h.Ledger.Snapshot(r.Context(), loc)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]LabelDTO, len(recs))
	for i := range recs {
		dtos[i] = toLabelDTO(&recs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GET /api/labels/{label}
func (h *Handler) GetLabel(w http.ResponseWriter, r *http.Request) {
	_, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, err := h.Ledger.Label(r.Context(), loc, labelParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabelDTO(rec))
}

// GET /api/labels/{label}/history
func (h *Handler) GetLabelHistory(w http.ResponseWriter, r *http.Request) {
	_, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	ms, err := h.Movements.QueryByLabel(r.Context(), loc, labelParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(ms))
}

// GET /api/labels/{label}/verify
func (h *Handler) VerifyLabel(w http.ResponseWriter, r *http.Request) {
	_, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	report, err := h.Ledger.Verify(r.Context(), loc, labelParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !report.OK() {
		requestLog(r).WithFields(logrus.Fields{"location": loc, "label": report.Label}).
			Warn("ledger drift detected")
	}
	writeJSON(w, http.StatusOK, VerifyDTO{
		Label:            report.Label,
		StoredQuantity:   report.StoredQuantity,
		ReplayedQuantity: report.ReplayedQuantity,
		OK:               report.OK(),
		Differences:      append([]string{}, report.Differences...),
	})
}

// POST /api/labels/{label}/receive
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body ReceiveBody
	if !h.decode(w, r, &body) {
		return
	}
	rec, err := h.Ledger.Receive(r.Context(), inventory.ReceiveRequest{
		Location:   loc,
		Label:      labelParam(r),
		Quantity:   body.Quantity,
		UnitWeight: *body.UnitWeight,
		UnitIDs:    body.UnitIDs,
		ProofURL:   body.ProofURL,
		Actor:      id.Actor,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLabelDTO(rec))
}

// POST /api/labels/{label}/retire
func (h *Handler) Retire(w http.ResponseWriter, r *http.Request) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body RetireBody
	if !h.decode(w, r, &body) {
		return
	}
	rec, err := h.Ledger.Retire(r.Context(), inventory.RetireRequest{
		Location: loc,
		Label:    labelParam(r),
		Quantity: body.Quantity,
		UnitID:   body.UnitID,
		ProofURL: body.ProofURL,
		Actor:    id.Actor,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabelDTO(rec))
}

// POST /api/labels/{label}/units/{unit}/weight
func (h *Handler) RecordWeight(w http.ResponseWriter, r *http.Request) {
	h.weight(w, r, h.Ledger.RecordWeightChange)
}

// POST /api/labels/{label}/units/{unit}/correction
func (h *Handler) CorrectWeight(w http.ResponseWriter, r *http.Request) {
	h.weight(w, r, h.Ledger.CorrectWeight)
}

type weightFunc func(context.Context, inventory.WeightChangeRequest) (inventory.WeightChangeResult, error)

func (h *Handler) weight(w http.ResponseWriter, r *http.Request, apply weightFunc) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body WeightBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := apply(r.Context(), inventory.WeightChangeRequest{
		Location:  loc,
		Label:     labelParam(r),
		UnitID:    unitParam(r),
		NewWeight: *body.NewWeight,
		ProofURL:  body.ProofURL,
		Actor:     id.Actor,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	dto := WeightChangeDTO{Previous: res.Previous, New: res.New, Delta: res.Delta, Logged: res.Logged}
	if res.Movement != nil {
		m := toMovementDTO(*res.Movement)
		dto.Movement = &m
	}
	status := http.StatusOK
	if res.Logged {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto)
}

// POST /api/pours
func (h *Handler) RecordPour(w http.ResponseWriter, r *http.Request) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body PourBody
	if !h.decode(w, r, &body) {
		return
	}
	lines := make([]inventory.PourLine, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = inventory.PourLine{Label: l.Label, UnitID: l.UnitID, NewWeight: *l.NewWeight}
	}
	results, err := h.Ledger.RecordPour(r.Context(), inventory.PourRequest{
		Location: loc,
		Lines:    lines,
		ProofURL: body.ProofURL,
		Actor:    id.Actor,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]PourResultDTO, len(results))
	for i, res := range results {
		dtos[i] = PourResultDTO{Label: res.Label, UnitID: res.UnitID, Delta: res.Delta}
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// PUT /api/labels/{label}/opening-weight
func (h *Handler) SetOpeningWeight(w http.ResponseWriter, r *http.Request) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body OpeningWeightBody
	if !h.decode(w, r, &body) {
		return
	}
	rec, err := h.Ledger.SetOpeningWeight(r.Context(), loc, labelParam(r), *body.Weight, id.Actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabelDTO(rec))
}

// PUT /api/labels/{label}/active
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body ActiveBody
	if !h.decode(w, r, &body) {
		return
	}
	rec, err := h.Ledger.SetActive(r.Context(), loc, labelParam(r), *body.Active, id.Actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabelDTO(rec))
}

// POST /api/evidence (multipart field "photo")
func (h *Handler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.caller(w, r); !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceBytes+1<<20)
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeDomainError(w, r, &inventory.ValidationError{Field: "photo", Message: "photo file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxEvidenceBytes+1))
	if err != nil {
		writeDomainError(w, r, &inventory.ValidationError{Field: "photo", Message: "could not read upload"})
		return
	}
	if len(data) > maxEvidenceBytes {
		writeDomainError(w, r, &inventory.ValidationError{Field: "photo", Message: "photo is too large"})
		return
	}

	// Generic part types are sniffed.
	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}
	u, err := h.Evidence.Upload(r.Context(), data, contentType)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EvidenceDTO{URL: u})
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// GET /api/shifts/{shift}/movements
func (h *Handler) ListShiftMovements(w http.ResponseWriter, r *http.Request) {
	_, loc, sh, ok := h.shiftCaller(w, r)
	if !ok {
		return
	}
	ms, err := h.Movements.QueryByShift(r.Context(), loc, sh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(ms))
}

// GET /api/shifts/{shift}/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	_, loc, sh, ok := h.shiftCaller(w, r)
	if !ok {
		return
	}
	labels, err := h.Reconciler.PendingLabels(r.Context(), loc, sh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, append([]string{}, labels...))
}

// GET /api/shifts/{shift}/reconciliations
func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	_, loc, sh, ok := h.shiftCaller(w, r)
	if !ok {
		return
	}
	recs, err := h.Reconciler.Reconciliations(r.Context(), loc, sh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTOs(recs))
}

// GET /api/shifts/{shift}/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	_, loc, sh, ok := h.shiftCaller(w, r)
	if !ok {
		return
	}
	alerts, err := h.Oversight.Alerts(r.Context(), loc, sh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTOs(alerts))
}

// GET /api/shifts/{shift}/report
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	_, loc, sh, ok := h.shiftCaller(w, r)
	if !ok {
		return
	}
	rows, err := h.Oversight.Report(r.Context(), loc, sh, h.Report)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") != "xlsx" {
		writeJSON(w, http.StatusOK, toReportRowDTOs(rows))
		return
	}

	alerts, err := h.Oversight.Alerts(r.Context(), loc, sh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	meta := export.Meta{Location: loc, Shift: sh}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.FileName()))
	if err := export.Write(w, meta, rows, alerts); err != nil {
		requestLog(r).WithError(err).Error("failed to write workbook")
	}
}

// POST /api/shifts/{shift}/closures
func (h *Handler) CloseLabel(w http.ResponseWriter, r *http.Request) {
	id, loc, sh, ok := h.shiftCaller(w, r)
	if !ok {
		return
	}
	var body ClosureBody
	if !h.decode(w, r, &body) {
		return
	}
	rec, err := h.Reconciler.CloseLabel(r.Context(), inventory.CloseLabelRequest{
		Location: loc,
		Shift:    sh,
		Actor:    id.Actor,
		Closure:  toClosure(body),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReconciliationDTO(*rec))
}

// POST /api/shifts/{shift}/close
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	id, loc, sh, ok := h.shiftCaller(w, r)
	if !ok {
		return
	}
	var body CloseShiftBody
	if !h.decode(w, r, &body) {
		return
	}
	closures := make([]inventory.Closure, len(body.Closures))
	for i, c := range body.Closures {
		closures[i] = toClosure(c)
	}
	recs, err := h.Reconciler.CloseShift(r.Context(), inventory.CloseShiftRequest{
		Location: loc,
		Shift:    sh,
		Actor:    id.Actor,
		Closures: closures,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReconciliationDTOs(recs))
}

// GET /api/alerts/latest
func (h *Handler) LatestAlerts(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeJSON(w, http.StatusOK, map[inventory.LocationID][]AlertDTO{})
		return
	}
	scan := h.Monitor.Latest()
	out := make(map[inventory.LocationID][]AlertDTO, len(scan))
	for loc, alerts := range scan {
		out[loc] = toAlertDTOs(alerts)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

// caller resolves the identity and the location it acts on. It writes the
// error response itself when resolution fails.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (inventory.Identity, inventory.LocationID, bool) {
	id, err := identity(r)
	if err != nil {
		writeDomainError(w, r, err)
		return id, "", false
	}
	loc, err := id.ResolveLocation(inventory.LocationID(strings.TrimSpace(r.URL.Query().Get("location"))))
	if err != nil {
		writeDomainError(w, r, err)
		return id, "", false
	}
	return id, loc, true
}

func (h *Handler) shiftCaller(w http.ResponseWriter, r *http.Request) (inventory.Identity, inventory.LocationID, shift.ID, bool) {
	id, loc, ok := h.caller(w, r)
	if !ok {
		return id, loc, "", false
	}
	raw := chi.URLParam(r, "shift")
	if raw == "current" {
		return id, loc, h.Oversight.CurrentShift(), true
	}
	sh, err := shift.ParseID(raw)
	if err != nil {
		writeDomainError(w, r, &inventory.ValidationError{Field: "shift", Message: err.Error()})
		return id, loc, "", false
	}
	return id, loc, sh, true
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeDomainError(w, r, err)
		return false
	}
	return true
}

// labelParam returns the {label} segment. Labels may contain spaces and
// slashes, so clients percent-encode them.
func labelParam(r *http.Request) string {
	raw := chi.URLParam(r, "label")
	if label, err := url.PathUnescape(raw); err == nil {
		return label
	}
	return raw
}

func unitParam(r *http.Request) string {
	raw := chi.URLParam(r, "unit")
	if unit, err := url.PathUnescape(raw); err == nil {
		return unit
	}
	return raw
}
