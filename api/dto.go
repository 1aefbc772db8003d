/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the inventory model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Body: Request body types from clients

VALIDATION:
  Shape checks (required fields, minimums, URL syntax) live in `validate`
  struct tags and run before the domain call. Business rules (duplicate
  barcodes, proof required, weights non-negative) stay in the inventory
  package so every caller gets them.

WEIGHTS:
  decimal.Decimal values are serialized as JSON strings ("1850.5") and
  accepted as strings or numbers.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/shift"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

type ReceiveBody struct {
	Quantity   int              `json:"quantity" validate:"required,min=1"`
	UnitWeight *decimal.Decimal `json:"unit_weight" validate:"required"`
	UnitIDs    []string         `json:"unit_ids" validate:"required,min=1,dive,required"`
	ProofURL   string           `json:"proof_url" validate:"omitempty,url"`
}

// RetireBody retires Quantity units from the tail, or the single UnitID.
type RetireBody struct {
	Quantity int    `json:"quantity" validate:"min=0"`
	UnitID   string `json:"unit_id"`
	ProofURL string `json:"proof_url" validate:"omitempty,url"`
}

type WeightBody struct {
	NewWeight *decimal.Decimal `json:"new_weight" validate:"required"`
	ProofURL  string           `json:"proof_url" validate:"omitempty,url"`
}

type PourLineBody struct {
	Label     string           `json:"label" validate:"required"`
	UnitID    string           `json:"unit_id"`
	NewWeight *decimal.Decimal `json:"new_weight" validate:"required"`
}

type PourBody struct {
	Lines    []PourLineBody `json:"lines" validate:"required,min=1,dive"`
	ProofURL string         `json:"proof_url" validate:"omitempty,url"`
}

type OpeningWeightBody struct {
	Weight *decimal.Decimal `json:"weight" validate:"required"`
}

type ActiveBody struct {
	Active *bool `json:"active" validate:"required"`
}

// ClosureBody is one label's closing weight. ClosingWeight is left to the
// domain so "missing" and "negative" get the same messages as every caller.
type ClosureBody struct {
	Label         string           `json:"label" validate:"required"`
	ClosingWeight *decimal.Decimal `json:"closing_weight"`
	ProofURL      string           `json:"proof_url" validate:"omitempty,url"`
}

type CloseShiftBody struct {
	Closures []ClosureBody `json:"closures" validate:"dive"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type UnitDTO struct {
	ID        string          `json:"id"`
	Weight    decimal.Decimal `json:"weight"`
	CreatedAt time.Time       `json:"created_at"`
}

type LabelDTO struct {
	Location      inventory.LocationID `json:"location"`
	Name          string               `json:"name"`
	Category      string               `json:"category"`
	Active        bool                 `json:"active"`
	Quantity      int                  `json:"quantity"`
	TotalWeight   decimal.Decimal      `json:"total_weight"`
	OpeningWeight decimal.Decimal      `json:"opening_weight"`
	Units         []UnitDTO            `json:"units"`
	Version       int64                `json:"version"`
	UpdatedAt     *time.Time           `json:"updated_at,omitempty"`
}

type MovementDTO struct {
	ID            string               `json:"id"`
	Seq           int64                `json:"seq"`
	Location      inventory.LocationID `json:"location"`
	Label         string               `json:"label"`
	Category      string               `json:"category"`
	Kind          inventory.ActionKind `json:"kind"`
	Actor         inventory.ActorID    `json:"actor"`
	ProofURL      string               `json:"proof_url,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
	Shift         shift.ID             `json:"shift"`
	QuantityDelta int                  `json:"quantity_delta"`
	UnitID        string               `json:"unit_id,omitempty"`
	UnitIDs       []string             `json:"unit_ids,omitempty"`
	WeightBefore  *decimal.Decimal     `json:"weight_before,omitempty"`
	WeightAfter   *decimal.Decimal     `json:"weight_after,omitempty"`
	TotalAfter    decimal.Decimal      `json:"total_after"`
	BatchID       string               `json:"batch_id,omitempty"`
	BatchLabels   []string             `json:"batch_labels,omitempty"`
}

type WeightChangeDTO struct {
	Previous decimal.Decimal `json:"previous"`
	New      decimal.Decimal `json:"new"`
	Delta    decimal.Decimal `json:"delta"`
	Logged   bool            `json:"logged"`
	Movement *MovementDTO    `json:"movement,omitempty"`
}

type PourResultDTO struct {
	Label  string          `json:"label"`
	UnitID string          `json:"unit_id"`
	Delta  decimal.Decimal `json:"delta"`
}

type ReconciliationDTO struct {
	ID             string               `json:"id"`
	Location       inventory.LocationID `json:"location"`
	Label          string               `json:"label"`
	Category       string               `json:"category"`
	Shift          shift.ID             `json:"shift"`
	ClosingWeight  decimal.Decimal      `json:"closing_weight"`
	ExpectedWeight decimal.Decimal      `json:"expected_weight"`
	Difference     decimal.Decimal      `json:"difference"`
	Mismatch       bool                 `json:"mismatch"`
	ProofURL       string               `json:"proof_url"`
	Actor          inventory.ActorID    `json:"actor"`
	Timestamp      time.Time            `json:"timestamp"`
}

type AlertDTO struct {
	Kind       inventory.AlertKind `json:"kind"`
	Severity   inventory.Severity  `json:"severity"`
	Message    string              `json:"message"`
	Label      string              `json:"label,omitempty"`
	MovementID string              `json:"movement_id,omitempty"`
}

type ReportRowDTO struct {
	Label          string                `json:"label"`
	Category       string                `json:"category"`
	OpeningWeight  decimal.Decimal       `json:"opening_weight"`
	ClosingWeight  *decimal.Decimal      `json:"closing_weight"`
	ExpectedWeight decimal.Decimal       `json:"expected_weight"`
	Consumption    decimal.Decimal       `json:"consumption"`
	Servings       decimal.Decimal       `json:"servings"`
	ServingUnit    inventory.ServingUnit `json:"serving_unit"`
	Mismatch       bool                  `json:"mismatch"`
	ProofURL       string                `json:"proof_url,omitempty"`
}

type ShiftDTO struct {
	ID    shift.ID  `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type VerifyDTO struct {
	Label            string   `json:"label"`
	StoredQuantity   int      `json:"stored_quantity"`
	ReplayedQuantity int      `json:"replayed_quantity"`
	OK               bool     `json:"ok"`
	Differences      []string `json:"differences"`
}

type EvidenceDTO struct {
	URL string `json:"url"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioBody struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ScenarioResultDTO struct {
	Scenario string               `json:"scenario"`
	Location inventory.LocationID `json:"location"`
	Shift    shift.ID             `json:"shift"`
	Labels   []string             `json:"labels"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Field   string            `json:"field,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Missing []string          `json:"missing,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLabelDTO(r *inventory.LabelRecord) LabelDTO {
	dto := LabelDTO{
		Location:      r.Location,
		Name:          r.Name,
		Category:      r.Category,
		Active:        r.Active,
		Quantity:      r.Quantity(),
		TotalWeight:   r.TotalWeight(),
		OpeningWeight: r.OpeningWeight,
		Units:         make([]UnitDTO, len(r.Units)),
		Version:       r.Version,
	}
	for i, u := range r.Units {
		dto.Units[i] = UnitDTO{ID: u.ID, Weight: u.Weight, CreatedAt: u.CreatedAt}
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		dto.UpdatedAt = &t
	}
	return dto
}

func toMovementDTO(m inventory.Movement) MovementDTO {
	dto := MovementDTO{
		ID:            m.ID,
		Seq:           m.Seq,
		Location:      m.Location,
		Label:         m.Label,
		Category:      m.Category,
		Kind:          m.Kind(),
		Actor:         m.Actor,
		ProofURL:      m.ProofURL,
		Timestamp:     m.Timestamp,
		Shift:         m.Shift,
		QuantityDelta: m.QuantityDelta(),
		UnitID:        m.UnitID(),
		WeightBefore:  m.WeightBefore(),
		WeightAfter:   m.WeightAfter(),
		TotalAfter:    m.TotalAfter,
	}
	switch d := m.Detail.(type) {
	case inventory.Receive:
		dto.UnitIDs = d.UnitIDs
	case inventory.Retire:
		dto.UnitIDs = d.UnitIDs
	case inventory.Pour:
		dto.BatchID = d.BatchID
		dto.BatchLabels = d.BatchLabels
	}
	return dto
}

func toMovementDTOs(ms []inventory.Movement) []MovementDTO {
	out := make([]MovementDTO, len(ms))
	for i, m := range ms {
		out[i] = toMovementDTO(m)
	}
	return out
}

func toReconciliationDTO(r inventory.ReconciliationRecord) ReconciliationDTO {
	return ReconciliationDTO{
		ID:             r.ID,
		Location:       r.Location,
		Label:          r.Label,
		Category:       r.Category,
		Shift:          r.Shift,
		ClosingWeight:  r.ClosingWeight,
		ExpectedWeight: r.ExpectedWeight,
		Difference:     r.Difference,
		Mismatch:       r.Mismatch,
		ProofURL:       r.ProofURL,
		Actor:          r.Actor,
		Timestamp:      r.Timestamp,
	}
}

func toReconciliationDTOs(recs []inventory.ReconciliationRecord) []ReconciliationDTO {
	out := make([]ReconciliationDTO, len(recs))
	for i, r := range recs {
		out[i] = toReconciliationDTO(r)
	}
	return out
}

func toAlertDTOs(alerts []inventory.Alert) []AlertDTO {
	out := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		out[i] = AlertDTO{Kind: a.Kind, Severity: a.Severity, Message: a.Message, Label: a.Label, MovementID: a.MovementID}
	}
	return out
}

func toReportRowDTOs(rows []inventory.ReportRow) []ReportRowDTO {
	out := make([]ReportRowDTO, len(rows))
	for i, r := range rows {
		out[i] = ReportRowDTO{
			Label:          r.Label,
			Category:       r.Category,
			OpeningWeight:  r.OpeningWeight,
			ExpectedWeight: r.ExpectedWeight,
			Consumption:    r.Consumption,
			Servings:       r.Servings,
			ServingUnit:    r.ServingUnit,
			Mismatch:       r.Mismatch,
			ProofURL:       r.ProofURL,
		}
		if r.ClosingWeight.Valid {
			w := r.ClosingWeight.Decimal
			out[i].ClosingWeight = &w
		}
	}
	return out
}

func toClosure(b ClosureBody) inventory.Closure {
	c := inventory.Closure{Label: b.Label, ProofURL: b.ProofURL}
	if b.ClosingWeight != nil {
		c.ClosingWeight = decimal.NewNullDecimal(*b.ClosingWeight)
	}
	return c
}
