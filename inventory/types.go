/*
Package inventory is the shift-based bottle ledger and reconciliation engine.

PURPOSE:
  Tracks every physical bottle of every label at every location, records
  each state change as an immutable movement, and verifies the ledger
  against physically weighed bottles when a shift closes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Unit: one physical bottle, identified by an operator-entered barcode
  - LabelRecord: per (location, label) aggregate owning its units
  - Identity: who is acting and for which location

DESIGN PRINCIPLES:
  1. Append-only log: movements are never edited, corrections are new movements
  2. Ledger then log: a movement is only visible once its ledger write committed
  3. Precision: weights use decimal.Decimal, the unit (grams or ounces) is the caller's
  4. Owned aggregates: units are only mutated through Ledger operations

SEE ALSO:
  - movement.go: Movement envelope and its per-action details
  - ledger.go: Receive / Retire / RecordWeightChange / RecordPour
  - reconcile.go: end-of-shift workflow
  - alerts.go: advisory anomaly detection
*/
package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LocationID string
type ActorID string

// =============================================================================
// UNIT - One physical bottle
// =============================================================================

// Unit is one real bottle of a label. ID is immutable once assigned.
type Unit struct {
	ID        string
	Weight    decimal.Decimal
	CreatedAt time.Time
}

// =============================================================================
// LABEL RECORD - Per (location, label) aggregate
// =============================================================================

// LabelRecord owns the active units of one label at one location.
//
// INVARIANTS:
//   - Quantity() == len(Units); retired units are gone from Units.
//   - Unit IDs are unique within Units, compared case-insensitively.
//   - Quantity() > 0 with a zero OpeningWeight is an anomaly, not an error.
type LabelRecord struct {
	Location      LocationID
	Name          string
	Category      string
	Active        bool
	Units         []Unit
	OpeningWeight decimal.Decimal

	// Version is bumped by the store on every committed change.
	Version   int64
	UpdatedAt time.Time
}

func (r LabelRecord) Quantity() int { return len(r.Units) }

func (r LabelRecord) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, u := range r.Units {
		total = total.Add(u.Weight)
	}
	return total
}

// FindUnit returns the index of the unit with the given id, or -1.
func (r LabelRecord) FindUnit(id string) int {
	id = strings.TrimSpace(id)
	for i, u := range r.Units {
		if strings.EqualFold(u.ID, id) {
			return i
		}
	}
	return -1
}

// Clone returns a copy whose Units slice can be mutated freely.
func (r LabelRecord) Clone() LabelRecord {
	c := r
	c.Units = append([]Unit(nil), r.Units...)
	return c
}

func newLabelRecord(loc LocationID, name, category string) LabelRecord {
	return LabelRecord{
		Location:      loc,
		Name:          name,
		Category:      category,
		Active:        true,
		OpeningWeight: decimal.Zero,
	}
}

// =============================================================================
// IDENTITY - Resolved caller
// =============================================================================

type Role string

const (
	RoleBartender Role = "bartender"
	RoleAuditor   Role = "auditor"
)

// Identity is what the identity provider resolves for a caller. A bartender
// is bound to exactly one location; an auditor may read any location.
type Identity struct {
	Actor    ActorID
	Location LocationID
	Role     Role
}

func (id Identity) IsAuditor() bool { return id.Role == RoleAuditor }

// ResolveLocation returns the location the caller may act on. An empty
// requested location means the caller's own.
func (id Identity) ResolveLocation(requested LocationID) (LocationID, error) {
	if id.Actor == "" {
		return "", &AccessDeniedError{Reason: "no authenticated actor"}
	}
	if requested == "" || requested == id.Location {
		if id.Location == "" {
			return "", &AccessDeniedError{Actor: id.Actor, Reason: "user has no assigned location"}
		}
		return id.Location, nil
	}
	if id.IsAuditor() {
		return requested, nil
	}
	return "", &AccessDeniedError{Actor: id.Actor, Reason: "location " + string(requested) + " is not assigned to this user"}
}
