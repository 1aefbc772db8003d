package inventory

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ServingUnit says how Servings should be read.
type ServingUnit string

const (
	ServingBottles ServingUnit = "units"
	ServingPours   ServingUnit = "pours"
)

// ReportOptions controls how consumption is converted into servings.
// Categories in UnitCategories are counted in whole units; everything else
// in pours of PourSize.
type ReportOptions struct {
	PourSize       decimal.Decimal
	UnitCategories []string
}

func DefaultReportOptions() ReportOptions {
	return ReportOptions{
		PourSize:       decimal.NewFromFloat(1.5),
		UnitCategories: []string{"CERVEZAS", "REFRESCOS", "ENERGIZANTES", "AGUAS IMPORTADAS", "VINO ESPUMOSO"},
	}
}

func (o ReportOptions) countsUnits(category string) bool {
	for _, c := range o.UnitCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// ReportRow is one flattened line of the shift report.
type ReportRow struct {
	Label          string
	Category       string
	OpeningWeight  decimal.Decimal
	ClosingWeight  decimal.NullDecimal // null until the label is reconciled
	ExpectedWeight decimal.Decimal
	Consumption    decimal.Decimal
	Servings       decimal.Decimal
	ServingUnit    ServingUnit
	Mismatch       bool
	ProofURL       string
}

// BuildReport flattens one shift into rows, one per label that moved or was
// reconciled, ordered by category then label. Consumption is the weight
// drawn by CONSUME and POUR movements.
func BuildReport(snapshot []LabelRecord, movements []Movement, recs []ReconciliationRecord, opts ReportOptions) []ReportRow {
	if opts.PourSize.IsZero() {
		opts.PourSize = DefaultReportOptions().PourSize
	}

	rows := make(map[string]*ReportRow)
	row := func(label, category string) *ReportRow {
		key := catalogKey(label)
		r, ok := rows[key]
		if !ok {
			r = &ReportRow{Label: label, Category: category}
			rows[key] = r
		}
		return r
	}

	ms := append([]Movement(nil), movements...)
	SortChronological(ms)
	touched := make(map[string]bool)
	for _, m := range ms {
		r := row(m.Label, m.Category)
		r.Consumption = r.Consumption.Add(m.Consumed())
		// Expected follows the last non-RECEIVE movement once there is one.
		key := catalogKey(m.Label)
		if m.Kind() != ActionReceive {
			touched[key] = true
			r.ExpectedWeight = m.TotalAfter
		} else if !touched[key] {
			r.ExpectedWeight = m.TotalAfter
		}
	}
	for _, rec := range recs {
		r := row(rec.Label, rec.Category)
		r.ClosingWeight = decimal.NullDecimal{Decimal: rec.ClosingWeight, Valid: true}
		r.ExpectedWeight = rec.ExpectedWeight
		r.Mismatch = rec.Mismatch
		r.ProofURL = rec.ProofURL
	}
	for _, rec := range snapshot {
		if r, ok := rows[catalogKey(rec.Name)]; ok {
			r.OpeningWeight = rec.OpeningWeight
		}
	}

	out := make([]ReportRow, 0, len(rows))
	for _, r := range rows {
		if opts.countsUnits(r.Category) {
			r.ServingUnit = ServingBottles
			r.Servings = r.Consumption.Round(0)
		} else {
			r.ServingUnit = ServingPours
			r.Servings = r.Consumption.Div(opts.PourSize).Round(1)
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Label < out[j].Label
	})
	return out
}
