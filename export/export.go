/*
Package export renders the shift report as an Excel workbook.

PURPOSE:
  Auditors download one workbook per (location, shift) and keep it with
  the accounting files. Sheet "Inventario" carries the report rows; sheet
  "Alertas" carries the analyzer output for the same shift.

COLUMNS (Inventario):
  Label | Category | Opening | Closing | Expected | Consumption |
  Servings | Unit | Mismatch | Proof

  Closing is blank until the label is reconciled. Weights are numeric
  cells so the sheet can be summed.

SEE ALSO:
  - inventory/report.go: BuildReport
  - api/handlers.go: GET /api/shifts/{shift}/report?format=xlsx
*/
package export

import (
	"fmt"
	"io"

	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/shift"
	"github.com/xuri/excelize/v2"
)

const (
	ReportSheet = "Inventario"
	AlertSheet  = "Alertas"

	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var reportHeader = []any{
	"Label", "Category", "Opening", "Closing", "Expected",
	"Consumption", "Servings", "Unit", "Mismatch", "Proof",
}

var alertHeader = []any{"Severity", "Kind", "Label", "Message", "Movement"}

// Meta identifies the report in the file name and title cells.
type Meta struct {
	Location inventory.LocationID
	Shift    shift.ID
}

// FileName is the suggested download name, e.g. "negro-amaro_2025-03-01.xlsx".
func (m Meta) FileName() string {
	return fmt.Sprintf("%s_%s.xlsx", m.Location, m.Shift)
}

// Workbook builds the workbook in memory. The caller closes it.
func Workbook(meta Meta, rows []inventory.ReportRow, alerts []inventory.Alert) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(AlertSheet); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := writeReport(f, bold, rows); err != nil {
		f.Close()
		return nil, fmt.Errorf("write report sheet: %w", err)
	}
	if err := writeAlerts(f, bold, alerts); err != nil {
		f.Close()
		return nil, fmt.Errorf("write alert sheet: %w", err)
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("%s %s", meta.Location, meta.Shift),
		Creator: "barstock",
	}); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, meta Meta, rows []inventory.ReportRow, alerts []inventory.Alert) error {
	f, err := Workbook(meta, rows, alerts)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeReport(f *excelize.File, header int, rows []inventory.ReportRow) error {
	if err := f.SetSheetRow(ReportSheet, "A1", &reportHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(ReportSheet, "A1", "J1", header); err != nil {
		return err
	}

	for i, r := range rows {
		var closing any
		if r.ClosingWeight.Valid {
			closing = r.ClosingWeight.Decimal.InexactFloat64()
		}
		mismatch := ""
		if r.Mismatch {
			mismatch = "YES"
		}
		values := []any{
			r.Label,
			r.Category,
			r.OpeningWeight.InexactFloat64(),
			closing,
			r.ExpectedWeight.InexactFloat64(),
			r.Consumption.InexactFloat64(),
			r.Servings.InexactFloat64(),
			string(r.ServingUnit),
			mismatch,
			r.ProofURL,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ReportSheet, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(ReportSheet, "A", "B", 24); err != nil {
		return err
	}
	return f.SetColWidth(ReportSheet, "J", "J", 48)
}

func writeAlerts(f *excelize.File, header int, alerts []inventory.Alert) error {
	if err := f.SetSheetRow(AlertSheet, "A1", &alertHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(AlertSheet, "A1", "E1", header); err != nil {
		return err
	}
	for i, a := range alerts {
		values := []any{string(a.Severity), string(a.Kind), a.Label, a.Message, a.MovementID}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(AlertSheet, cell, &values); err != nil {
			return err
		}
	}
	return f.SetColWidth(AlertSheet, "D", "D", 64)
}
