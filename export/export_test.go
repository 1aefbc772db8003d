package export_test

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/export"
	"github.com/warp/barstock/inventory"
	"github.com/xuri/excelize/v2"
)

func TestWrite_ReportAndAlerts(t *testing.T) {
	meta := export.Meta{Location: "negro-amaro", Shift: "2025-03-01"}
	rows := []inventory.ReportRow{
		{
			Label: "CORONA", Category: "CERVEZAS",
			Consumption: decimal.NewFromInt(4), Servings: decimal.NewFromInt(4),
			ServingUnit: inventory.ServingBottles,
		},
		{
			Label: "TEQUILA X", Category: "TEQUILA",
			OpeningWeight:  decimal.NewFromInt(2000),
			ClosingWeight:  decimal.NewNullDecimal(decimal.NewFromInt(1850)),
			ExpectedWeight: decimal.NewFromInt(1850),
			Consumption:    decimal.NewFromInt(150),
			Servings:       decimal.NewFromInt(100),
			ServingUnit:    inventory.ServingPours,
			Mismatch:       true,
			ProofURL:       "https://evidence.test/close",
		},
	}
	alerts := []inventory.Alert{
		{Kind: inventory.AlertZeroOpeningWeight, Severity: inventory.SeverityHigh, Label: "CORONA", Message: "CORONA has stock but no opening weight"},
	}

	// WHEN: written and read back
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, meta, rows, alerts))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	// THEN: one header row plus one row per label
	got, err := f.GetRows(export.ReportSheet)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Label", got[0][0])
	assert.Equal(t, "CORONA", got[1][0])
	assert.Equal(t, "", got[1][3], "unreconciled label has no closing weight")
	assert.Equal(t, "TEQUILA X", got[2][0])
	assert.Equal(t, "1850", got[2][3])
	assert.Equal(t, "YES", got[2][8])
	assert.Equal(t, "https://evidence.test/close", got[2][9])

	alertRows, err := f.GetRows(export.AlertSheet)
	require.NoError(t, err)
	require.Len(t, alertRows, 2)
	assert.Equal(t, []string{"high", "ZeroOpeningWeight", "CORONA", "CORONA has stock but no opening weight"}, alertRows[1])
}

func TestMeta_FileName(t *testing.T) {
	assert.Equal(t, "negro-amaro_2025-03-01.xlsx", export.Meta{Location: "negro-amaro", Shift: "2025-03-01"}.FileName())
}
