package medication

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Medications"

var reportHeader = []string{"Status", "Medicament", "Dosage", "Frequency", "Start date", "End date", "Notes"}

var reportColumnWidths = []float64{16, 28, 16, 20, 12, 12, 40}

// ReportXLSX renders r as a single-sheet workbook.
func ReportXLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range reportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(reportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(reportSheet, col, col, reportColumnWidths[i]); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(reportHeader), 1)
	if err := f.SetCellStyle(reportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	row := 2
	for _, group := range []struct {
		status  Status
		records []*PatientMedication
	}{
		{StatusActive, r.Active},
		{StatusPlanned, r.Planned},
		{StatusEnded, r.Ended},
	} {
		for _, rec := range group.records {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			values := []any{
				string(group.status),
				rec.MedicamentName,
				rec.Dosage,
				rec.Frequency,
				formatDate(&rec.StartDate),
				formatDate(rec.EndDate),
				deref(rec.Notes),
			}
			if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
