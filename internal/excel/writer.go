package excel

// writer.go emits workbooks: one header row from the mapping's display
// values, then one row per item in mapping iteration order. Styling is
// cosmetic and not part of the functional contract. Writing has no
// partial-result concept, so unexpected failures surface as wrapped errors.

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// WriteAll writes data to a single-worksheet workbook. Empty data still emits
// the header row.
func WriteAll[T any](data []T, m Mapping[T], sheetName string) ([]byte, error) {
	f, err := newSheet(m, sheetName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i := range data {
		for ci, col := range m {
			cell, err := excelize.CoordinatesToCellName(ci+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("create excel file: %w", err)
			}
			var v any
			if col.Value != nil {
				v = cellValue(col.Value(&data[i]))
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("create excel file: %w", err)
			}
		}
	}

	return workbookBytes(f)
}

// CreateTemplate writes a workbook with headers only, or with one
// illustrative example row per column when includeExample is set. Example
// content is a placeholder, not representative data.
func CreateTemplate[T any](m Mapping[T], sheetName string, includeExample bool) ([]byte, error) {
	f, err := newSheet(m, sheetName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if includeExample {
		exampleStyle, err := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Italic: true, Color: "808080"},
		})
		if err != nil {
			return nil, fmt.Errorf("create excel file: %w", err)
		}
		for ci, col := range m {
			cell, err := excelize.CoordinatesToCellName(ci+1, 2)
			if err != nil {
				return nil, fmt.Errorf("create excel file: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, col.Example); err != nil {
				return nil, fmt.Errorf("create excel file: %w", err)
			}
			if err := f.SetCellStyle(sheetName, cell, cell, exampleStyle); err != nil {
				return nil, fmt.Errorf("create excel file: %w", err)
			}
		}
	}

	return workbookBytes(f)
}

// newSheet creates a workbook with one named sheet and a styled header row.
func newSheet[T any](m Mapping[T], sheetName string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("create excel file: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create excel file: %w", err)
	}

	for ci, col := range m {
		cell, err := excelize.CoordinatesToCellName(ci+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create excel file: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, col.Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("create excel file: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("create excel file: %w", err)
		}

		width := float64(len(col.Header)) + 6
		if width < 12 {
			width = 12
		}
		colName, err := excelize.ColumnNumberToName(ci + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create excel file: %w", err)
		}
		if err := f.SetColWidth(sheetName, colName, colName, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("create excel file: %w", err)
		}
	}

	return f, nil
}

func workbookBytes(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("create excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue normalizes values whose native excelize rendering would not
// round-trip through the engine's parsers.
func cellValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		return t.String()
	case *decimal.Decimal:
		if t == nil {
			return ""
		}
		return t.String()
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	case *int64:
		if t == nil {
			return ""
		}
		return *t
	default:
		return v
	}
}
