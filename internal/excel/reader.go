package excel

// reader.go reads a workbook into typed row values. Only the first worksheet
// is ever read. Row 1 optionally holds headers; unmatched mapping columns are
// simply absent from the parsed rows (required ones surface per-row errors).
//
// File-level failures (unreadable stream, missing worksheet) are recorded as a
// single structural error on the result rather than returned as a Go error:
// callers always get a usable Result back from a read.

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ReadAll reads every data row of the first worksheet into one Result. A row
// is included in Data only if it had at least one non-blank cell and carries
// no Critical-severity error; blank rows are skipped and surfaced in metadata.
func ReadAll[T any](r io.Reader, m Mapping[T], hasHeader bool) *Result[T] {
	start := time.Now()
	res := NewResult[T]()
	defer func() {
		res.ProcessingTime = time.Since(start)
	}()

	f, err := excelize.OpenReader(r)
	if err != nil {
		res.Errors = append(res.Errors, structuralError(CodeFileFormatError, fmt.Sprintf("cannot open workbook: %v", err)))
		return res
	}
	defer f.Close()

	sheet, rows, serr := firstSheetRows(f)
	if serr != nil {
		res.Errors = append(res.Errors, *serr)
		return res
	}

	res.Metadata["worksheet"] = sheet
	dataStart := 0
	var headers []string
	if hasHeader {
		if len(rows) == 0 {
			return res
		}
		headers = rows[0]
		dataStart = 1
	}
	res.Metadata["column_count"] = len(headers)

	colIdx := m.columnIndex(headers, hasHeader)

	blank := 0
	for i, row := range rows[dataStart:] {
		rowNum := dataStart + i + 1 // 1-based sheet row

		if isBlankRow(row) {
			blank++
			continue
		}
		res.TotalRows++

		item, errs := bindRow(m, colIdx, row, rowNum)
		res.Errors = append(res.Errors, errs...)
		if HasCritical(errs) {
			continue
		}
		res.Data = append(res.Data, item)
	}

	res.Metadata["blank_rows"] = blank
	res.Recount()
	return res
}

// bindRow builds one T from a sheet row. Every mapped column with a Parse
// func reads the cell's trimmed text and assigns it; blanks on required
// columns and failed conversions become row errors. A panic while processing
// the row is recovered into a FILE_FORMAT_ERROR for that row only.
func bindRow[T any](m Mapping[T], colIdx []int, row []string, rowNum int) (item T, errs []RowError) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("row processing panic", "row", rowNum, "panic", rec)
			errs = append(errs, RowError{
				Row:      rowNum,
				Message:  fmt.Sprintf("row could not be processed: %v", rec),
				Code:     CodeFileFormatError,
				Severity: SeverityError,
			})
		}
	}()

	for ci, col := range m {
		if col.Parse == nil {
			continue
		}

		severity := SeverityError
		if col.Critical {
			severity = SeverityCritical
		}

		raw := ""
		if pos := colIdx[ci]; pos >= 0 && pos < len(row) {
			raw = strings.TrimSpace(row[pos])
		}

		if raw == "" {
			if col.Required {
				errs = append(errs, RowError{
					Row:      rowNum,
					Column:   col.Header,
					Message:  fmt.Sprintf("required field %q is missing", col.Header),
					Code:     CodeRequiredFieldMissing,
					Severity: severity,
				})
			}
			continue
		}

		if err := col.Parse(&item, raw); err != nil {
			errs = append(errs, RowError{
				Row:      rowNum,
				Column:   col.Header,
				Message:  err.Error(),
				Code:     CodeInvalidDataType,
				Severity: severity,
				RawValue: raw,
			})
		}
	}

	if setter, ok := any(&item).(RowNumberSetter); ok {
		setter.SetRowNumber(rowNum)
	}
	return item, errs
}

// firstSheetRows loads all rows of the first worksheet, or a structural error
// when the workbook has none.
func firstSheetRows(f *excelize.File) (string, [][]string, *RowError) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		e := structuralError(CodeWorksheetNotFound, "workbook contains no worksheets")
		return "", nil, &e
	}

	sheet := sheets[0]
	rows, err := f.GetRows(sheet)
	if err != nil {
		e := structuralError(CodeFileFormatError, fmt.Sprintf("cannot read worksheet %q: %v", sheet, err))
		return sheet, nil, &e
	}
	return sheet, rows, nil
}

func structuralError(code ErrorCode, msg string) RowError {
	return RowError{Message: msg, Code: code, Severity: SeverityCritical}
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
