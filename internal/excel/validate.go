package excel

// validate.go performs the structural pre-check run before a full import is
// attempted. The size limit is enforced before the workbook is opened; column
// set differences are warnings, not failures.

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultMaxFileSize caps uploads at 10 MiB unless the caller overrides it.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Validate checks a workbook's structure against an expected column set.
// maxSize <= 0 falls back to DefaultMaxFileSize.
func Validate(r io.Reader, expectedColumns []string, maxSize int64) *ValidationResult {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	res := &ValidationResult{Valid: true}

	data, err := readLimited(r, maxSize)
	if err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.File.Size = int64(len(data))

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("cannot open workbook: %v", err))
		return res
	}
	defer f.Close()

	sheets := f.GetSheetList()
	res.File.WorksheetNames = sheets
	if len(sheets) == 0 {
		res.Valid = false
		res.Errors = append(res.Errors, "workbook contains no worksheets")
		return res
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("cannot read worksheet %q: %v", sheets[0], err))
		return res
	}
	if len(rows) == 0 {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("worksheet %q is empty", sheets[0]))
		return res
	}

	res.File.RowCount = len(rows)
	res.File.ColumnCount = len(rows[0])

	detected := make(map[string]string, len(rows[0]))
	for _, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		detected[strings.ToLower(h)] = h
		res.DetectedColumns = append(res.DetectedColumns, h)
	}

	expected := make(map[string]bool, len(expectedColumns))
	for _, c := range expectedColumns {
		expected[strings.ToLower(c)] = true
	}

	// Walk the declared orders, not the lookup maps, so repeated validation
	// of the same file reports columns in the same sequence.
	for _, name := range expectedColumns {
		if _, ok := detected[strings.ToLower(name)]; !ok {
			res.MissingColumns = append(res.MissingColumns, name)
			res.Warnings = append(res.Warnings, fmt.Sprintf("expected column %q not found", name))
		}
	}
	seen := make(map[string]bool, len(res.DetectedColumns))
	for _, name := range res.DetectedColumns {
		key := strings.ToLower(name)
		if !expected[key] && !seen[key] {
			seen[key] = true
			res.ExtraColumns = append(res.ExtraColumns, name)
			res.Warnings = append(res.Warnings, fmt.Sprintf("unexpected column %q will be ignored", name))
		}
	}

	return res
}

// readLimited buffers at most max bytes and rejects longer streams without
// opening the workbook.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read stream: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("file exceeds the %d byte size limit", max)
	}
	return data, nil
}
