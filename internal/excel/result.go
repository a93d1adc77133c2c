// Package excel provides generic typed spreadsheet read/write/validate
// operations without entity-specific knowledge. Entity services layer their
// column mappings and business rules on top of it.
package excel

import (
	"fmt"
	"time"
)

// Severity classifies how serious a row error is.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ErrorCode identifies the category of a row error.
type ErrorCode string

const (
	CodeWorksheetNotFound    ErrorCode = "WORKSHEET_NOT_FOUND"
	CodeFileFormatError      ErrorCode = "FILE_FORMAT_ERROR"
	CodeFileTooLarge         ErrorCode = "FILE_TOO_LARGE"
	CodeRequiredFieldMissing ErrorCode = "REQUIRED_FIELD_MISSING"
	CodeInvalidDataType      ErrorCode = "INVALID_DATA_TYPE"
	CodeDuplicateValue       ErrorCode = "DUPLICATE_VALUE"
	CodeForeignKeyNotFound   ErrorCode = "FOREIGN_KEY_NOT_FOUND"
	CodeInvalidValue         ErrorCode = "INVALID_VALUE"
	CodeBusinessRule         ErrorCode = "BUSINESS_RULE_VIOLATION"
)

// RowError is a structured validation or parsing failure tied to a specific
// spreadsheet row and, optionally, a column. RowErrors are values; they are
// never mutated after creation.
type RowError struct {
	Row      int
	Column   string
	Message  string
	Code     ErrorCode
	Severity Severity
	RawValue string
}

// Error implements the error interface.
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// HasCritical reports whether any error in the list carries Critical severity.
// This is the single validity predicate used everywhere a "did the import
// succeed" decision is made.
func HasCritical(errs []RowError) bool {
	for _, e := range errs {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// CriticalRows returns the set of row numbers carrying at least one
// Critical-severity error. Rows in this set must never be persisted.
func CriticalRows(errs []RowError) map[int]bool {
	rows := make(map[int]bool)
	for _, e := range errs {
		if e.Severity == SeverityCritical {
			rows[e.Row] = true
		}
	}
	return rows
}

// Result holds the outcome of a read or import: the parsed rows, the ordered
// error list, and derived counters. It is mutated during row processing and
// business validation, then treated as immutable once returned to the caller.
type Result[T any] struct {
	Data   []T
	Errors []RowError

	TotalRows      int
	SuccessRows    int
	ErrorRows      int
	ProcessingTime time.Duration

	// Metadata carries free-form diagnostics such as the detected worksheet
	// name, column count, and the import run ID.
	Metadata map[string]any
}

// NewResult returns an empty result ready to accumulate rows and errors.
func NewResult[T any]() *Result[T] {
	return &Result[T]{Metadata: make(map[string]any)}
}

// OK reports whether the result is free of Critical errors.
func (r *Result[T]) OK() bool {
	return !HasCritical(r.Errors)
}

// Recount recomputes SuccessRows and ErrorRows from the final error list.
// A row counts as an error row if it carries any error of Error severity or
// above; warnings alone leave a row successful.
func (r *Result[T]) Recount() {
	bad := make(map[int]bool)
	for _, e := range r.Errors {
		if e.Severity >= SeverityError && e.Row > 0 {
			bad[e.Row] = true
		}
	}
	r.ErrorRows = len(bad)
	r.SuccessRows = r.TotalRows - r.ErrorRows
	if r.SuccessRows < 0 {
		r.SuccessRows = 0
	}
}

// Chunk is a bounded, contiguous slice of spreadsheet rows yielded by the
// chunked reader. Each chunk is independently validated and persisted by the
// caller.
type Chunk[T any] struct {
	Number   int
	StartRow int
	EndRow   int
	Last     bool
	Data     []T
	Errors   []RowError
}

// FileInfo describes the physical shape of a validated workbook.
type FileInfo struct {
	Size           int64
	RowCount       int
	ColumnCount    int
	WorksheetNames []string
}

// ValidationResult is the outcome of a structural pre-check performed before a
// full import is attempted. Missing or extra columns are warnings, never hard
// failures; Valid is false only when a structural error was recorded.
type ValidationResult struct {
	Valid           bool
	Errors          []string
	Warnings        []string
	DetectedColumns []string
	MissingColumns  []string
	ExtraColumns    []string
	File            FileInfo
}

// RowNumberSetter is implemented by row DTOs that want the engine to record
// the 1-based sheet row a value was parsed from, so later validation stages
// can key errors by row.
type RowNumberSetter interface {
	SetRowNumber(n int)
}

// ProgressFunc receives an integer percentage (0-100) after each chunk is
// produced during a chunked read.
type ProgressFunc func(percent int)
