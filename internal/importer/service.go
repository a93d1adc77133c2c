// Package importer wires the spreadsheet engine to the storefront entities.
// One service per entity (Category, Customer, Order, Product) wraps the engine
// with entity column mappings, cross-row business validation, statistics, and
// transactional persistence through a repository the service declares itself.
//
// All four services follow the same skeleton: batch-resolve cross-entity
// references once per call, batch-compute uniqueness violations once, walk the
// rows attaching precomputed violations plus each row's own rule output, then
// recompute aggregate counts from the final error list.
package importer

import (
	"time"

	"github.com/google/uuid"

	"github.com/storekit/excelport/internal/excel"
)

// ExportOptions narrows the exported column set. Names match mapping fields or
// headers case-insensitively; Exclude wins over Include.
type ExportOptions struct {
	Include []string
	Exclude []string
}

// Estimated processing cost per data row, by entity. Used only for the
// up-front estimate in import statistics, never measured.
const (
	categoryRowCost = 2 * time.Millisecond
	customerRowCost = 2 * time.Millisecond
	orderRowCost    = 5 * time.Millisecond
	productRowCost  = 3 * time.Millisecond
)

// newRunID tags one import/export call for log correlation and result
// metadata.
func newRunID() string {
	return uuid.NewString()
}

// chunkResult lifts one engine chunk into a standalone result so batched
// imports share the validation and persistence path of full imports.
func chunkResult[T any](c *excel.Chunk[T]) *excel.Result[T] {
	res := excel.NewResult[T]()
	res.Data = c.Data
	res.Errors = c.Errors
	res.TotalRows = len(c.Data) + len(excel.CriticalRows(c.Errors))
	res.Metadata["chunk"] = c.Number
	res.Metadata["start_row"] = c.StartRow
	res.Metadata["end_row"] = c.EndRow
	res.Metadata["last_chunk"] = c.Last
	res.Recount()
	return res
}

// errorRowSet returns the rows carrying any error of Error severity or above.
// Persistence skips these rows: a row that failed validation is returned to
// the caller for correction, never written to storage.
func errorRowSet(errs []excel.RowError) map[int]bool {
	rows := make(map[int]bool)
	for _, e := range errs {
		if e.Severity >= excel.SeverityError && e.Row > 0 {
			rows[e.Row] = true
		}
	}
	return rows
}

// businessError builds the standard cross-row violation error.
func businessError(row int, column, message string, code excel.ErrorCode) excel.RowError {
	return excel.RowError{
		Row:      row,
		Column:   column,
		Message:  message,
		Code:     code,
		Severity: excel.SeverityError,
	}
}

// ruleErrors converts a row's own Validate() output into row errors.
func ruleErrors(row int, violations []string) []excel.RowError {
	if len(violations) == 0 {
		return nil
	}
	out := make([]excel.RowError, 0, len(violations))
	for _, v := range violations {
		out = append(out, excel.RowError{
			Row:      row,
			Message:  v,
			Code:     excel.CodeBusinessRule,
			Severity: excel.SeverityError,
		})
	}
	return out
}
