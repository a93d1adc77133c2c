package excel

// chunks.go provides the streamed reader: a forward-only, single-pass
// iterator that owns the open workbook for its lifetime and yields fixed-size
// contiguous row chunks. Each call to ReadInChunks produces a fresh iterator
// bound to its own stream; an iterator must not be shared or restarted.
// Abandoning iteration early leaves later rows unread but does not corrupt
// anything - just Close the iterator.

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// DefaultChunkSize is the row count per chunk when the caller passes none.
const DefaultChunkSize = 1000

// ChunkIterator walks a worksheet chunk by chunk. Usage:
//
//	it, err := ReadInChunks[Row](r, mapping, 1000, true, progress)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    chunk := it.Chunk()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type ChunkIterator[T any] struct {
	f       *excelize.File
	rows    *excelize.Rows
	mapping Mapping[T]
	colIdx  []int

	size      int
	progress  ProgressFunc
	totalData int

	nextRow   int // sheet row number of the next unread physical row
	processed int
	chunkNum  int

	pending      []string // lookahead row consumed while probing for Last
	pendingValid bool

	cur    *Chunk[T]
	err    error
	done   bool
	closed bool
}

// ReadInChunks opens the workbook and positions an iterator on the first
// worksheet's data rows. The total data row count is established with a
// counting pre-pass so progress can be reported as an integer percentage
// after each chunk.
func ReadInChunks[T any](r io.Reader, m Mapping[T], chunkSize int, hasHeader bool, progress ProgressFunc) (*ChunkIterator[T], error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook contains no worksheets")
	}
	sheet := sheets[0]

	total, err := countRows(f, sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("count rows: %w", err)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read worksheet %q: %w", sheet, err)
	}

	it := &ChunkIterator[T]{
		f:        f,
		rows:     rows,
		mapping:  m,
		size:     chunkSize,
		progress: progress,
		nextRow:  1,
	}

	var headers []string
	if hasHeader {
		if rows.Next() {
			headers, err = rows.Columns()
			if err != nil {
				it.Close()
				return nil, fmt.Errorf("read header row: %w", err)
			}
		}
		it.nextRow = 2
		total--
	}
	if total < 0 {
		total = 0
	}
	it.totalData = total
	it.colIdx = m.columnIndex(headers, hasHeader)

	return it, nil
}

// Next advances to the next chunk. It returns false when the source is
// exhausted or a read error occurred; check Err afterwards.
func (it *ChunkIterator[T]) Next() bool {
	if it.done || it.err != nil || it.closed {
		return false
	}

	chunk := &Chunk[T]{
		Number:   it.chunkNum + 1,
		StartRow: it.nextRow,
	}

	consumed := 0
	for consumed < it.size {
		cols, ok, err := it.nextPhysicalRow()
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			it.done = true
			break
		}

		rowNum := it.nextRow
		it.nextRow++
		it.processed++
		consumed++

		if isBlankRow(cols) {
			continue
		}

		item, errs := bindRow(it.mapping, it.colIdx, cols, rowNum)
		chunk.Errors = append(chunk.Errors, errs...)
		if HasCritical(errs) {
			continue
		}
		chunk.Data = append(chunk.Data, item)
	}

	if consumed == 0 {
		it.done = true
		return false
	}

	chunk.EndRow = chunk.StartRow + consumed - 1

	// Probe one row ahead so the final chunk can be flagged.
	if !it.done {
		cols, ok, err := it.peekPhysicalRow()
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			it.done = true
		} else {
			it.pending = cols
			it.pendingValid = true
		}
	}
	chunk.Last = it.done

	it.chunkNum++
	it.cur = chunk

	if it.progress != nil && it.totalData > 0 {
		it.progress(it.processed * 100 / it.totalData)
	}
	return true
}

// Chunk returns the chunk produced by the last successful Next call.
func (it *ChunkIterator[T]) Chunk() *Chunk[T] {
	return it.cur
}

// Err returns the first read error encountered, if any.
func (it *ChunkIterator[T]) Err() error {
	return it.err
}

// Close releases the underlying row cursor and workbook. Safe to call more
// than once.
func (it *ChunkIterator[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	var err error
	if it.rows != nil {
		err = it.rows.Close()
	}
	if cerr := it.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (it *ChunkIterator[T]) nextPhysicalRow() ([]string, bool, error) {
	if it.pendingValid {
		cols := it.pending
		it.pending = nil
		it.pendingValid = false
		return cols, true, nil
	}
	return it.peekPhysicalRow()
}

func (it *ChunkIterator[T]) peekPhysicalRow() ([]string, bool, error) {
	if !it.rows.Next() {
		if err := it.rows.Error(); err != nil {
			return nil, false, fmt.Errorf("read row: %w", err)
		}
		return nil, false, nil
	}
	cols, err := it.rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("read row: %w", err)
	}
	return cols, true, nil
}

// countRows walks the sheet once to establish the physical row count.
func countRows(f *excelize.File, sheet string) (int, error) {
	it, err := f.Rows(sheet)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n := 0
	for it.Next() {
		n++
	}
	return n, it.Error()
}
