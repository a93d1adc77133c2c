package excel

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func chunkFixture(t *testing.T, n int) []byte {
	t.Helper()

	rows := make([]testRow, n)
	for i := range rows {
		rows[i] = testRow{
			ID:    int64(i + 1),
			Name:  fmt.Sprintf("Item %d", i+1),
			Price: decimal.NewFromInt(int64(i)),
			Count: int64(i),
		}
	}
	data, err := WriteAll(rows, testMapping, "Items")
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	return data
}

func collectChunks(t *testing.T, data []byte, size int, progress ProgressFunc) []*Chunk[testRow] {
	t.Helper()

	it, err := ReadInChunks(bytes.NewReader(data), testMapping, size, true, progress)
	if err != nil {
		t.Fatalf("ReadInChunks: %v", err)
	}
	defer it.Close()

	var chunks []*Chunk[testRow]
	for it.Next() {
		chunks = append(chunks, it.Chunk())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return chunks
}

func TestChunkingMatchesReadAll(t *testing.T) {
	const n = 10
	data := chunkFixture(t, n)

	full := ReadAll(bytes.NewReader(data), testMapping, true)
	if !full.OK() {
		t.Fatalf("ReadAll errors: %v", full.Errors)
	}

	for _, k := range []int{1, n / 2, n, n + 1} {
		t.Run(fmt.Sprintf("size %d", k), func(t *testing.T) {
			chunks := collectChunks(t, data, k, nil)

			var combined []testRow
			for _, c := range chunks {
				combined = append(combined, c.Data...)
			}
			if len(combined) != len(full.Data) {
				t.Fatalf("got %d rows across chunks, want %d", len(combined), len(full.Data))
			}
			for i := range combined {
				if combined[i].ID != full.Data[i].ID || combined[i].Name != full.Data[i].Name {
					t.Errorf("row %d = %+v, want %+v", i, combined[i], full.Data[i])
				}
			}
		})
	}
}

func TestChunkNumbersAndLastFlag(t *testing.T) {
	data := chunkFixture(t, 5)

	chunks := collectChunks(t, data, 2, nil)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	for i, c := range chunks {
		if c.Number != i+1 {
			t.Errorf("chunk %d numbered %d", i, c.Number)
		}
		wantLast := i == len(chunks)-1
		if c.Last != wantLast {
			t.Errorf("chunk %d Last = %v, want %v", i, c.Last, wantLast)
		}
	}

	// Data rows start at sheet row 2 (row 1 is the header).
	if chunks[0].StartRow != 2 || chunks[0].EndRow != 3 {
		t.Errorf("chunk 1 covers rows %d-%d, want 2-3", chunks[0].StartRow, chunks[0].EndRow)
	}
	if len(chunks[2].Data) != 1 {
		t.Errorf("final chunk has %d rows, want 1", len(chunks[2].Data))
	}
}

func TestChunkDropsCriticalRows(t *testing.T) {
	m := make(Mapping[testRow], len(testMapping))
	copy(m, testMapping)
	m[1].Critical = true

	data := sheetBytes(t, [][]any{
		{"ID", "Name"},
		{1, "Widget"},
		{2, ""},
		{3, "Gadget"},
	})

	it, err := ReadInChunks(bytes.NewReader(data), m, 2, true, nil)
	if err != nil {
		t.Fatalf("ReadInChunks: %v", err)
	}
	defer it.Close()

	var kept []testRow
	var errs []RowError
	for it.Next() {
		c := it.Chunk()
		kept = append(kept, c.Data...)
		errs = append(errs, c.Errors...)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	if len(kept) != 2 || kept[0].ID != 1 || kept[1].ID != 3 {
		t.Fatalf("kept rows = %+v, want IDs 1 and 3", kept)
	}
	if !CriticalRows(errs)[3] {
		t.Errorf("row 3 missing from the critical row set, errors: %v", errs)
	}
}

func TestChunkProgressReachesFull(t *testing.T) {
	data := chunkFixture(t, 7)

	var reported []int
	collectChunks(t, data, 3, func(p int) { reported = append(reported, p) })

	if len(reported) == 0 {
		t.Fatal("no progress reported")
	}
	last := reported[len(reported)-1]
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] < reported[i-1] {
			t.Errorf("progress went backwards: %v", reported)
		}
	}
}

func TestChunkIteratorCloseIsIdempotent(t *testing.T) {
	data := chunkFixture(t, 3)

	it, err := ReadInChunks(bytes.NewReader(data), testMapping, 2, true, nil)
	if err != nil {
		t.Fatalf("ReadInChunks: %v", err)
	}
	if !it.Next() {
		t.Fatalf("expected a first chunk, err: %v", it.Err())
	}
	if err := it.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if it.Next() {
		t.Error("Next after Close should report false")
	}
}

func TestReadInChunksUnreadableStream(t *testing.T) {
	_, err := ReadInChunks(bytes.NewReader([]byte("nope")), testMapping, 2, true, nil)
	if err == nil {
		t.Fatal("expected open error")
	}
}
