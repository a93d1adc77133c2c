package excel

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// testRow is the fixture type shared across the engine tests.
type testRow struct {
	ID     int64
	Name   string
	Price  decimal.Decimal
	Count  int64
	Active *bool
	Row    int
}

func (r *testRow) SetRowNumber(n int) { r.Row = n }

var testMapping = Mapping[testRow]{
	{
		Field: "id", Header: "ID",
		Parse: Integer(func(r *testRow, v int64) { r.ID = v }),
		Value: func(r *testRow) any { return r.ID },
	},
	{
		Field: "name", Header: "Name", Required: true,
		Parse:   Text(func(r *testRow, v string) { r.Name = v }),
		Value:   func(r *testRow) any { return r.Name },
		Example: "Sample",
	},
	{
		Field: "price", Header: "Price",
		Parse:   Number(func(r *testRow, v decimal.Decimal) { r.Price = v }),
		Value:   func(r *testRow) any { return r.Price },
		Example: "9.99",
	},
	{
		Field: "count", Header: "Count",
		Parse:   Integer(func(r *testRow, v int64) { r.Count = v }),
		Value:   func(r *testRow) any { return r.Count },
		Example: "3",
	},
	{
		Field: "active", Header: "Active",
		Parse: Boolean(func(r *testRow, v bool) { r.Active = &v }),
		Value: func(r *testRow) any {
			if r.Active == nil {
				return ""
			}
			return *r.Active
		},
		Example: "yes",
	},
}

// sheetBytes builds a workbook from literal cell values, row by row.
func sheetBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func boolPtr(b bool) *bool { return &b }

func TestReadAllRoundTrip(t *testing.T) {
	in := []testRow{
		{ID: 1, Name: "Widget", Price: decimal.RequireFromString("19.99"), Count: 3, Active: boolPtr(true)},
		{ID: 2, Name: "Gadget", Price: decimal.RequireFromString("5.50"), Count: 0, Active: boolPtr(false)},
	}

	data, err := WriteAll(in, testMapping, "Items")
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	res := ReadAll(bytes.NewReader(data), testMapping, true)
	if !res.OK() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Data) != len(in) {
		t.Fatalf("got %d rows, want %d", len(res.Data), len(in))
	}
	if res.TotalRows != 2 || res.SuccessRows != 2 || res.ErrorRows != 0 {
		t.Errorf("counters = %d/%d/%d, want 2/2/0", res.TotalRows, res.SuccessRows, res.ErrorRows)
	}

	for i := range in {
		got, want := res.Data[i], in[i]
		if got.ID != want.ID || got.Name != want.Name || got.Count != want.Count {
			t.Errorf("row %d = %+v, want %+v", i, got, want)
		}
		if !got.Price.Equal(want.Price) {
			t.Errorf("row %d price = %s, want %s", i, got.Price, want.Price)
		}
		if got.Active == nil || *got.Active != *want.Active {
			t.Errorf("row %d active = %v, want %v", i, got.Active, want.Active)
		}
		if got.Row != i+2 {
			t.Errorf("row %d sheet row = %d, want %d", i, got.Row, i+2)
		}
	}
}

func TestReadAllRequiredMissing(t *testing.T) {
	data := sheetBytes(t, [][]any{
		{"ID", "Name", "Price"},
		{1, "Widget", "9.99"},
		{2, "", "5.00"},
	})

	res := ReadAll(bytes.NewReader(data), testMapping, true)

	if len(res.Data) != 2 {
		t.Fatalf("got %d rows, want 2 (error rows stay in data unless critical)", len(res.Data))
	}
	if res.ErrorRows != 1 || res.SuccessRows != 1 {
		t.Errorf("counters = %d success / %d error, want 1/1", res.SuccessRows, res.ErrorRows)
	}

	var found bool
	for _, e := range res.Errors {
		if e.Code == CodeRequiredFieldMissing && e.Row == 3 && e.Column == "Name" {
			found = true
			if e.Severity != SeverityError {
				t.Errorf("severity = %v, want error", e.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("no REQUIRED_FIELD_MISSING for row 3, errors: %v", res.Errors)
	}
}

func TestReadAllInvalidTypeKeepsRawValue(t *testing.T) {
	data := sheetBytes(t, [][]any{
		{"ID", "Name", "Price"},
		{1, "Widget", "not-a-price"},
	})

	res := ReadAll(bytes.NewReader(data), testMapping, true)

	var found bool
	for _, e := range res.Errors {
		if e.Code == CodeInvalidDataType {
			found = true
			if e.RawValue != "not-a-price" {
				t.Errorf("raw value = %q, want %q", e.RawValue, "not-a-price")
			}
			if e.Column != "Price" {
				t.Errorf("column = %q, want Price", e.Column)
			}
		}
	}
	if !found {
		t.Fatalf("no INVALID_DATA_TYPE error, errors: %v", res.Errors)
	}
	// The row itself is kept: only critical errors drop a row.
	if len(res.Data) != 1 {
		t.Errorf("got %d rows, want 1", len(res.Data))
	}
}

func TestReadAllDropsCriticalRows(t *testing.T) {
	m := make(Mapping[testRow], len(testMapping))
	copy(m, testMapping)
	m[1].Critical = true // Name is required; escalate its errors

	data := sheetBytes(t, [][]any{
		{"ID", "Name", "Price"},
		{1, "Widget", "9.99"},
		{2, "", "5.00"},
	})

	res := ReadAll(bytes.NewReader(data), m, true)

	if len(res.Data) != 1 {
		t.Fatalf("got %d rows, want 1 (critical row dropped)", len(res.Data))
	}
	if res.Data[0].ID != 1 {
		t.Errorf("kept row ID = %d, want 1", res.Data[0].ID)
	}
	if res.TotalRows != 2 || res.ErrorRows != 1 || res.SuccessRows != 1 {
		t.Errorf("counters = %d total / %d success / %d error, want 2/1/1",
			res.TotalRows, res.SuccessRows, res.ErrorRows)
	}

	var found bool
	for _, e := range res.Errors {
		if e.Row == 3 && e.Code == CodeRequiredFieldMissing {
			found = true
			if e.Severity != SeverityCritical {
				t.Errorf("severity = %v, want critical", e.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("no REQUIRED_FIELD_MISSING for row 3, errors: %v", res.Errors)
	}
	if !CriticalRows(res.Errors)[3] {
		t.Error("row 3 missing from the critical row set")
	}
}

func TestReadAllCriticalParseFailure(t *testing.T) {
	m := make(Mapping[testRow], len(testMapping))
	copy(m, testMapping)
	m[2].Critical = true // Price conversion failures become critical

	data := sheetBytes(t, [][]any{
		{"ID", "Name", "Price"},
		{1, "Widget", "free"},
		{2, "Gadget", "5.00"},
	})

	res := ReadAll(bytes.NewReader(data), m, true)

	if len(res.Data) != 1 || res.Data[0].Name != "Gadget" {
		t.Fatalf("data = %+v, want only the Gadget row", res.Data)
	}
	var found bool
	for _, e := range res.Errors {
		if e.Row == 2 && e.Code == CodeInvalidDataType && e.Severity == SeverityCritical {
			found = true
			if e.RawValue != "free" {
				t.Errorf("raw value = %q, want %q", e.RawValue, "free")
			}
		}
	}
	if !found {
		t.Fatalf("no critical INVALID_DATA_TYPE for row 2, errors: %v", res.Errors)
	}
}

func TestReadAllSkipsBlankRows(t *testing.T) {
	data := sheetBytes(t, [][]any{
		{"ID", "Name"},
		{1, "Widget"},
		{"", ""},
		{2, "Gadget"},
	})

	res := ReadAll(bytes.NewReader(data), testMapping, true)
	if res.TotalRows != 2 {
		t.Errorf("TotalRows = %d, want 2", res.TotalRows)
	}
	if got := res.Metadata["blank_rows"]; got != 1 {
		t.Errorf("blank_rows = %v, want 1", got)
	}
	if len(res.Data) != 2 {
		t.Errorf("got %d rows, want 2", len(res.Data))
	}
}

func TestReadAllUnreadableStream(t *testing.T) {
	res := ReadAll[testRow](bytes.NewReader([]byte("not a workbook")), testMapping, true)

	if res.OK() {
		t.Fatal("expected a critical structural error")
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != CodeFileFormatError {
		t.Fatalf("errors = %v, want one FILE_FORMAT_ERROR", res.Errors)
	}
	if len(res.Data) != 0 {
		t.Errorf("got %d rows, want 0", len(res.Data))
	}
}

func TestReadAllHeaderless(t *testing.T) {
	data := sheetBytes(t, [][]any{
		{7, "Widget", "1.25", 2, "yes"},
	})

	res := ReadAll(bytes.NewReader(data), testMapping, false)
	if !res.OK() || len(res.Data) != 1 {
		t.Fatalf("data = %v errors = %v, want one clean row", res.Data, res.Errors)
	}
	got := res.Data[0]
	if got.ID != 7 || got.Name != "Widget" || got.Count != 2 {
		t.Errorf("row = %+v", got)
	}
}

func TestReadAllUnmatchedHeaderColumn(t *testing.T) {
	// Name column present, everything else under unknown headers.
	data := sheetBytes(t, [][]any{
		{"Name", "Mystery"},
		{"Widget", "???"},
	})

	res := ReadAll(bytes.NewReader(data), testMapping, true)
	if len(res.Data) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Data))
	}
	if res.Data[0].ID != 0 || res.Data[0].Name != "Widget" {
		t.Errorf("row = %+v, want only Name populated", res.Data[0])
	}
}
