package importer

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/excelport/internal/excel"
	"github.com/storekit/excelport/internal/store"
)

func customerWorkbook(t *testing.T, rows []CustomerRow) *bytes.Reader {
	t.Helper()
	data, err := excel.WriteAll(rows, customerImportMapping, "Customers")
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  bool
	}{
		{"plain digits", "5550102030", true},
		{"international", "+44 20 7946 0958", true},
		{"parentheses and dashes", "(555) 010-2030", true},
		{"too short", "12345", false},
		{"too long", "1234567890123456", false},
		{"letters", "call-me-maybe", false},
		{"seven digits exactly", "1234567", true},
		{"fifteen digits exactly", "123456789012345", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validPhone(tt.phone))
		})
	}
}

func TestCustomerRowValidate(t *testing.T) {
	blank := CustomerRow{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	assert.Empty(t, blank.Validate(), "blank phone is valid")

	badEmail := CustomerRow{Email: "not-an-email"}
	assert.NotEmpty(t, badEmail.Validate())

	badPhone := CustomerRow{Email: "ada@example.com", Phone: "abc"}
	assert.NotEmpty(t, badPhone.Validate())
}

func TestCustomerImportFlagsDuplicateEmails(t *testing.T) {
	repo := &fakeCustomerRepo{byEmail: map[string]int64{"ada@example.com": 9}}
	svc := NewCustomerService(repo, testImportConfig())

	rows := []CustomerRow{
		{FirstName: "Ada", LastName: "L", Email: "Ada@Example.com"},      // storage dup
		{ID: 9, FirstName: "Ada", LastName: "L", Email: "ada@example.com"}, // own record
		{FirstName: "Grace", LastName: "H", Email: "grace@example.com"},
		{FirstName: "Grace", LastName: "H", Email: "GRACE@example.com"}, // sibling dup
	}

	res, err := svc.Import(context.Background(), customerWorkbook(t, rows), true)
	require.NoError(t, err)

	var dupRows []int
	for _, e := range res.Errors {
		if e.Code == excel.CodeDuplicateValue {
			dupRows = append(dupRows, e.Row)
		}
	}
	assert.Contains(t, dupRows, 2)
	assert.Contains(t, dupRows, 5)
	assert.NotContains(t, dupRows, 4)
}

func TestCustomerImportPersists(t *testing.T) {
	repo := &fakeCustomerRepo{}
	svc := NewCustomerService(repo, testImportConfig())

	rows := []CustomerRow{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+1 555 010 2030", Country: "UK"},
	}

	res, err := svc.Import(context.Background(), customerWorkbook(t, rows), false)
	require.NoError(t, err)
	require.True(t, res.OK(), "errors: %v", res.Errors)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0][0]
	assert.Equal(t, "ada@example.com", saved.Email)
	assert.Equal(t, "UK", saved.Country)
	assert.True(t, saved.IsActive)
}

func TestCustomerExportSegments(t *testing.T) {
	repo := &fakeCustomerRepo{
		list: []store.Customer{
			{ID: 1, FirstName: "Big", LastName: "Spender", Email: "big@example.com"},
			{ID: 2, FirstName: "Mid", LastName: "Range", Email: "mid@example.com"},
			{ID: 3, FirstName: "First", LastName: "Timer", Email: "new@example.com"},
		},
		totals: map[int64]decimal.Decimal{
			1: decimal.NewFromInt(2500),
			2: decimal.NewFromInt(250),
		},
	}
	svc := NewCustomerService(repo, testImportConfig())

	data, err := svc.Export(context.Background(), store.CustomerFilter{}, ExportOptions{})
	require.NoError(t, err)

	res := excel.ReadAll(bytes.NewReader(data), customerExportSegmentProbe, true)
	require.True(t, res.OK(), "errors: %v", res.Errors)
	require.Len(t, res.Data, 3)
	assert.Equal(t, "VIP", res.Data[0].Segment)
	assert.Equal(t, "Regular", res.Data[1].Segment)
	assert.Equal(t, "New", res.Data[2].Segment)
}

// customerExportSegmentProbe reads back just the segment column of an export.
var customerExportSegmentProbe = excel.Mapping[CustomerRow]{
	{
		Field: "segment", Header: "Segment",
		Parse: excel.Text(func(r *CustomerRow, v string) { r.Segment = v }),
	},
}

func TestSegmentFor(t *testing.T) {
	assert.Equal(t, "VIP", segmentFor(decimal.NewFromInt(1000)))
	assert.Equal(t, "Regular", segmentFor(decimal.NewFromInt(100)))
	assert.Equal(t, "Regular", segmentFor(decimal.RequireFromString("999.99")))
	assert.Equal(t, "New", segmentFor(decimal.NewFromInt(99)))
	assert.Equal(t, "New", segmentFor(decimal.Zero))
}
