package importer

import (
	"context"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storekit/excelport/internal/config"
	"github.com/storekit/excelport/internal/excel"
	"github.com/storekit/excelport/internal/logging"
	"github.com/storekit/excelport/internal/store"
)

// CustomerRow is the flat spreadsheet representation of a customer.
// TotalSpent, Segment and CreatedAt are export-only display fields.
type CustomerRow struct {
	ID         int64
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Country    string
	City       string
	Address    string
	PostalCode string
	IsActive   *bool

	TotalSpent decimal.Decimal
	Segment    string
	CreatedAt  time.Time

	RowNumber int
}

func (r *CustomerRow) SetRowNumber(n int) { r.RowNumber = n }

// Active resolves the tri-state active flag: a blank cell means active.
func (r *CustomerRow) Active() bool {
	if r.IsActive == nil {
		return true
	}
	return *r.IsActive
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate reports the row's own rule violations. Phone is optional; when
// present it must be 7-15 digits after stripping common punctuation.
func (r *CustomerRow) Validate() []string {
	var out []string
	if r.Email != "" && !emailPattern.MatchString(r.Email) {
		out = append(out, fmt.Sprintf("invalid email address %q", r.Email))
	}
	if r.Phone != "" && !validPhone(r.Phone) {
		out = append(out, fmt.Sprintf("invalid phone number %q", r.Phone))
	}
	return out
}

// validPhone strips space, dash, parentheses and plus, then requires an
// all-digit remainder of 7 to 15 characters.
func validPhone(phone string) bool {
	stripped := strings.Map(func(c rune) rune {
		switch c {
		case ' ', '-', '(', ')', '+':
			return -1
		}
		return c
	}, phone)

	if len(stripped) < 7 || len(stripped) > 15 {
		return false
	}
	for _, c := range stripped {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

var customerImportMapping = excel.Mapping[CustomerRow]{
	{
		Field: "id", Header: "ID",
		Parse: excel.Integer(func(r *CustomerRow, v int64) { r.ID = v }),
		Value: func(r *CustomerRow) any { return r.ID },
	},
	{
		Field: "first_name", Header: "First Name", Required: true,
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.FirstName = v }),
		Value:   func(r *CustomerRow) any { return r.FirstName },
		Example: "Ada",
	},
	{
		Field: "last_name", Header: "Last Name", Required: true,
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.LastName = v }),
		Value:   func(r *CustomerRow) any { return r.LastName },
		Example: "Lovelace",
	},
	{
		Field: "email", Header: "Email", Required: true,
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.Email = v }),
		Value:   func(r *CustomerRow) any { return r.Email },
		Example: "ada@example.com",
	},
	{
		Field: "phone", Header: "Phone",
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.Phone = v }),
		Value:   func(r *CustomerRow) any { return r.Phone },
		Example: "+1 555 010 2030",
	},
	{
		Field: "country", Header: "Country",
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.Country = v }),
		Value:   func(r *CustomerRow) any { return r.Country },
		Example: "United Kingdom",
	},
	{
		Field: "city", Header: "City",
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.City = v }),
		Value:   func(r *CustomerRow) any { return r.City },
		Example: "London",
	},
	{
		Field: "address", Header: "Address",
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.Address = v }),
		Value:   func(r *CustomerRow) any { return r.Address },
		Example: "12 Analytical Way",
	},
	{
		Field: "postal_code", Header: "Postal Code",
		Parse:   excel.Text(func(r *CustomerRow, v string) { r.PostalCode = v }),
		Value:   func(r *CustomerRow) any { return r.PostalCode },
		Example: "EC1A 1AA",
	},
	{
		Field: "is_active", Header: "Is Active",
		Parse:   excel.Boolean(func(r *CustomerRow, v bool) { r.IsActive = &v }),
		Value:   func(r *CustomerRow) any { return r.Active() },
		Example: "yes",
	},
}

var customerExportMapping = append(append(excel.Mapping[CustomerRow]{}, customerImportMapping...),
	excel.Column[CustomerRow]{
		Field: "total_spent", Header: "Total Spent",
		Value: func(r *CustomerRow) any { return r.TotalSpent },
	},
	excel.Column[CustomerRow]{
		Field: "segment", Header: "Segment",
		Value: func(r *CustomerRow) any { return r.Segment },
	},
	excel.Column[CustomerRow]{
		Field: "created_at", Header: "Created At",
		Value: func(r *CustomerRow) any { return r.CreatedAt },
	},
)

// Spend thresholds for the export-only customer segment column.
var (
	vipSpend     = decimal.NewFromInt(1000)
	regularSpend = decimal.NewFromInt(100)
)

func segmentFor(spent decimal.Decimal) string {
	switch {
	case spent.GreaterThanOrEqual(vipSpend):
		return "VIP"
	case spent.GreaterThanOrEqual(regularSpend):
		return "Regular"
	default:
		return "New"
	}
}

// CustomerRepository is the storage surface the customer service needs.
// *store.Store satisfies it.
type CustomerRepository interface {
	ListCustomers(ctx context.Context, f store.CustomerFilter) ([]store.Customer, error)
	ExistingCustomerIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	CustomerIDsByEmail(ctx context.Context) (map[string]int64, error)
	CustomerOrderTotals(ctx context.Context) (map[int64]decimal.Decimal, error)
	SaveCustomers(ctx context.Context, customers []store.Customer) error
}

// CustomerService imports and exports storefront customers.
type CustomerService struct {
	repo CustomerRepository
	cfg  config.ImportConfig
}

func NewCustomerService(repo CustomerRepository, cfg config.ImportConfig) *CustomerService {
	return &CustomerService{repo: repo, cfg: cfg}
}

// Import parses the stream, runs business validation, and persists surviving
// rows in one transaction. Same contract as CategoryService.Import.
func (s *CustomerService) Import(ctx context.Context, r io.Reader, validateOnly bool) (*excel.Result[CustomerRow], error) {
	runID := newRunID()
	ctx = logging.WithImportID(ctx, runID)

	res := excel.ReadAll(r, customerImportMapping, true)
	res.Metadata["import_id"] = runID

	err := s.finish(ctx, res, validateOnly)
	logging.WithFields(ctx, "entity", "customer").Info("import finished",
		"total", res.TotalRows, "success", res.SuccessRows, "errors", res.ErrorRows, "validate_only", validateOnly)
	return res, err
}

// ImportInBatches streams the file chunk by chunk with per-chunk persistence.
func (s *CustomerService) ImportInBatches(ctx context.Context, r io.Reader, batchSize int, progress excel.ProgressFunc) iter.Seq2[*excel.Result[CustomerRow], error] {
	return func(yield func(*excel.Result[CustomerRow], error) bool) {
		runID := newRunID()
		ctx := logging.WithImportID(ctx, runID)

		it, err := excel.ReadInChunks(r, customerImportMapping, batchSize, true, progress)
		if err != nil {
			yield(nil, fmt.Errorf("read customers in chunks: %w", err))
			return
		}
		defer it.Close()

		for it.Next() {
			res := chunkResult(it.Chunk())
			res.Metadata["import_id"] = runID
			if !yield(res, s.finish(ctx, res, false)) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, fmt.Errorf("read customers in chunks: %w", err))
		}
	}
}

// Export loads customers matching the filter, attaches spend and segment
// display fields, and writes a workbook.
func (s *CustomerService) Export(ctx context.Context, f store.CustomerFilter, opts ExportOptions) ([]byte, error) {
	customers, err := s.repo.ListCustomers(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export customers: %w", err)
	}
	totals, err := s.repo.CustomerOrderTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("export customers: %w", err)
	}

	rows := make([]CustomerRow, len(customers))
	for i, c := range customers {
		active := c.IsActive
		spent := totals[c.ID]
		rows[i] = CustomerRow{
			ID:         c.ID,
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Email:      c.Email,
			Phone:      c.Phone,
			Country:    c.Country,
			City:       c.City,
			Address:    c.Address,
			PostalCode: c.PostalCode,
			IsActive:   &active,
			TotalSpent: spent,
			Segment:    segmentFor(spent),
			CreatedAt:  c.CreatedAt,
		}
	}

	m := customerExportMapping.Narrow(opts.Include, opts.Exclude)
	return excel.WriteAll(rows, m, "Customers")
}

// CreateTemplate produces an import template workbook.
func (s *CustomerService) CreateTemplate(includeExample bool) ([]byte, error) {
	return excel.CreateTemplate(customerImportMapping, "Customers", includeExample)
}

// ValidateFile runs the structural pre-check against the import columns.
func (s *CustomerService) ValidateFile(r io.Reader) *excel.ValidationResult {
	return excel.Validate(r, customerImportMapping.Headers(), s.cfg.MaxFileSize)
}

// CustomerStatistics summarizes a customer file without persisting it.
type CustomerStatistics struct {
	TotalRows         int
	NewCustomers      int
	UpdatedCustomers  int
	CountryCounts     map[string]int
	DuplicateEmails   []string
	EstimatedDuration time.Duration
}

// GetImportStatistics re-parses the stream and reports what an import of it
// would do.
func (s *CustomerService) GetImportStatistics(ctx context.Context, r io.Reader) (*CustomerStatistics, error) {
	res := excel.ReadAll(r, customerImportMapping, true)

	var ids []int64
	for i := range res.Data {
		if res.Data[i].ID > 0 {
			ids = append(ids, res.Data[i].ID)
		}
	}
	existing, err := s.repo.ExistingCustomerIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("customer statistics: %w", err)
	}

	stats := &CustomerStatistics{
		TotalRows:         res.TotalRows,
		CountryCounts:     make(map[string]int),
		EstimatedDuration: time.Duration(res.TotalRows) * customerRowCost,
	}

	seen := make(map[string]bool)
	for i := range res.Data {
		row := &res.Data[i]
		if row.ID > 0 && existing[row.ID] {
			stats.UpdatedCustomers++
		} else {
			stats.NewCustomers++
		}
		if row.Country != "" {
			stats.CountryCounts[row.Country]++
		}
		key := normKey(row.Email)
		if key != "" && seen[key] {
			stats.DuplicateEmails = append(stats.DuplicateEmails, row.Email)
		}
		seen[key] = true
	}
	return stats, nil
}

// finish runs business validation and, unless validateOnly or a critical
// error is present, persists the surviving rows.
func (s *CustomerService) finish(ctx context.Context, res *excel.Result[CustomerRow], validateOnly bool) error {
	verrs, err := s.validate(ctx, res.Data)
	if err != nil {
		return err
	}
	res.Errors = append(res.Errors, verrs...)
	res.Recount()

	if validateOnly || !res.OK() {
		return nil
	}
	return s.persist(ctx, res)
}

// validate applies the customer business rules: email uniqueness against
// storage and sibling rows, plus each row's own format rules.
func (s *CustomerService) validate(ctx context.Context, rows []CustomerRow) ([]excel.RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	byEmail, err := s.repo.CustomerIDsByEmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate customers: %w", err)
	}

	var errs []excel.RowError
	seen := make(map[string]bool, len(rows))
	for i := range rows {
		row := &rows[i]
		key := normKey(row.Email)

		if id, ok := byEmail[key]; ok && id != row.ID {
			errs = append(errs, businessError(row.RowNumber, "Email",
				fmt.Sprintf("email %q already belongs to another customer", row.Email), excel.CodeDuplicateValue))
		}
		if key != "" && seen[key] {
			errs = append(errs, businessError(row.RowNumber, "Email",
				fmt.Sprintf("email %q appears more than once in the file", row.Email), excel.CodeDuplicateValue))
		}
		seen[key] = true

		errs = append(errs, ruleErrors(row.RowNumber, row.Validate())...)
	}
	return errs, nil
}

// persist saves every row free of Error-or-worse problems in one transaction.
func (s *CustomerService) persist(ctx context.Context, res *excel.Result[CustomerRow]) error {
	bad := errorRowSet(res.Errors)

	customers := make([]store.Customer, 0, len(res.Data))
	for i := range res.Data {
		row := &res.Data[i]
		if bad[row.RowNumber] {
			continue
		}
		customers = append(customers, store.Customer{
			ID:         row.ID,
			FirstName:  row.FirstName,
			LastName:   row.LastName,
			Email:      row.Email,
			Phone:      row.Phone,
			Country:    row.Country,
			City:       row.City,
			Address:    row.Address,
			PostalCode: row.PostalCode,
			IsActive:   row.Active(),
		})
	}
	if len(customers) == 0 {
		return nil
	}

	if err := s.repo.SaveCustomers(ctx, customers); err != nil {
		res.Errors = append(res.Errors, excel.RowError{
			Message:  fmt.Sprintf("saving customers failed: %v", err),
			Code:     excel.CodeBusinessRule,
			Severity: excel.SeverityCritical,
		})
		return fmt.Errorf("persist customers: %w", err)
	}
	return nil
}
