package importer

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storekit/excelport/internal/config"
	"github.com/storekit/excelport/internal/excel"
	"github.com/storekit/excelport/internal/logging"
	"github.com/storekit/excelport/internal/store"
)

// OrderItemRow is one order line parsed from the packed Items cell.
type OrderItemRow struct {
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// OrderRow is the flat spreadsheet representation of an order. UserID and
// CustomerID are resolved from the email columns during validation; ItemCount
// is export-only.
type OrderRow struct {
	ID            int64
	UserEmail     string
	CustomerEmail string
	Status        string
	TotalAmount   decimal.Decimal
	Tax           decimal.Decimal
	Shipping      decimal.Decimal
	Discount      decimal.Decimal
	Items         []OrderItemRow
	OrderDate     time.Time

	UserID     *int64
	CustomerID *int64
	ItemCount  int

	RowNumber int
}

func (r *OrderRow) SetRowNumber(n int) { r.RowNumber = n }

// ComputedTotal recomputes the order total from its parts:
// sum of line totals plus tax and shipping, minus discount.
func (r *OrderRow) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range r.Items {
		total = total.Add(r.Items[i].LineTotal)
	}
	return total.Add(r.Tax).Add(r.Shipping).Sub(r.Discount)
}

// Validate reports the row's own rule violations.
func (r *OrderRow) Validate() []string {
	var out []string
	if r.UserEmail == "" && r.CustomerEmail == "" {
		out = append(out, "order needs a user email or a customer email")
	}
	if r.TotalAmount.IsNegative() {
		out = append(out, "total amount cannot be negative")
	}
	if r.Tax.IsNegative() || r.Shipping.IsNegative() || r.Discount.IsNegative() {
		out = append(out, "tax, shipping and discount cannot be negative")
	}
	for i := range r.Items {
		if r.Items[i].Quantity <= 0 {
			out = append(out, fmt.Sprintf("item %q must have a positive quantity", r.Items[i].ProductName))
		}
	}
	return out
}

// orderStatuses is the allowed status set, keyed by lowercase form with the
// canonical spelling as the value.
var orderStatuses = map[string]string{
	"pending":    "Pending",
	"processing": "Processing",
	"shipped":    "Shipped",
	"delivered":  "Delivered",
	"cancelled":  "Cancelled",
	"refunded":   "Refunded",
	"on hold":    "On Hold",
}

// ParseOrderItems decodes a packed items cell. Items are separated by ";",
// fields within an item by "|": product name, quantity, unit price, line
// total.
func ParseOrderItems(raw string) ([]OrderItemRow, error) {
	var items []OrderItemRow
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, "|")
		if len(fields) != 4 {
			return nil, fmt.Errorf("item %q: want name|quantity|unit price|line total", part)
		}

		name := strings.TrimSpace(fields[0])
		if name == "" {
			return nil, fmt.Errorf("item %q: missing product name", part)
		}
		qty, err := excel.ParseInt(fields[1])
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", part, err)
		}
		unit, err := excel.ParseDecimal(fields[2])
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", part, err)
		}
		total, err := excel.ParseDecimal(fields[3])
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", part, err)
		}

		items = append(items, OrderItemRow{
			ProductName: name,
			Quantity:    int(qty),
			UnitPrice:   unit,
			LineTotal:   total,
		})
	}
	return items, nil
}

// FormatOrderItems encodes order lines into the packed cell form that
// ParseOrderItems reads back.
func FormatOrderItems(items []OrderItemRow) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%s|%d|%s|%s", it.ProductName, it.Quantity, it.UnitPrice.String(), it.LineTotal.String())
	}
	return strings.Join(parts, "; ")
}

var orderImportMapping = excel.Mapping[OrderRow]{
	{
		Field: "id", Header: "ID",
		Parse: excel.Integer(func(r *OrderRow, v int64) { r.ID = v }),
		Value: func(r *OrderRow) any { return r.ID },
	},
	{
		Field: "user_email", Header: "User Email",
		Parse:   excel.Text(func(r *OrderRow, v string) { r.UserEmail = v }),
		Value:   func(r *OrderRow) any { return r.UserEmail },
		Example: "buyer@example.com",
	},
	{
		Field: "customer_email", Header: "Customer Email",
		Parse:   excel.Text(func(r *OrderRow, v string) { r.CustomerEmail = v }),
		Value:   func(r *OrderRow) any { return r.CustomerEmail },
		Example: "",
	},
	{
		Field: "status", Header: "Status", Required: true,
		Parse:   excel.Text(func(r *OrderRow, v string) { r.Status = v }),
		Value:   func(r *OrderRow) any { return r.Status },
		Example: "Pending",
	},
	{
		Field: "total_amount", Header: "Total Amount", Required: true,
		Parse:   excel.Number(func(r *OrderRow, v decimal.Decimal) { r.TotalAmount = v }),
		Value:   func(r *OrderRow) any { return r.TotalAmount },
		Example: "24.98",
	},
	{
		Field: "tax", Header: "Tax",
		Parse:   excel.Number(func(r *OrderRow, v decimal.Decimal) { r.Tax = v }),
		Value:   func(r *OrderRow) any { return r.Tax },
		Example: "0",
	},
	{
		Field: "shipping", Header: "Shipping",
		Parse:   excel.Number(func(r *OrderRow, v decimal.Decimal) { r.Shipping = v }),
		Value:   func(r *OrderRow) any { return r.Shipping },
		Example: "0",
	},
	{
		Field: "discount", Header: "Discount",
		Parse:   excel.Number(func(r *OrderRow, v decimal.Decimal) { r.Discount = v }),
		Value:   func(r *OrderRow) any { return r.Discount },
		Example: "0",
	},
	{
		Field: "items", Header: "Items",
		Parse: func(r *OrderRow, raw string) error {
			items, err := ParseOrderItems(raw)
			if err != nil {
				return err
			}
			r.Items = items
			return nil
		},
		Value:   func(r *OrderRow) any { return FormatOrderItems(r.Items) },
		Example: "Widget|2|9.99|19.98; Gizmo|1|5.00|5.00",
	},
	{
		Field: "order_date", Header: "Order Date",
		Parse:   excel.Date(func(r *OrderRow, v time.Time) { r.OrderDate = v }),
		Value:   func(r *OrderRow) any { return r.OrderDate },
		Example: "2024-01-15",
	},
}

var orderExportMapping = append(append(excel.Mapping[OrderRow]{}, orderImportMapping...),
	excel.Column[OrderRow]{
		Field: "item_count", Header: "Item Count",
		Value: func(r *OrderRow) any { return r.ItemCount },
	},
)

// OrderCalcError flags an order whose stored total disagrees with the total
// recomputed from its parts beyond the currency tolerance. Reported apart
// from row errors, keyed by row and order ID.
type OrderCalcError struct {
	Row      int
	OrderID  int64
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e OrderCalcError) String() string {
	return fmt.Sprintf("row %d: computed total %s does not match stated total %s", e.Row, e.Expected, e.Actual)
}

// currencyTolerance is the largest accepted |computed - stated| difference.
var currencyTolerance = decimal.NewFromFloat(0.01)

// OrderImportResult extends the engine result with the order-specific
// calculation mismatches.
type OrderImportResult struct {
	*excel.Result[OrderRow]
	CalculationErrors []OrderCalcError
}

// OrderRepository is the storage surface the order service needs.
// *store.Store satisfies it.
type OrderRepository interface {
	ListOrders(ctx context.Context, f store.OrderFilter) ([]store.Order, error)
	ExistingOrderIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	UserIDsByEmail(ctx context.Context) (map[string]int64, error)
	CustomerIDsByEmail(ctx context.Context) (map[string]int64, error)
	SaveOrders(ctx context.Context, orders []store.Order) error
}

// OrderService imports and exports orders with their line items.
type OrderService struct {
	repo OrderRepository
	cfg  config.ImportConfig
}

func NewOrderService(repo OrderRepository, cfg config.ImportConfig) *OrderService {
	return &OrderService{repo: repo, cfg: cfg}
}

// Import parses the stream, resolves references, validates, and persists
// surviving rows in one transaction. Calculation mismatches are reported on
// the result separately from row errors and do not block persistence on
// their own.
func (s *OrderService) Import(ctx context.Context, r io.Reader, validateOnly bool) (*OrderImportResult, error) {
	runID := newRunID()
	ctx = logging.WithImportID(ctx, runID)

	res := &OrderImportResult{Result: excel.ReadAll(r, orderImportMapping, true)}
	res.Metadata["import_id"] = runID

	err := s.finish(ctx, res, validateOnly)
	logging.WithFields(ctx, "entity", "order").Info("import finished",
		"total", res.TotalRows, "success", res.SuccessRows, "errors", res.ErrorRows,
		"calc_errors", len(res.CalculationErrors), "validate_only", validateOnly)
	return res, err
}

// ImportInBatches streams the file chunk by chunk with per-chunk persistence.
func (s *OrderService) ImportInBatches(ctx context.Context, r io.Reader, batchSize int, progress excel.ProgressFunc) iter.Seq2[*OrderImportResult, error] {
	return func(yield func(*OrderImportResult, error) bool) {
		runID := newRunID()
		ctx := logging.WithImportID(ctx, runID)

		it, err := excel.ReadInChunks(r, orderImportMapping, batchSize, true, progress)
		if err != nil {
			yield(nil, fmt.Errorf("read orders in chunks: %w", err))
			return
		}
		defer it.Close()

		for it.Next() {
			res := &OrderImportResult{Result: chunkResult(it.Chunk())}
			res.Metadata["import_id"] = runID
			if !yield(res, s.finish(ctx, res, false)) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, fmt.Errorf("read orders in chunks: %w", err))
		}
	}
}

// Export loads orders matching the filter, restores the email columns from
// the stored references, and writes a workbook.
func (s *OrderService) Export(ctx context.Context, f store.OrderFilter, opts ExportOptions) ([]byte, error) {
	orders, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export orders: %w", err)
	}
	userEmails, err := invertEmailIndex(s.repo.UserIDsByEmail(ctx))
	if err != nil {
		return nil, fmt.Errorf("export orders: %w", err)
	}
	customerEmails, err := invertEmailIndex(s.repo.CustomerIDsByEmail(ctx))
	if err != nil {
		return nil, fmt.Errorf("export orders: %w", err)
	}

	rows := make([]OrderRow, len(orders))
	for i, o := range orders {
		items := make([]OrderItemRow, len(o.Items))
		for j, it := range o.Items {
			items[j] = OrderItemRow{
				ProductName: it.ProductName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				LineTotal:   it.TotalPrice,
			}
		}
		rows[i] = OrderRow{
			ID:          o.ID,
			Status:      o.Status,
			TotalAmount: o.TotalAmount,
			Tax:         o.Tax,
			Shipping:    o.Shipping,
			Discount:    o.Discount,
			Items:       items,
			OrderDate:   o.CreatedAt,
			ItemCount:   len(items),
		}
		if o.UserID != nil {
			rows[i].UserEmail = userEmails[*o.UserID]
		}
		if o.CustomerID != nil {
			rows[i].CustomerEmail = customerEmails[*o.CustomerID]
		}
	}

	m := orderExportMapping.Narrow(opts.Include, opts.Exclude)
	return excel.WriteAll(rows, m, "Orders")
}

// CreateTemplate produces an import template workbook.
func (s *OrderService) CreateTemplate(includeExample bool) ([]byte, error) {
	return excel.CreateTemplate(orderImportMapping, "Orders", includeExample)
}

// ValidateFile runs the structural pre-check against the import columns.
func (s *OrderService) ValidateFile(r io.Reader) *excel.ValidationResult {
	return excel.Validate(r, orderImportMapping.Headers(), s.cfg.MaxFileSize)
}

// OrderStatistics summarizes an order file without persisting it.
type OrderStatistics struct {
	TotalRows             int
	NewOrders             int
	UpdatedOrders         int
	StatusCounts          map[string]int
	TotalValue            decimal.Decimal
	CalculationMismatches int
	EstimatedDuration     time.Duration
}

// GetImportStatistics re-parses the stream and reports what an import of it
// would do.
func (s *OrderService) GetImportStatistics(ctx context.Context, r io.Reader) (*OrderStatistics, error) {
	res := excel.ReadAll(r, orderImportMapping, true)

	var ids []int64
	for i := range res.Data {
		if res.Data[i].ID > 0 {
			ids = append(ids, res.Data[i].ID)
		}
	}
	existing, err := s.repo.ExistingOrderIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("order statistics: %w", err)
	}

	stats := &OrderStatistics{
		TotalRows:         res.TotalRows,
		StatusCounts:      make(map[string]int),
		TotalValue:        decimal.Zero,
		EstimatedDuration: time.Duration(res.TotalRows) * orderRowCost,
	}

	for i := range res.Data {
		row := &res.Data[i]
		if row.ID > 0 && existing[row.ID] {
			stats.UpdatedOrders++
		} else {
			stats.NewOrders++
		}
		if canonical, ok := orderStatuses[normKey(row.Status)]; ok {
			stats.StatusCounts[canonical]++
		} else if row.Status != "" {
			stats.StatusCounts[row.Status]++
		}
		stats.TotalValue = stats.TotalValue.Add(row.TotalAmount)
		if row.ComputedTotal().Sub(row.TotalAmount).Abs().GreaterThan(currencyTolerance) {
			stats.CalculationMismatches++
		}
	}
	return stats, nil
}

// finish runs business validation and, unless validateOnly or a critical
// error is present, persists the surviving rows.
func (s *OrderService) finish(ctx context.Context, res *OrderImportResult, validateOnly bool) error {
	verrs, calcErrs, err := s.validate(ctx, res.Data)
	if err != nil {
		return err
	}
	res.Errors = append(res.Errors, verrs...)
	res.CalculationErrors = append(res.CalculationErrors, calcErrs...)
	res.Recount()

	if validateOnly || !res.OK() {
		return nil
	}
	return s.persist(ctx, res)
}

// validate applies the order business rules: email reference resolution,
// the fixed status set, and the total recomputation check. Resolved user and
// customer IDs are written back onto the rows; calculation mismatches come
// back separately from row errors.
func (s *OrderService) validate(ctx context.Context, rows []OrderRow) ([]excel.RowError, []OrderCalcError, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}

	users, err := s.repo.UserIDsByEmail(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("validate orders: %w", err)
	}
	customers, err := s.repo.CustomerIDsByEmail(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("validate orders: %w", err)
	}

	var errs []excel.RowError
	var calcErrs []OrderCalcError
	for i := range rows {
		row := &rows[i]

		if row.UserEmail != "" {
			if id, ok := users[normKey(row.UserEmail)]; ok {
				row.UserID = &id
			} else {
				errs = append(errs, businessError(row.RowNumber, "User Email",
					fmt.Sprintf("no user with email %q", row.UserEmail), excel.CodeForeignKeyNotFound))
			}
		}
		if row.CustomerEmail != "" {
			if id, ok := customers[normKey(row.CustomerEmail)]; ok {
				row.CustomerID = &id
			} else {
				errs = append(errs, businessError(row.RowNumber, "Customer Email",
					fmt.Sprintf("no customer with email %q", row.CustomerEmail), excel.CodeForeignKeyNotFound))
			}
		}

		if canonical, ok := orderStatuses[normKey(row.Status)]; ok {
			row.Status = canonical
		} else {
			errs = append(errs, businessError(row.RowNumber, "Status",
				fmt.Sprintf("unknown order status %q", row.Status), excel.CodeInvalidValue))
		}

		if computed := row.ComputedTotal(); computed.Sub(row.TotalAmount).Abs().GreaterThan(currencyTolerance) {
			calcErrs = append(calcErrs, OrderCalcError{
				Row:      row.RowNumber,
				OrderID:  row.ID,
				Expected: computed,
				Actual:   row.TotalAmount,
			})
		}

		errs = append(errs, ruleErrors(row.RowNumber, row.Validate())...)
	}
	return errs, calcErrs, nil
}

// persist saves every row free of Error-or-worse problems in one transaction.
func (s *OrderService) persist(ctx context.Context, res *OrderImportResult) error {
	bad := errorRowSet(res.Errors)

	orders := make([]store.Order, 0, len(res.Data))
	for i := range res.Data {
		row := &res.Data[i]
		if bad[row.RowNumber] {
			continue
		}
		items := make([]store.OrderItem, len(row.Items))
		for j, it := range row.Items {
			items[j] = store.OrderItem{
				ProductName: it.ProductName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				TotalPrice:  it.LineTotal,
			}
		}
		orders = append(orders, store.Order{
			ID:          row.ID,
			UserID:      row.UserID,
			CustomerID:  row.CustomerID,
			Status:      row.Status,
			TotalAmount: row.TotalAmount,
			Tax:         row.Tax,
			Shipping:    row.Shipping,
			Discount:    row.Discount,
			CreatedAt:   row.OrderDate,
			Items:       items,
		})
	}
	if len(orders) == 0 {
		return nil
	}

	if err := s.repo.SaveOrders(ctx, orders); err != nil {
		res.Errors = append(res.Errors, excel.RowError{
			Message:  fmt.Sprintf("saving orders failed: %v", err),
			Code:     excel.CodeBusinessRule,
			Severity: excel.SeverityCritical,
		})
		return fmt.Errorf("persist orders: %w", err)
	}
	return nil
}

// invertEmailIndex flips an email -> ID index for export display.
func invertEmailIndex(idx map[string]int64, err error) (map[int64]string, error) {
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(idx))
	for email, id := range idx {
		out[id] = email
	}
	return out, nil
}
