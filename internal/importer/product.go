package importer

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storekit/excelport/internal/config"
	"github.com/storekit/excelport/internal/excel"
	"github.com/storekit/excelport/internal/logging"
	"github.com/storekit/excelport/internal/store"
)

// ProductRow is the flat spreadsheet representation of a catalog product.
// CategoryName is resolved to CategoryID during validation; CreatedAt is
// export-only.
type ProductRow struct {
	ID           int64
	Name         string
	SKU          string
	Description  string
	Price        decimal.Decimal
	Stock        int64
	CategoryID   *int64
	CategoryName string
	IsActive     *bool

	CreatedAt time.Time

	RowNumber int
}

func (r *ProductRow) SetRowNumber(n int) { r.RowNumber = n }

// Active resolves the tri-state active flag: a blank cell means active.
func (r *ProductRow) Active() bool {
	if r.IsActive == nil {
		return true
	}
	return *r.IsActive
}

// Validate reports the row's own rule violations.
func (r *ProductRow) Validate() []string {
	var out []string
	if r.Price.IsNegative() {
		out = append(out, "price cannot be negative")
	}
	if r.Stock < 0 {
		out = append(out, "stock cannot be negative")
	}
	if len(r.SKU) > 64 {
		out = append(out, "sku must be at most 64 characters")
	}
	return out
}

var productImportMapping = excel.Mapping[ProductRow]{
	{
		Field: "id", Header: "ID",
		Parse: excel.Integer(func(r *ProductRow, v int64) { r.ID = v }),
		Value: func(r *ProductRow) any { return r.ID },
	},
	{
		Field: "name", Header: "Name", Required: true,
		Parse:   excel.Text(func(r *ProductRow, v string) { r.Name = v }),
		Value:   func(r *ProductRow) any { return r.Name },
		Example: "Wireless Mouse",
	},
	{
		Field: "sku", Header: "SKU", Required: true,
		Parse:   excel.Text(func(r *ProductRow, v string) { r.SKU = v }),
		Value:   func(r *ProductRow) any { return r.SKU },
		Example: "WM-1001",
	},
	{
		Field: "description", Header: "Description",
		Parse:   excel.Text(func(r *ProductRow, v string) { r.Description = v }),
		Value:   func(r *ProductRow) any { return r.Description },
		Example: "2.4 GHz wireless mouse",
	},
	{
		Field: "price", Header: "Price", Required: true,
		Parse:   excel.Number(func(r *ProductRow, v decimal.Decimal) { r.Price = v }),
		Value:   func(r *ProductRow) any { return r.Price },
		Example: "19.99",
	},
	{
		Field: "stock", Header: "Stock",
		Parse:   excel.Integer(func(r *ProductRow, v int64) { r.Stock = v }),
		Value:   func(r *ProductRow) any { return r.Stock },
		Example: "150",
	},
	{
		Field: "category_id", Header: "Category ID",
		Parse: excel.Integer(func(r *ProductRow, v int64) { r.CategoryID = &v }),
		Value: func(r *ProductRow) any { return r.CategoryID },
	},
	{
		Field: "category_name", Header: "Category Name",
		Parse:   excel.Text(func(r *ProductRow, v string) { r.CategoryName = v }),
		Value:   func(r *ProductRow) any { return r.CategoryName },
		Example: "",
	},
	{
		Field: "is_active", Header: "Is Active",
		Parse:   excel.Boolean(func(r *ProductRow, v bool) { r.IsActive = &v }),
		Value:   func(r *ProductRow) any { return r.Active() },
		Example: "yes",
	},
}

var productExportMapping = append(append(excel.Mapping[ProductRow]{}, productImportMapping...),
	excel.Column[ProductRow]{
		Field: "created_at", Header: "Created At",
		Value: func(r *ProductRow) any { return r.CreatedAt },
	},
)

// ProductRepository is the storage surface the product service needs.
// *store.Store satisfies it.
type ProductRepository interface {
	ListProducts(ctx context.Context, f store.ProductFilter) ([]store.Product, error)
	ExistingProductIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	ProductIDsBySKU(ctx context.Context) (map[string]int64, error)
	CategoryIDsByName(ctx context.Context) (map[string]int64, error)
	CategoryNames(ctx context.Context) (map[int64]string, error)
	SaveProducts(ctx context.Context, products []store.Product) error
}

// ProductService imports and exports catalog products.
type ProductService struct {
	repo ProductRepository
	cfg  config.ImportConfig
}

func NewProductService(repo ProductRepository, cfg config.ImportConfig) *ProductService {
	return &ProductService{repo: repo, cfg: cfg}
}

// Import parses the stream, runs business validation, and persists surviving
// rows in one transaction. Same contract as CategoryService.Import.
func (s *ProductService) Import(ctx context.Context, r io.Reader, validateOnly bool) (*excel.Result[ProductRow], error) {
	runID := newRunID()
	ctx = logging.WithImportID(ctx, runID)

	res := excel.ReadAll(r, productImportMapping, true)
	res.Metadata["import_id"] = runID

	err := s.finish(ctx, res, validateOnly)
	logging.WithFields(ctx, "entity", "product").Info("import finished",
		"total", res.TotalRows, "success", res.SuccessRows, "errors", res.ErrorRows, "validate_only", validateOnly)
	return res, err
}

// ImportInBatches streams the file chunk by chunk with per-chunk persistence.
func (s *ProductService) ImportInBatches(ctx context.Context, r io.Reader, batchSize int, progress excel.ProgressFunc) iter.Seq2[*excel.Result[ProductRow], error] {
	return func(yield func(*excel.Result[ProductRow], error) bool) {
		runID := newRunID()
		ctx := logging.WithImportID(ctx, runID)

		it, err := excel.ReadInChunks(r, productImportMapping, batchSize, true, progress)
		if err != nil {
			yield(nil, fmt.Errorf("read products in chunks: %w", err))
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
			yield(nil, fmt.Errorf("read products in chunks: %w", err))
		}
	}
}

// Export loads products matching the filter, attaches the category name
// display field, and writes a workbook.
func (s *ProductService) Export(ctx context.Context, f store.ProductFilter, opts ExportOptions) ([]byte, error) {
	products, err := s.repo.ListProducts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export products: %w", err)
	}
	names, err := s.repo.CategoryNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("export products: %w", err)
	}

	rows := make([]ProductRow, len(products))
	for i, p := range products {
		active := p.IsActive
		rows[i] = ProductRow{
			ID:          p.ID,
			Name:        p.Name,
			SKU:         p.SKU,
			Description: p.Description,
			Price:       p.Price,
			Stock:       int64(p.Stock),
			CategoryID:  p.CategoryID,
			IsActive:    &active,
			CreatedAt:   p.CreatedAt,
		}
		if p.CategoryID != nil {
			rows[i].CategoryName = names[*p.CategoryID]
		}
	}

	m := productExportMapping.Narrow(opts.Include, opts.Exclude)
	return excel.WriteAll(rows, m, "Products")
}

// CreateTemplate produces an import template workbook.
func (s *ProductService) CreateTemplate(includeExample bool) ([]byte, error) {
	return excel.CreateTemplate(productImportMapping, "Products", includeExample)
}

// ValidateFile runs the structural pre-check against the import columns.
func (s *ProductService) ValidateFile(r io.Reader) *excel.ValidationResult {
	return excel.Validate(r, productImportMapping.Headers(), s.cfg.MaxFileSize)
}

// ProductStatistics summarizes a product file without persisting it.
type ProductStatistics struct {
	TotalRows          int
	NewProducts        int
	UpdatedProducts    int
	DistinctCategories []string
	DuplicateSKUs      []string
	TotalStockValue    decimal.Decimal
	EstimatedDuration  time.Duration
}

// GetImportStatistics re-parses the stream and reports what an import of it
// would do.
func (s *ProductService) GetImportStatistics(ctx context.Context, r io.Reader) (*ProductStatistics, error) {
	res := excel.ReadAll(r, productImportMapping, true)

	var ids []int64
	for i := range res.Data {
		if res.Data[i].ID > 0 {
			ids = append(ids, res.Data[i].ID)
		}
	}
	existing, err := s.repo.ExistingProductIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("product statistics: %w", err)
	}

	stats := &ProductStatistics{
		TotalRows:         res.TotalRows,
		TotalStockValue:   decimal.Zero,
		EstimatedDuration: time.Duration(res.TotalRows) * productRowCost,
	}

	categories := make(map[string]bool)
	seen := make(map[string]bool)
	for i := range res.Data {
		row := &res.Data[i]
		if row.ID > 0 && existing[row.ID] {
			stats.UpdatedProducts++
		} else {
			stats.NewProducts++
		}
		if row.CategoryName != "" && !categories[normKey(row.CategoryName)] {
			categories[normKey(row.CategoryName)] = true
			stats.DistinctCategories = append(stats.DistinctCategories, row.CategoryName)
		}
		key := normKey(row.SKU)
		if key != "" && seen[key] {
			stats.DuplicateSKUs = append(stats.DuplicateSKUs, row.SKU)
		}
		seen[key] = true
		stats.TotalStockValue = stats.TotalStockValue.Add(row.Price.Mul(decimal.NewFromInt(row.Stock)))
	}
	return stats, nil
}

// finish runs business validation and, unless validateOnly or a critical
// error is present, persists the surviving rows.
func (s *ProductService) finish(ctx context.Context, res *excel.Result[ProductRow], validateOnly bool) error {
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

// validate applies the product business rules: category name resolution and
// SKU uniqueness against storage and sibling rows. Resolved category IDs are
// written back onto the rows.
func (s *ProductService) validate(ctx context.Context, rows []ProductRow) ([]excel.RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	bySKU, err := s.repo.ProductIDsBySKU(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate products: %w", err)
	}
	categories, err := s.repo.CategoryIDsByName(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate products: %w", err)
	}

	var errs []excel.RowError
	seen := make(map[string]bool, len(rows))
	for i := range rows {
		row := &rows[i]

		if row.CategoryID == nil && row.CategoryName != "" {
			if id, ok := categories[normKey(row.CategoryName)]; ok {
				row.CategoryID = &id
			} else {
				errs = append(errs, businessError(row.RowNumber, "Category Name",
					fmt.Sprintf("category %q does not exist", row.CategoryName), excel.CodeForeignKeyNotFound))
			}
		}

		key := normKey(row.SKU)
		if id, ok := bySKU[key]; ok && id != row.ID {
			errs = append(errs, businessError(row.RowNumber, "SKU",
				fmt.Sprintf("sku %q already belongs to another product", row.SKU), excel.CodeDuplicateValue))
		}
		if key != "" && seen[key] {
			errs = append(errs, businessError(row.RowNumber, "SKU",
				fmt.Sprintf("sku %q appears more than once in the file", row.SKU), excel.CodeDuplicateValue))
		}
		seen[key] = true

		errs = append(errs, ruleErrors(row.RowNumber, row.Validate())...)
	}
	return errs, nil
}

// persist saves every row free of Error-or-worse problems in one transaction.
func (s *ProductService) persist(ctx context.Context, res *excel.Result[ProductRow]) error {
	bad := errorRowSet(res.Errors)

	products := make([]store.Product, 0, len(res.Data))
	for i := range res.Data {
		row := &res.Data[i]
		if bad[row.RowNumber] {
			continue
		}
		products = append(products, store.Product{
			ID:          row.ID,
			Name:        row.Name,
			SKU:         row.SKU,
			Description: row.Description,
			Price:       row.Price,
			Stock:       int(row.Stock),
			CategoryID:  row.CategoryID,
			IsActive:    row.Active(),
		})
	}
	if len(products) == 0 {
		return nil
	}

	if err := s.repo.SaveProducts(ctx, products); err != nil {
		res.Errors = append(res.Errors, excel.RowError{
			Message:  fmt.Sprintf("saving products failed: %v", err),
			Code:     excel.CodeBusinessRule,
			Severity: excel.SeverityCritical,
		})
		return fmt.Errorf("persist products: %w", err)
	}
	return nil
}
