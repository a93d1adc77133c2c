package importer

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/storekit/excelport/internal/config"
	"github.com/storekit/excelport/internal/excel"
	"github.com/storekit/excelport/internal/logging"
	"github.com/storekit/excelport/internal/store"
)

// CategoryRow is the flat spreadsheet representation of a catalog category.
// ProductCount and CreatedAt are export-only display fields.
type CategoryRow struct {
	ID          int64
	Name        string
	Description string
	ParentID    *int64
	ParentName  string
	IsActive    *bool

	ProductCount int
	CreatedAt    time.Time

	RowNumber int
}

func (r *CategoryRow) SetRowNumber(n int) { r.RowNumber = n }

// Active resolves the tri-state active flag: a blank cell means active.
func (r *CategoryRow) Active() bool {
	if r.IsActive == nil {
		return true
	}
	return *r.IsActive
}

// Validate reports the row's own rule violations.
func (r *CategoryRow) Validate() []string {
	var out []string
	if len(r.Name) > 255 {
		out = append(out, "name must be at most 255 characters")
	}
	if r.ID > 0 && r.ParentID != nil && *r.ParentID == r.ID {
		out = append(out, "category cannot be its own parent")
	}
	return out
}

var categoryImportMapping = excel.Mapping[CategoryRow]{
	{
		Field: "id", Header: "ID",
		Parse:   excel.Integer(func(r *CategoryRow, v int64) { r.ID = v }),
		Value:   func(r *CategoryRow) any { return r.ID },
		Example: "",
	},
	{
		Field: "name", Header: "Name", Required: true,
		Parse:   excel.Text(func(r *CategoryRow, v string) { r.Name = v }),
		Value:   func(r *CategoryRow) any { return r.Name },
		Example: "Electronics",
	},
	{
		Field: "description", Header: "Description",
		Parse:   excel.Text(func(r *CategoryRow, v string) { r.Description = v }),
		Value:   func(r *CategoryRow) any { return r.Description },
		Example: "Phones, laptops and accessories",
	},
	{
		Field: "parent_id", Header: "Parent ID",
		Parse:   excel.Integer(func(r *CategoryRow, v int64) { r.ParentID = &v }),
		Value:   func(r *CategoryRow) any { return r.ParentID },
		Example: "",
	},
	{
		Field: "parent_name", Header: "Parent Name",
		Parse:   excel.Text(func(r *CategoryRow, v string) { r.ParentName = v }),
		Value:   func(r *CategoryRow) any { return r.ParentName },
		Example: "",
	},
	{
		Field: "is_active", Header: "Is Active",
		Parse:   excel.Boolean(func(r *CategoryRow, v bool) { r.IsActive = &v }),
		Value:   func(r *CategoryRow) any { return r.Active() },
		Example: "yes",
	},
}

var categoryExportMapping = append(append(excel.Mapping[CategoryRow]{}, categoryImportMapping...),
	excel.Column[CategoryRow]{
		Field: "product_count", Header: "Product Count",
		Value: func(r *CategoryRow) any { return r.ProductCount },
	},
	excel.Column[CategoryRow]{
		Field: "created_at", Header: "Created At",
		Value: func(r *CategoryRow) any { return r.CreatedAt },
	},
)

// CategoryRepository is the storage surface the category service needs.
// *store.Store satisfies it.
type CategoryRepository interface {
	ListCategories(ctx context.Context, f store.CategoryFilter) ([]store.Category, error)
	ExistingCategoryIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	CategoryIDsByName(ctx context.Context) (map[string]int64, error)
	CategoryParents(ctx context.Context) (map[int64]*int64, error)
	CategoryNames(ctx context.Context) (map[int64]string, error)
	ProductCountsByCategory(ctx context.Context) (map[int64]int, error)
	SaveCategories(ctx context.Context, cats []store.Category) error
}

// CategoryService imports and exports catalog categories.
type CategoryService struct {
	repo CategoryRepository
	cfg  config.ImportConfig
}

func NewCategoryService(repo CategoryRepository, cfg config.ImportConfig) *CategoryService {
	return &CategoryService{repo: repo, cfg: cfg}
}

// Import parses the stream, runs business validation, and persists surviving
// rows in one transaction. With validateOnly, or when any critical error is
// present, storage is never touched. A persistence failure is both recorded
// on the result and returned.
func (s *CategoryService) Import(ctx context.Context, r io.Reader, validateOnly bool) (*excel.Result[CategoryRow], error) {
	runID := newRunID()
	ctx = logging.WithImportID(ctx, runID)

	res := excel.ReadAll(r, categoryImportMapping, true)
	res.Metadata["import_id"] = runID

	err := s.finish(ctx, res, validateOnly)
	logging.WithFields(ctx, "entity", "category").Info("import finished",
		"total", res.TotalRows, "success", res.SuccessRows, "errors", res.ErrorRows, "validate_only", validateOnly)
	return res, err
}

// ImportInBatches streams the file chunk by chunk; each chunk is validated
// and persisted independently, so earlier chunks stay committed when a later
// one fails.
func (s *CategoryService) ImportInBatches(ctx context.Context, r io.Reader, batchSize int, progress excel.ProgressFunc) iter.Seq2[*excel.Result[CategoryRow], error] {
	return func(yield func(*excel.Result[CategoryRow], error) bool) {
		runID := newRunID()
		ctx := logging.WithImportID(ctx, runID)

		it, err := excel.ReadInChunks(r, categoryImportMapping, batchSize, true, progress)
		if err != nil {
			yield(nil, fmt.Errorf("read categories in chunks: %w", err))
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
			yield(nil, fmt.Errorf("read categories in chunks: %w", err))
		}
	}
}

// Export loads categories matching the filter, attaches the parent name and
// product count display fields, and writes a workbook.
func (s *CategoryService) Export(ctx context.Context, f store.CategoryFilter, opts ExportOptions) ([]byte, error) {
	cats, err := s.repo.ListCategories(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export categories: %w", err)
	}
	names, err := s.repo.CategoryNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("export categories: %w", err)
	}
	counts, err := s.repo.ProductCountsByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("export categories: %w", err)
	}

	rows := make([]CategoryRow, len(cats))
	for i, c := range cats {
		active := c.IsActive
		rows[i] = CategoryRow{
			ID:           c.ID,
			Name:         c.Name,
			Description:  c.Description,
			ParentID:     c.ParentID,
			IsActive:     &active,
			ProductCount: counts[c.ID],
			CreatedAt:    c.CreatedAt,
		}
		if c.ParentID != nil {
			rows[i].ParentName = names[*c.ParentID]
		}
	}

	m := categoryExportMapping.Narrow(opts.Include, opts.Exclude)
	return excel.WriteAll(rows, m, "Categories")
}

// CreateTemplate produces an import template workbook.
func (s *CategoryService) CreateTemplate(includeExample bool) ([]byte, error) {
	return excel.CreateTemplate(categoryImportMapping, "Categories", includeExample)
}

// ValidateFile runs the structural pre-check against the import columns.
func (s *CategoryService) ValidateFile(r io.Reader) *excel.ValidationResult {
	return excel.Validate(r, categoryImportMapping.Headers(), s.cfg.MaxFileSize)
}

// CategoryStatistics summarizes a category file without persisting it.
type CategoryStatistics struct {
	TotalRows         int
	NewCategories     int
	UpdatedCategories int
	DistinctParents   []string
	DuplicateNames    []string
	EstimatedDuration time.Duration
}

// GetImportStatistics re-parses the stream and reports what an import of it
// would do.
func (s *CategoryService) GetImportStatistics(ctx context.Context, r io.Reader) (*CategoryStatistics, error) {
	res := excel.ReadAll(r, categoryImportMapping, true)

	var ids []int64
	for i := range res.Data {
		if res.Data[i].ID > 0 {
			ids = append(ids, res.Data[i].ID)
		}
	}
	existing, err := s.repo.ExistingCategoryIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("category statistics: %w", err)
	}

	stats := &CategoryStatistics{
		TotalRows:         res.TotalRows,
		EstimatedDuration: time.Duration(res.TotalRows) * categoryRowCost,
	}

	parents := make(map[string]bool)
	seen := make(map[string]bool)
	for i := range res.Data {
		row := &res.Data[i]
		if row.ID > 0 && existing[row.ID] {
			stats.UpdatedCategories++
		} else {
			stats.NewCategories++
		}
		if row.ParentName != "" && !parents[normKey(row.ParentName)] {
			parents[normKey(row.ParentName)] = true
			stats.DistinctParents = append(stats.DistinctParents, row.ParentName)
		}
		key := normKey(row.Name)
		if seen[key] {
			stats.DuplicateNames = append(stats.DuplicateNames, row.Name)
		}
		seen[key] = true
	}
	return stats, nil
}

// finish runs business validation and, unless validateOnly or a critical
// error is present, persists the surviving rows.
func (s *CategoryService) finish(ctx context.Context, res *excel.Result[CategoryRow], validateOnly bool) error {
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

// validate applies the category business rules: parent name resolution, name
// uniqueness against storage and sibling rows, and circular parent detection
// over the merged in-file plus stored hierarchy. Resolved parent IDs are
// written back onto the rows.
func (s *CategoryService) validate(ctx context.Context, rows []CategoryRow) ([]excel.RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	byName, err := s.repo.CategoryIDsByName(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate categories: %w", err)
	}
	parents, err := s.repo.CategoryParents(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate categories: %w", err)
	}

	var errs []excel.RowError

	// Resolve parent names once, before cycle detection walks the hierarchy.
	for i := range rows {
		row := &rows[i]
		if row.ParentID != nil || row.ParentName == "" {
			continue
		}
		id, ok := byName[normKey(row.ParentName)]
		if !ok {
			errs = append(errs, businessError(row.RowNumber, "Parent Name",
				fmt.Sprintf("parent category %q does not exist", row.ParentName), excel.CodeForeignKeyNotFound))
			continue
		}
		row.ParentID = &id
	}

	// Merged hierarchy: stored parents overlaid with the file's own updates.
	merged := make(map[int64]*int64, len(parents)+len(rows))
	for id, p := range parents {
		merged[id] = p
	}
	for i := range rows {
		if rows[i].ID > 0 {
			merged[rows[i].ID] = rows[i].ParentID
		}
	}

	seen := make(map[string]bool, len(rows))
	for i := range rows {
		row := &rows[i]

		if id, ok := byName[normKey(row.Name)]; ok && id != row.ID {
			errs = append(errs, businessError(row.RowNumber, "Name",
				fmt.Sprintf("category name %q already exists", row.Name), excel.CodeDuplicateValue))
		}
		key := normKey(row.Name)
		if seen[key] {
			errs = append(errs, businessError(row.RowNumber, "Name",
				fmt.Sprintf("category name %q appears more than once in the file", row.Name), excel.CodeDuplicateValue))
		}
		seen[key] = true

		if hasParentCycle(row.ID, row.ParentID, merged) {
			errs = append(errs, businessError(row.RowNumber, "Parent ID",
				"circular parent reference", excel.CodeBusinessRule))
		}

		errs = append(errs, ruleErrors(row.RowNumber, row.Validate())...)
	}
	return errs, nil
}

// hasParentCycle walks the ancestor chain with a visited set; a repeated ID
// signals a cycle.
func hasParentCycle(id int64, parent *int64, parents map[int64]*int64) bool {
	visited := make(map[int64]bool)
	if id > 0 {
		visited[id] = true
	}
	for cur := parent; cur != nil; cur = parents[*cur] {
		if visited[*cur] {
			return true
		}
		visited[*cur] = true
	}
	return false
}

// persist saves every row free of Error-or-worse problems in one transaction.
func (s *CategoryService) persist(ctx context.Context, res *excel.Result[CategoryRow]) error {
	bad := errorRowSet(res.Errors)

	cats := make([]store.Category, 0, len(res.Data))
	for i := range res.Data {
		row := &res.Data[i]
		if bad[row.RowNumber] {
			continue
		}
		cats = append(cats, store.Category{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
			ParentID:    row.ParentID,
			IsActive:    row.Active(),
		})
	}
	if len(cats) == 0 {
		return nil
	}

	if err := s.repo.SaveCategories(ctx, cats); err != nil {
		res.Errors = append(res.Errors, excel.RowError{
			Message:  fmt.Sprintf("saving categories failed: %v", err),
			Code:     excel.CodeBusinessRule,
			Severity: excel.SeverityCritical,
		})
		return fmt.Errorf("persist categories: %w", err)
	}
	return nil
}

func normKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
