package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const categoryColumns = "id, name, description, parent_id, is_active, created_at"

// ListCategories returns categories matching the filter, ordered by name.
func (s *Store) ListCategories(ctx context.Context, f CategoryFilter) ([]Category, error) {
	q := "SELECT " + categoryColumns + " FROM categories WHERE 1=1"
	var args []any
	if f.ParentID != nil {
		args = append(args, *f.ParentID)
		q += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if f.ActiveOnly {
		q += " AND is_active"
	}
	q += " ORDER BY name"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

// GetCategory returns one category by ID, or pgx.ErrNoRows.
func (s *Store) GetCategory(ctx context.Context, id int64) (*Category, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = $1", id)
	var c Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ParentID, &c.IsActive, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return &c, nil
}

// ExistingCategoryIDs reports which of the supplied IDs are present.
func (s *Store) ExistingCategoryIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return s.existingIDs(ctx, "categories", ids)
}

// CategoryIDsByName returns a lowercase name -> ID index of every category.
// Import validation resolves ParentName references through it in one query.
func (s *Store) CategoryIDsByName(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM categories")
	if err != nil {
		return nil, fmt.Errorf("index category names: %w", err)
	}
	defer rows.Close()

	idx := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan category name: %w", err)
		}
		idx[strings.ToLower(strings.TrimSpace(name))] = id
	}
	return idx, rows.Err()
}

// CategoryParents returns the ID -> parent ID map of every stored category.
// Cycle detection walks this map merged with the in-file rows.
func (s *Store) CategoryParents(ctx context.Context) (map[int64]*int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, parent_id FROM categories")
	if err != nil {
		return nil, fmt.Errorf("index category parents: %w", err)
	}
	defer rows.Close()

	parents := make(map[int64]*int64)
	for rows.Next() {
		var id int64
		var parent *int64
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, fmt.Errorf("scan category parent: %w", err)
		}
		parents[id] = parent
	}
	return parents, rows.Err()
}

// CategoryNames returns the ID -> name map of every stored category, used for
// the export-only parent name column.
func (s *Store) CategoryNames(ctx context.Context) (map[int64]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM categories")
	if err != nil {
		return nil, fmt.Errorf("index categories: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// ProductCountsByCategory returns the number of products per category ID.
// Used for the export-only product count column.
func (s *Store) ProductCountsByCategory(ctx context.Context) (map[int64]int, error) {
	rows, err := s.pool.Query(ctx, "SELECT category_id, COUNT(*) FROM products WHERE category_id IS NOT NULL GROUP BY category_id")
	if err != nil {
		return nil, fmt.Errorf("count products per category: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan product count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// SaveCategories persists rows inside one transaction: positive ID updates,
// zero ID inserts. Any failure rolls back every row of the call.
func (s *Store) SaveCategories(ctx context.Context, cats []Category) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for i := range cats {
			c := &cats[i]
			if c.ID > 0 {
				tag, err := tx.Exec(ctx,
					`UPDATE categories SET name = $2, description = $3, parent_id = $4, is_active = $5 WHERE id = $1`,
					c.ID, c.Name, c.Description, c.ParentID, c.IsActive)
				if err != nil {
					return fmt.Errorf("update category %d: %w", c.ID, err)
				}
				if tag.RowsAffected() == 0 {
					return fmt.Errorf("update category %d: not found", c.ID)
				}
				continue
			}
			err := tx.QueryRow(ctx,
				`INSERT INTO categories (name, description, parent_id, is_active) VALUES ($1, $2, $3, $4) RETURNING id`,
				c.Name, c.Description, c.ParentID, c.IsActive).Scan(&c.ID)
			if err != nil {
				return fmt.Errorf("insert category %q: %w", c.Name, err)
			}
		}
		return nil
	})
}

func scanCategories(rows pgx.Rows) ([]Category, error) {
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ParentID, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// existingIDs probes a table for the supplied primary keys.
func (s *Store) existingIDs(ctx context.Context, table string, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx, "SELECT id FROM "+table+" WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("probe %s ids: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}
