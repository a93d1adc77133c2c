package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const productColumns = "id, name, sku, description, price, stock, category_id, is_active, created_at"

// ListProducts returns products matching the filter, ordered by SKU.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	q := "SELECT " + productColumns + " FROM products WHERE 1=1"
	var args []any
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		q += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if f.ActiveOnly {
		q += " AND is_active"
	}
	q += " ORDER BY sku"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Description,
			&p.Price, &p.Stock, &p.CategoryID, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ExistingProductIDs reports which of the supplied IDs are present.
func (s *Store) ExistingProductIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return s.existingIDs(ctx, "products", ids)
}

// ProductIDsBySKU returns a lowercase SKU -> ID index of every product.
// Import validation checks SKU uniqueness through it in one query.
func (s *Store) ProductIDsBySKU(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, sku FROM products")
	if err != nil {
		return nil, fmt.Errorf("index product skus: %w", err)
	}
	defer rows.Close()

	idx := make(map[string]int64)
	for rows.Next() {
		var id int64
		var sku string
		if err := rows.Scan(&id, &sku); err != nil {
			return nil, fmt.Errorf("scan product sku: %w", err)
		}
		idx[strings.ToLower(strings.TrimSpace(sku))] = id
	}
	return idx, rows.Err()
}

// SaveProducts persists rows inside one transaction: positive ID updates,
// zero ID inserts.
func (s *Store) SaveProducts(ctx context.Context, products []Product) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for i := range products {
			p := &products[i]
			if p.ID > 0 {
				tag, err := tx.Exec(ctx,
					`UPDATE products SET name = $2, sku = $3, description = $4, price = $5,
					 stock = $6, category_id = $7, is_active = $8
					 WHERE id = $1`,
					p.ID, p.Name, p.SKU, p.Description, p.Price,
					p.Stock, p.CategoryID, p.IsActive)
				if err != nil {
					return fmt.Errorf("update product %d: %w", p.ID, err)
				}
				if tag.RowsAffected() == 0 {
					return fmt.Errorf("update product %d: not found", p.ID)
				}
				continue
			}
			err := tx.QueryRow(ctx,
				`INSERT INTO products (name, sku, description, price, stock, category_id, is_active)
				 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
				p.Name, p.SKU, p.Description, p.Price,
				p.Stock, p.CategoryID, p.IsActive).Scan(&p.ID)
			if err != nil {
				return fmt.Errorf("insert product %q: %w", p.SKU, err)
			}
		}
		return nil
	})
}
