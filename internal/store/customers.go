package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const customerColumns = "id, first_name, last_name, email, phone, country, city, address, postal_code, is_active, created_at"

// ListCustomers returns customers matching the filter, ordered by email.
func (s *Store) ListCustomers(ctx context.Context, f CustomerFilter) ([]Customer, error) {
	q := "SELECT " + customerColumns + " FROM customers WHERE 1=1"
	var args []any
	if f.Country != "" {
		args = append(args, f.Country)
		q += fmt.Sprintf(" AND country = $%d", len(args))
	}
	if f.ActiveOnly {
		q += " AND is_active"
	}
	q += " ORDER BY email"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
			&c.Country, &c.City, &c.Address, &c.PostalCode, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ExistingCustomerIDs reports which of the supplied IDs are present.
func (s *Store) ExistingCustomerIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return s.existingIDs(ctx, "customers", ids)
}

// CustomerOrderTotals returns lifetime order value per customer ID. Feeds the
// export-only customer segment column.
func (s *Store) CustomerOrderTotals(ctx context.Context) (map[int64]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT customer_id, COALESCE(SUM(total_amount), 0) FROM orders WHERE customer_id IS NOT NULL GROUP BY customer_id")
	if err != nil {
		return nil, fmt.Errorf("sum customer orders: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var total decimal.Decimal
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan order total: %w", err)
		}
		totals[id] = total
	}
	return totals, rows.Err()
}

// SaveCustomers persists rows inside one transaction: positive ID updates,
// zero ID inserts.
func (s *Store) SaveCustomers(ctx context.Context, customers []Customer) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for i := range customers {
			c := &customers[i]
			if c.ID > 0 {
				tag, err := tx.Exec(ctx,
					`UPDATE customers SET first_name = $2, last_name = $3, email = $4, phone = $5,
					 country = $6, city = $7, address = $8, postal_code = $9, is_active = $10
					 WHERE id = $1`,
					c.ID, c.FirstName, c.LastName, c.Email, c.Phone,
					c.Country, c.City, c.Address, c.PostalCode, c.IsActive)
				if err != nil {
					return fmt.Errorf("update customer %d: %w", c.ID, err)
				}
				if tag.RowsAffected() == 0 {
					return fmt.Errorf("update customer %d: not found", c.ID)
				}
				continue
			}
			err := tx.QueryRow(ctx,
				`INSERT INTO customers (first_name, last_name, email, phone, country, city, address, postal_code, is_active)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
				c.FirstName, c.LastName, c.Email, c.Phone,
				c.Country, c.City, c.Address, c.PostalCode, c.IsActive).Scan(&c.ID)
			if err != nil {
				return fmt.Errorf("insert customer %q: %w", c.Email, err)
			}
		}
		return nil
	})
}
