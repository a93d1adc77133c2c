package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const orderColumns = "id, user_id, customer_id, status, total_amount, tax, shipping, discount, created_at"

// ListOrders returns orders matching the filter with their line items.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	q := "SELECT " + orderColumns + " FROM orders WHERE 1=1"
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND LOWER(status) = LOWER($%d)", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	q += " ORDER BY id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	index := make(map[int64]int)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.CustomerID, &o.Status,
			&o.TotalAmount, &o.Tax, &o.Shipping, &o.Discount, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		index[o.ID] = len(out)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(out))
	for _, o := range out {
		ids = append(ids, o.ID)
	}
	items, err := s.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if i, ok := index[item.OrderID]; ok {
			out[i].Items = append(out[i].Items, item)
		}
	}
	return out, nil
}

// ExistingOrderIDs reports which of the supplied IDs are present.
func (s *Store) ExistingOrderIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return s.existingIDs(ctx, "orders", ids)
}

// UserIDsByEmail returns a lowercase-email to ID map for all users.
func (s *Store) UserIDsByEmail(ctx context.Context) (map[string]int64, error) {
	return s.emailIndex(ctx, "users")
}

// CustomerIDsByEmail returns a lowercase-email to ID map for all customers.
func (s *Store) CustomerIDsByEmail(ctx context.Context) (map[string]int64, error) {
	return s.emailIndex(ctx, "customers")
}

// SaveOrders persists orders and their line items inside one transaction:
// positive ID updates (items are replaced), zero ID inserts.
func (s *Store) SaveOrders(ctx context.Context, orders []Order) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for i := range orders {
			o := &orders[i]
			if o.ID > 0 {
				tag, err := tx.Exec(ctx,
					`UPDATE orders SET user_id = $2, customer_id = $3, status = $4,
					 total_amount = $5, tax = $6, shipping = $7, discount = $8
					 WHERE id = $1`,
					o.ID, o.UserID, o.CustomerID, o.Status,
					o.TotalAmount, o.Tax, o.Shipping, o.Discount)
				if err != nil {
					return fmt.Errorf("update order %d: %w", o.ID, err)
				}
				if tag.RowsAffected() == 0 {
					return fmt.Errorf("update order %d: not found", o.ID)
				}
				if _, err := tx.Exec(ctx, "DELETE FROM order_items WHERE order_id = $1", o.ID); err != nil {
					return fmt.Errorf("clear items for order %d: %w", o.ID, err)
				}
			} else {
				err := tx.QueryRow(ctx,
					`INSERT INTO orders (user_id, customer_id, status, total_amount, tax, shipping, discount)
					 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
					o.UserID, o.CustomerID, o.Status,
					o.TotalAmount, o.Tax, o.Shipping, o.Discount).Scan(&o.ID)
				if err != nil {
					return fmt.Errorf("insert order: %w", err)
				}
			}

			for j := range o.Items {
				item := &o.Items[j]
				item.OrderID = o.ID
				err := tx.QueryRow(ctx,
					`INSERT INTO order_items (order_id, product_name, quantity, unit_price, total_price)
					 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
					item.OrderID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice).Scan(&item.ID)
				if err != nil {
					return fmt.Errorf("insert item for order %d: %w", o.ID, err)
				}
			}
		}
		return nil
	})
}

func (s *Store) orderItems(ctx context.Context, orderIDs []int64) ([]OrderItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, product_name, quantity, unit_price, total_price
		 FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) emailIndex(ctx context.Context, table string) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, email FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("index %s emails: %w", table, err)
	}
	defer rows.Close()

	index := make(map[string]int64)
	for rows.Next() {
		var id int64
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		index[strings.ToLower(email)] = id
	}
	return index, rows.Err()
}
