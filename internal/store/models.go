package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is a node in the catalog hierarchy. ParentID is nil for roots.
type Category struct {
	ID          int64
	Name        string
	Description string
	ParentID    *int64
	IsActive    bool
	CreatedAt   time.Time
}

// Customer is a storefront customer record.
type Customer struct {
	ID         int64
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Country    string
	City       string
	Address    string
	PostalCode string
	IsActive   bool
	CreatedAt  time.Time
}

// Order is a placed order plus its line items. UserID and CustomerID are
// optional references resolved by email during import.
type Order struct {
	ID          int64
	UserID      *int64
	CustomerID  *int64
	Status      string
	TotalAmount decimal.Decimal
	Tax         decimal.Decimal
	Shipping    decimal.Decimal
	Discount    decimal.Decimal
	CreatedAt   time.Time
	Items       []OrderItem
}

// OrderItem is one line of an order. TotalPrice is stored, not derived, so
// import validation can cross-check it against the order total.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Product is a sellable catalog item. SKU is unique case-insensitively.
type Product struct {
	ID          int64
	Name        string
	SKU         string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  *int64
	IsActive    bool
	CreatedAt   time.Time
}

// User is an account that can place orders. Only the fields the import core
// needs for email resolution are modeled here.
type User struct {
	ID    int64
	Email string
}

// CategoryFilter narrows a category export.
type CategoryFilter struct {
	ParentID   *int64
	ActiveOnly bool
}

// CustomerFilter narrows a customer export.
type CustomerFilter struct {
	Country    string
	ActiveOnly bool
}

// OrderFilter narrows an order export.
type OrderFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
}

// ProductFilter narrows a product export.
type ProductFilter struct {
	CategoryID *int64
	ActiveOnly bool
}
