package importer

// Hand-rolled repository fakes. Lookup maps are returned as-is; saves are
// recorded per call so tests can assert batch boundaries.

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/storekit/excelport/internal/store"
)

type fakeCategoryRepo struct {
	list     []store.Category
	existing map[int64]bool
	byName   map[string]int64
	parents  map[int64]*int64
	names    map[int64]string
	counts   map[int64]int
	saved    [][]store.Category
	saveErr  error
}

func (f *fakeCategoryRepo) ListCategories(context.Context, store.CategoryFilter) ([]store.Category, error) {
	return f.list, nil
}

func (f *fakeCategoryRepo) ExistingCategoryIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	return probe(f.existing, ids), nil
}

func (f *fakeCategoryRepo) CategoryIDsByName(context.Context) (map[string]int64, error) {
	return f.byName, nil
}

func (f *fakeCategoryRepo) CategoryParents(context.Context) (map[int64]*int64, error) {
	return f.parents, nil
}

func (f *fakeCategoryRepo) CategoryNames(context.Context) (map[int64]string, error) {
	return f.names, nil
}

func (f *fakeCategoryRepo) ProductCountsByCategory(context.Context) (map[int64]int, error) {
	return f.counts, nil
}

func (f *fakeCategoryRepo) SaveCategories(_ context.Context, cats []store.Category) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, cats)
	return nil
}

type fakeCustomerRepo struct {
	list     []store.Customer
	existing map[int64]bool
	byEmail  map[string]int64
	totals   map[int64]decimal.Decimal
	saved    [][]store.Customer
	saveErr  error
}

func (f *fakeCustomerRepo) ListCustomers(context.Context, store.CustomerFilter) ([]store.Customer, error) {
	return f.list, nil
}

func (f *fakeCustomerRepo) ExistingCustomerIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	return probe(f.existing, ids), nil
}

func (f *fakeCustomerRepo) CustomerIDsByEmail(context.Context) (map[string]int64, error) {
	return f.byEmail, nil
}

func (f *fakeCustomerRepo) CustomerOrderTotals(context.Context) (map[int64]decimal.Decimal, error) {
	return f.totals, nil
}

func (f *fakeCustomerRepo) SaveCustomers(_ context.Context, customers []store.Customer) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, customers)
	return nil
}

type fakeOrderRepo struct {
	list       []store.Order
	existing   map[int64]bool
	userEmails map[string]int64
	custEmails map[string]int64
	saved      [][]store.Order
	saveErr    error
}

func (f *fakeOrderRepo) ListOrders(context.Context, store.OrderFilter) ([]store.Order, error) {
	return f.list, nil
}

func (f *fakeOrderRepo) ExistingOrderIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	return probe(f.existing, ids), nil
}

func (f *fakeOrderRepo) UserIDsByEmail(context.Context) (map[string]int64, error) {
	return f.userEmails, nil
}

func (f *fakeOrderRepo) CustomerIDsByEmail(context.Context) (map[string]int64, error) {
	return f.custEmails, nil
}

func (f *fakeOrderRepo) SaveOrders(_ context.Context, orders []store.Order) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, orders)
	return nil
}

type fakeProductRepo struct {
	list     []store.Product
	existing map[int64]bool
	bySKU    map[string]int64
	catNames map[string]int64
	names    map[int64]string
	saved    [][]store.Product
	saveErr  error
}

func (f *fakeProductRepo) ListProducts(context.Context, store.ProductFilter) ([]store.Product, error) {
	return f.list, nil
}

func (f *fakeProductRepo) ExistingProductIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	return probe(f.existing, ids), nil
}

func (f *fakeProductRepo) ProductIDsBySKU(context.Context) (map[string]int64, error) {
	return f.bySKU, nil
}

func (f *fakeProductRepo) CategoryIDsByName(context.Context) (map[string]int64, error) {
	return f.catNames, nil
}

func (f *fakeProductRepo) CategoryNames(context.Context) (map[int64]string, error) {
	return f.names, nil
}

func (f *fakeProductRepo) SaveProducts(_ context.Context, products []store.Product) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, products)
	return nil
}

func probe(existing map[int64]bool, ids []int64) map[int64]bool {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if existing[id] {
			out[id] = true
		}
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }
