package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/flash-deal/internal/adapter/storage"
	"github.com/rl1809/flash-deal/internal/clock"
	"github.com/rl1809/flash-deal/internal/core/domain"
)

// memStore is a versioned in-memory stand-in for the MySQL adapter.
type memStore struct {
	mu        sync.Mutex
	inventory map[string]domain.Inventory
	products  map[string]domain.Product
	orders    map[string]domain.Order

	inventoryConflicts int
	inventoryErr       error
	saveOrderErr       error
}

func newMemStore() *memStore {
	return &memStore{
		inventory: make(map[string]domain.Inventory),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
	}
}

func (m *memStore) GetInventory(_ context.Context, productID string) (domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inventory[productID]
	if !ok {
		return domain.Inventory{}, errors.Wrapf(domain.ErrNotFound, "inventory %s", productID)
	}
	return inv, nil
}

func (m *memStore) SaveInventory(_ context.Context, inv domain.Inventory) (domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inventoryErr != nil {
		return domain.Inventory{}, m.inventoryErr
	}
	if m.inventoryConflicts > 0 {
		m.inventoryConflicts--
		return domain.Inventory{}, domain.ErrConflict
	}
	cur, exists := m.inventory[inv.ProductID]
	if inv.Version == 0 && exists || inv.Version != 0 && cur.Version != inv.Version {
		return domain.Inventory{}, domain.ErrConflict
	}
	inv.Version++
	m.inventory[inv.ProductID] = inv
	return inv, nil
}

func (m *memStore) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return domain.Product{}, errors.Wrapf(domain.ErrNotFound, "product %s", productID)
	}
	return p, nil
}

func (m *memStore) SaveProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.products[p.ID]
	if p.Version == 0 && exists || p.Version != 0 && cur.Version != p.Version {
		return domain.Product{}, domain.ErrConflict
	}
	p.Version++
	m.products[p.ID] = p
	return p, nil
}

func (m *memStore) ListProductsByStatus(_ context.Context, statuses ...domain.DealStatus) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		for _, s := range statuses {
			if p.Status == s {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, errors.Wrapf(domain.ErrNotFound, "order %s", orderID)
	}
	return o, nil
}

func (m *memStore) FindOrderByIdempotencyKey(_ context.Context, key string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *memStore) SaveOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveOrderErr != nil {
		return domain.Order{}, m.saveOrderErr
	}
	cur, exists := m.orders[o.ID]
	if o.Version == 0 && exists || o.Version != 0 && cur.Version != o.Version {
		return domain.Order{}, domain.ErrConflict
	}
	o.Version++
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) setSaveOrderErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveOrderErr = err
}

func (m *memStore) setInventoryErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventoryErr = err
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testProduct = "prod-1"

type fixture struct {
	store     *memStore
	cache     *storage.MemoryCache
	clock     *clock.Manual
	ledger    *Ledger
	inventory *InventoryService
	deals     *DealService
	orders    *OrderService
	sweeper   *Sweeper
}

func testPolicy(t *testing.T) domain.Policy {
	t.Helper()
	p, err := domain.NewPolicy(0, 10*time.Minute, 2)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func newTestProduct(t *testing.T, id string, start, end time.Time) domain.Product {
	t.Helper()
	price, err := domain.NewPrice(decimal.NewFromInt(100000), decimal.NewFromInt(97000), "KRW")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	schedule, err := domain.NewSchedule(start, end, "UTC")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	p, err := domain.NewProduct(id, "Phone", "flagship", price, schedule,
		domain.NewSpecs(map[string]domain.SpecValue{"imageUrl": domain.StringSpec("https://img/1.png")}))
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	return p
}

// newFixture wires every service over in-memory stores with an
// unstarted deal whose window opens at testStart.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), clock: clock.NewManual(testStart.Add(-time.Minute))}
	f.cache = storage.NewMemoryCache(f.clock.Now)
	retry := RetryPolicy{Attempts: 3}

	f.ledger = NewLedger(f.cache, f.clock)
	f.inventory = NewInventoryService(f.store, f.ledger, retry)
	deals, err := NewDealService(f.store, f.store, f.ledger, f.clock, 16, retry)
	if err != nil {
		t.Fatalf("deal service: %v", err)
	}
	f.deals = deals
	f.orders = NewOrderService(OrderServiceDeps{
		Cache:     f.cache,
		Orders:    f.store,
		Ledger:    f.ledger,
		Deals:     f.deals,
		Inventory: f.inventory,
		Clock:     f.clock,
		Retry:     retry,
	}, 1000)
	f.sweeper = NewSweeper(f.deals, f.ledger, f.orders, f.clock)
	return f
}

// newActiveFixture additionally creates testProduct with stock units and
// activates it, seeding the ledger.
func newActiveFixture(t *testing.T, stock int) *fixture {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.deals.CreateProduct(ctx, newTestProduct(t, testProduct, testStart, testStart.Add(time.Hour))); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := f.inventory.CreateInventory(ctx, testProduct, stock, testPolicy(t)); err != nil {
		t.Fatalf("create inventory: %v", err)
	}

	f.clock.Set(testStart)
	p, err := f.deals.RefreshStatus(ctx, testProduct)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if p.Status != domain.DealStatusActive {
		t.Fatalf("expected ACTIVE, got %s", p.Status)
	}
	return f
}

func (f *fixture) remaining(t *testing.T) int64 {
	t.Helper()
	v, seeded, err := f.ledger.Remaining(context.Background(), testProduct)
	if err != nil || !seeded {
		t.Fatalf("remaining: seeded=%v err=%v", seeded, err)
	}
	return v
}

func (f *fixture) stock(t *testing.T) domain.Stock {
	t.Helper()
	inv, err := f.store.GetInventory(context.Background(), testProduct)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	return inv.Stock
}

// purchase admits one unit and runs the worker step synchronously.
func (f *fixture) purchase(t *testing.T, requestID string) domain.Order {
	t.Helper()
	order, err := f.orders.Purchase(context.Background(), PurchaseRequest{
		RequestID: requestID,
		UserID:    "user-1",
		ProductID: testProduct,
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("purchase %s: %v", requestID, err)
	}
	f.orders.processOrder(context.Background(), 1, <-f.orders.GetOrderQueue())
	return order
}
