package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/core/service"
)

type mockOrderService struct {
	mu          sync.Mutex
	purchaseErr error
	orders      map[string]domain.Order
}

func newMockOrderService() *mockOrderService {
	return &mockOrderService{orders: make(map[string]domain.Order)}
}

func testOrder(id string) domain.Order {
	price, _ := domain.NewPrice(decimal.NewFromInt(100000), decimal.NewFromInt(97000), "KRW")
	snapshot, _ := domain.NewSnapshot("Phone", "", price, nil)
	item, _ := domain.NewOrderItem("prod-1", snapshot, 1)
	o, _ := domain.NewOrder(id, "user-1", []domain.OrderItem{item},
		domain.Shipping{Method: domain.DefaultShippingMethod}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return o
}

func (m *mockOrderService) Purchase(_ context.Context, req service.PurchaseRequest) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purchaseErr != nil {
		return domain.Order{}, m.purchaseErr
	}
	o := testOrder(domain.OrderIDFor(req.UserID, req.RequestID))
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockOrderService) GetOrder(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, errors.Wrapf(domain.ErrNotFound, "order %s", id)
	}
	return o, nil
}

func (m *mockOrderService) apply(id string, fn func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	next, err := fn(o)
	if err != nil {
		return domain.Order{}, err
	}
	m.orders[id] = next
	return next, nil
}

func (m *mockOrderService) CompletePayment(_ context.Context, id, tx string) (domain.Order, error) {
	return m.apply(id, func(o domain.Order) (domain.Order, error) {
		paid, err := o.CompletePayment(tx)
		if err != nil {
			return domain.Order{}, err
		}
		return paid.Confirm()
	})
}

func (m *mockOrderService) FailPayment(_ context.Context, id string) (domain.Order, error) {
	return m.apply(id, func(o domain.Order) (domain.Order, error) { return o.FailPayment(), nil })
}

func (m *mockOrderService) CancelOrder(_ context.Context, id, reason, by string) (domain.Order, error) {
	return m.apply(id, func(o domain.Order) (domain.Order, error) { return o.Cancel(reason, by, time.Now()) })
}

func (m *mockOrderService) Ship(_ context.Context, id string) (domain.Order, error) {
	return m.apply(id, domain.Order.Ship)
}

func (m *mockOrderService) Deliver(_ context.Context, id string) (domain.Order, error) {
	return m.apply(id, domain.Order.Deliver)
}

func (m *mockOrderService) Refund(_ context.Context, id string) (domain.Order, error) {
	return m.apply(id, domain.Order.Refund)
}

type mockInventoryService struct {
	mu  sync.Mutex
	inv map[string]domain.Inventory
}

func (m *mockInventoryService) CreateInventory(_ context.Context, productID string, total int, policy domain.Policy) (domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stock, err := domain.InitialStock(total)
	if err != nil {
		return domain.Inventory{}, err
	}
	inv, err := domain.NewInventory("inv-1", productID, stock, policy)
	if err != nil {
		return domain.Inventory{}, err
	}
	m.inv[productID] = inv
	return inv, nil
}

func (m *mockInventoryService) GetInventory(_ context.Context, productID string) (domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inv[productID]
	if !ok {
		return domain.Inventory{}, domain.ErrNotFound
	}
	return inv, nil
}

func (m *mockInventoryService) Restock(_ context.Context, productID string, q int) (domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inv[productID]
	if !ok {
		return domain.Inventory{}, domain.ErrNotFound
	}
	next, err := inv.IncreaseStock(domain.Quantity(q))
	if err != nil {
		return domain.Inventory{}, err
	}
	m.inv[productID] = next
	return next, nil
}

type mockDealService struct {
	mu    sync.Mutex
	deals map[string]service.Deal
}

func (m *mockDealService) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Version = 1
	m.deals[p.ID] = service.Deal{Product: p, Policy: domain.DefaultPolicy()}
	return p, nil
}

func (m *mockDealService) GetDeal(_ context.Context, id string) (service.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return service.Deal{}, domain.ErrNotFound
	}
	return d, nil
}

func newTestServer() (*httptest.Server, *mockOrderService) {
	orders := newMockOrderService()
	h := NewHTTPHandler(
		orders,
		&mockInventoryService{inv: make(map[string]domain.Inventory)},
		&mockDealService{deals: make(map[string]service.Deal)},
	)
	return httptest.NewServer(h.Router()), orders
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestPurchase_Success(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, body := post(t, srv.URL+"/api/purchase",
		`{"request_id":"req-1","user_id":"user-1","product_id":"prod-1","quantity":1}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("expected success, got %v", body)
	}
	if body["order_id"] != domain.OrderIDFor("user-1", "req-1") {
		t.Errorf("unexpected order id %v", body["order_id"])
	}
}

func TestPurchase_MissingFields(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, _ := post(t, srv.URL+"/api/purchase", `{"request_id":"req-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPurchase_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"sold out", errors.Wrap(domain.ErrInsufficientStock, "requested 1"), http.StatusGone},
		{"duplicate", service.ErrDuplicateRequest, http.StatusConflict},
		{"not active", domain.ErrDealNotActive, http.StatusForbidden},
		{"limit", domain.ErrPurchaseLimit, http.StatusBadRequest},
		{"validation", &domain.ValidationError{Field: "quantity", Reason: "must be positive"}, http.StatusBadRequest},
		{"ledger down", errors.Wrap(service.ErrLedgerUnavailable, "dial tcp"), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, orders := newTestServer()
			defer srv.Close()
			orders.purchaseErr = tt.err

			resp, body := post(t, srv.URL+"/api/purchase",
				`{"request_id":"req-1","user_id":"user-1","product_id":"prod-1","quantity":1}`)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if body["success"] != false {
				t.Errorf("expected success=false, got %v", body["success"])
			}
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	_, body := post(t, srv.URL+"/api/purchase",
		`{"request_id":"req-1","user_id":"user-1","product_id":"prod-1","quantity":1}`)
	id := body["order_id"].(string)
	base := srv.URL + "/api/orders/" + id

	resp, err := http.Get(base)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", resp.StatusCode)
	}

	resp, _ = post(t, base+"/payment", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without transaction id, got %d", resp.StatusCode)
	}

	resp, body = post(t, base+"/payment", `{"transactionId":"tx-1"}`)
	if resp.StatusCode != http.StatusOK || body["status"] != "CONFIRMED" {
		t.Fatalf("expected CONFIRMED, got %d %v", resp.StatusCode, body["status"])
	}

	resp, body = post(t, base+"/ship", ``)
	if resp.StatusCode != http.StatusOK || body["status"] != "SHIPPED" {
		t.Fatalf("expected SHIPPED, got %d %v", resp.StatusCode, body["status"])
	}

	resp, _ = post(t, base+"/cancel", `{"reason":"too late"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 cancelling shipped order, got %d", resp.StatusCode)
	}

	resp, body = post(t, base+"/deliver", ``)
	if resp.StatusCode != http.StatusOK || body["status"] != "DELIVERED" {
		t.Fatalf("expected DELIVERED, got %d %v", resp.StatusCode, body["status"])
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, body := post(t, srv.URL+"/api/inventory",
		`{"productId":"prod-1","total":50,"policy":{"safetyStock":5,"reservationTimeoutSeconds":300,"maxPurchasePerUser":2}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	policy := body["policy"].(map[string]any)
	if policy["reservationTimeoutSeconds"] != float64(300) {
		t.Errorf("unexpected policy %v", policy)
	}

	resp, body = post(t, srv.URL+"/api/inventory/prod-1/restock", `{"quantity":10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	stock := body["stock"].(map[string]any)
	if stock["total"] != float64(60) || stock["available"] != float64(60) {
		t.Errorf("unexpected stock %v", stock)
	}

	resp, _ = post(t, srv.URL+"/api/inventory",
		`{"productId":"prod-2","total":5,"policy":{"safetyStock":0,"reservationTimeoutSeconds":0,"maxPurchasePerUser":1}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for sub-second timeout, got %d", resp.StatusCode)
	}
}

func TestProductAndDeal(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, body := post(t, srv.URL+"/api/products", `{
		"id":"prod-1","title":"Phone","description":"flagship",
		"price":{"original":"100000","sale":"97000","currency":"KRW"},
		"schedule":{"startsAt":"2026-03-01T12:00:00Z","endsAt":"2026-03-01T13:00:00Z","timezone":"UTC"},
		"specs":{"imageUrl":"https://img/1.png","weight":180,"waterproof":true}
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.StatusCode, body)
	}
	if body["status"] != "UPCOMING" || body["discountRate"] != float64(3) {
		t.Errorf("unexpected deal %v", body)
	}

	resp, err := http.Get(srv.URL + "/api/deals/prod-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	resp2, _ := post(t, srv.URL+"/api/products", `{
		"id":"prod-2","title":"Phone",
		"price":{"original":"100","sale":"200","currency":"KRW"},
		"schedule":{"startsAt":"2026-03-01T12:00:00Z","endsAt":"2026-03-01T13:00:00Z","timezone":"UTC"}
	}`)
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for sale above original, got %d", resp2.StatusCode)
	}
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
