package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/core/service"
)

type PurchaseHTTPRequest struct {
	RequestID string            `json:"request_id"`
	UserID    string            `json:"user_id"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Shipping  *domain.Shipping  `json:"shipping,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
}

func (p *PurchaseHTTPRequest) Bind(_ *http.Request) error {
	if p.RequestID == "" || p.UserID == "" || p.ProductID == "" || p.Quantity <= 0 {
		return errors.New("missing required fields")
	}
	return nil
}

func (p *PurchaseHTTPRequest) toService() service.PurchaseRequest {
	return service.PurchaseRequest{
		RequestID: p.RequestID,
		UserID:    p.UserID,
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
		Shipping:  p.Shipping,
		Options:   p.Options,
	}
}

type PurchaseHTTPResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	OrderID     string `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (p *PurchaseHTTPResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

type OrderResponse struct {
	ID             string               `json:"id"`
	OrderNumber    string               `json:"orderNumber"`
	UserID         string               `json:"userId"`
	IdempotencyKey string               `json:"idempotencyKey"`
	Items          []domain.OrderItem   `json:"items"`
	Shipping       domain.Shipping      `json:"shipping"`
	Pricing        domain.Pricing       `json:"pricing"`
	Total          decimal.Decimal      `json:"total"`
	Payment        domain.Payment       `json:"payment"`
	Status         domain.OrderStatus   `json:"status"`
	Cancellation   *domain.Cancellation `json:"cancellation,omitempty"`
	Version        int                  `json:"version"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

func NewOrderResponse(o domain.Order) *OrderResponse {
	return &OrderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber(),
		UserID:         o.UserID,
		IdempotencyKey: o.IdempotencyKey,
		Items:          o.Items,
		Shipping:       o.Shipping,
		Pricing:        o.Pricing,
		Total:          o.Pricing.Total(),
		Payment:        o.Payment,
		Status:         o.Status,
		Cancellation:   o.Cancellation,
		Version:        o.Version,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (o *OrderResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

type PaymentRequest struct {
	TransactionID string `json:"transactionId"`
}

func (p *PaymentRequest) Bind(_ *http.Request) error {
	if strings.TrimSpace(p.TransactionID) == "" {
		return errors.New("transactionId is required")
	}
	return nil
}

type CancelRequest struct {
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelledBy"`
}

func (c *CancelRequest) Bind(_ *http.Request) error {
	if strings.TrimSpace(c.Reason) == "" {
		return errors.New("reason is required")
	}
	if c.CancelledBy == "" {
		c.CancelledBy = "user"
	}
	return nil
}

type PolicyDTO struct {
	SafetyStock               int `json:"safetyStock"`
	ReservationTimeoutSeconds int `json:"reservationTimeoutSeconds"`
	MaxPurchasePerUser        int `json:"maxPurchasePerUser"`
}

func policyDTO(p domain.Policy) PolicyDTO {
	return PolicyDTO{
		SafetyStock:               p.SafetyStock,
		ReservationTimeoutSeconds: int(p.ReservationTimeout / time.Second),
		MaxPurchasePerUser:        p.MaxPurchasePerUser,
	}
}

type CreateInventoryRequest struct {
	ProductID string     `json:"productId"`
	Total     int        `json:"total"`
	Policy    *PolicyDTO `json:"policy,omitempty"`
}

func (c *CreateInventoryRequest) Bind(_ *http.Request) error {
	if strings.TrimSpace(c.ProductID) == "" {
		return errors.New("productId is required")
	}
	return nil
}

func (c *CreateInventoryRequest) policy() (domain.Policy, error) {
	if c.Policy == nil {
		return domain.DefaultPolicy(), nil
	}
	return domain.NewPolicy(c.Policy.SafetyStock,
		time.Duration(c.Policy.ReservationTimeoutSeconds)*time.Second, c.Policy.MaxPurchasePerUser)
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

func (rr *RestockRequest) Bind(_ *http.Request) error {
	if rr.Quantity <= 0 {
		return errors.New("quantity must be greater than zero")
	}
	return nil
}

type InventoryResponse struct {
	ID        string       `json:"id"`
	ProductID string       `json:"productId"`
	Stock     domain.Stock `json:"stock"`
	Policy    PolicyDTO    `json:"policy"`
	LowStock  bool         `json:"lowStock"`
	Version   int          `json:"version"`
}

func NewInventoryResponse(inv domain.Inventory) *InventoryResponse {
	return &InventoryResponse{
		ID:        inv.ID,
		ProductID: inv.ProductID,
		Stock:     inv.Stock,
		Policy:    policyDTO(inv.Policy),
		LowStock:  inv.LowStock(),
		Version:   inv.Version,
	}
}

func (i *InventoryResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

type CreateProductRequest struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       domain.Price    `json:"price"`
	Schedule    domain.Schedule `json:"schedule"`
	Specs       domain.Specs    `json:"specs"`
}

func (c *CreateProductRequest) Bind(_ *http.Request) error {
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Title) == "" {
		return errors.New("id and title are required")
	}
	return nil
}

type DealResponse struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Price        domain.Price      `json:"price"`
	DiscountRate int               `json:"discountRate"`
	Schedule     domain.Schedule   `json:"schedule"`
	Specs        domain.Specs      `json:"specs"`
	Status       domain.DealStatus `json:"status"`
	Policy       *PolicyDTO        `json:"policy,omitempty"`
	Version      int               `json:"version"`
}

func NewDealResponse(p domain.Product, policy *domain.Policy) *DealResponse {
	resp := &DealResponse{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Price:        p.Price,
		DiscountRate: p.Price.DiscountRate(),
		Schedule:     p.Schedule,
		Specs:        p.Specs,
		Status:       p.Status,
		Version:      p.Version,
	}
	if policy != nil {
		dto := policyDTO(*policy)
		resp.Policy = &dto
	}
	return resp
}

func (d *DealResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}
