package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/core/service"
)

type OrderService interface {
	Purchase(ctx context.Context, req service.PurchaseRequest) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	CompletePayment(ctx context.Context, orderID, transactionID string) (domain.Order, error)
	FailPayment(ctx context.Context, orderID string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID, reason, cancelledBy string) (domain.Order, error)
	Ship(ctx context.Context, orderID string) (domain.Order, error)
	Deliver(ctx context.Context, orderID string) (domain.Order, error)
	Refund(ctx context.Context, orderID string) (domain.Order, error)
}

type InventoryService interface {
	CreateInventory(ctx context.Context, productID string, total int, policy domain.Policy) (domain.Inventory, error)
	GetInventory(ctx context.Context, productID string) (domain.Inventory, error)
	Restock(ctx context.Context, productID string, quantity int) (domain.Inventory, error)
}

type DealService interface {
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	GetDeal(ctx context.Context, productID string) (service.Deal, error)
}

type HTTPHandler struct {
	orders    OrderService
	inventory InventoryService
	deals     DealService
}

func NewHTTPHandler(orders OrderService, inventory InventoryService, deals DealService) *HTTPHandler {
	return &HTTPHandler{orders: orders, inventory: inventory, deals: deals}
}

func (h *HTTPHandler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(Logging)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/purchase", h.Purchase)

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Post("/payment", h.CompletePayment)
			r.Post("/payment/failure", h.FailPayment)
			r.Post("/cancel", h.CancelOrder)
			r.Post("/ship", h.transition(h.orders.Ship))
			r.Post("/deliver", h.transition(h.orders.Deliver))
			r.Post("/refund", h.transition(h.orders.Refund))
		})

		r.Post("/inventory", h.CreateInventory)
		r.Route("/inventory/{productID}", func(r chi.Router) {
			r.Get("/", h.GetInventory)
			r.Post("/restock", h.Restock)
		})

		r.Post("/products", h.CreateProduct)
		r.Get("/deals/{productID}", h.GetDeal)
	})

	return r
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	data := &PurchaseHTTPRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	order, err := h.orders.Purchase(r.Context(), data.toService())
	if err != nil {
		status, message := classify(err)
		if status >= http.StatusInternalServerError {
			renderError(w, r, err)
			return
		}
		render.Status(r, status)
		Render(w, r, &PurchaseHTTPResponse{Success: false, Message: message})
		return
	}

	Render(w, r, &PurchaseHTTPResponse{
		Success:     true,
		Message:     "order placed successfully",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber(),
		Status:      string(order.Status),
	})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	Render(w, r, NewOrderResponse(order))
}

func (h *HTTPHandler) CompletePayment(w http.ResponseWriter, r *http.Request) {
	data := &PaymentRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	order, err := h.orders.CompletePayment(r.Context(), chi.URLParam(r, "orderID"), data.TransactionID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	Render(w, r, NewOrderResponse(order))
}

func (h *HTTPHandler) FailPayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.FailPayment(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	Render(w, r, NewOrderResponse(order))
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	data := &CancelRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), data.Reason, data.CancelledBy)
	if err != nil {
		renderError(w, r, err)
		return
	}
	Render(w, r, NewOrderResponse(order))
}

func (h *HTTPHandler) transition(fn func(context.Context, string) (domain.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := fn(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		Render(w, r, NewOrderResponse(order))
	}
}

func (h *HTTPHandler) CreateInventory(w http.ResponseWriter, r *http.Request) {
	data := &CreateInventoryRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}
	policy, err := data.policy()
	if err != nil {
		renderError(w, r, err)
		return
	}

	inv, err := h.inventory.CreateInventory(r.Context(), data.ProductID, data.Total, policy)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	Render(w, r, NewInventoryResponse(inv))
}

func (h *HTTPHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.inventory.GetInventory(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	Render(w, r, NewInventoryResponse(inv))
}

func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	data := &RestockRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	inv, err := h.inventory.Restock(r.Context(), chi.URLParam(r, "productID"), data.Quantity)
	if err != nil {
		renderError(w, r, err)
		return
	}
	Render(w, r, NewInventoryResponse(inv))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	data := &CreateProductRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	p, err := domain.NewProduct(data.ID, data.Title, data.Description, data.Price, data.Schedule, data.Specs)
	if err != nil {
		renderError(w, r, err)
		return
	}
	saved, err := h.deals.CreateProduct(r.Context(), p)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	Render(w, r, NewDealResponse(saved, nil))
}

func (h *HTTPHandler) GetDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := h.deals.GetDeal(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	Render(w, r, NewDealResponse(deal.Product, &deal.Policy))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
