package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var orderNamespace = uuid.MustParse("6f1c7c1e-4b8e-4f43-9a7b-2d6f0f1d8a53")

// OrderIDFor derives a stable order id from the caller's request, so that
// a retried purchase maps onto the same order.
func OrderIDFor(userID, requestID string) string {
	return uuid.NewSHA1(orderNamespace, []byte(userID+":"+requestID)).String()
}

func IdempotencyKeyFor(orderID string) string {
	return "order:" + orderID
}

type Cancellation struct {
	Reason         string    `json:"reason"`
	CancelledBy    string    `json:"cancelledBy"`
	CancelledItems []string  `json:"cancelledItems"`
	CancelledAt    time.Time `json:"cancelledAt"`
}

type Order struct {
	ID             string
	UserID         string
	IdempotencyKey string
	Items          []OrderItem
	Shipping       Shipping
	Pricing        Pricing
	Payment        Payment
	Status         OrderStatus
	Cancellation   *Cancellation
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewOrder(id, userID string, items []OrderItem, shipping Shipping, createdAt time.Time) (Order, error) {
	if strings.TrimSpace(id) == "" {
		return Order{}, invalid("orderId", "cannot be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return Order{}, invalid("userId", "cannot be empty")
	}
	if len(items) == 0 {
		return Order{}, invalid("items", "cannot be empty")
	}

	o := Order{
		ID:             id,
		UserID:         userID,
		IdempotencyKey: IdempotencyKeyFor(id),
		Items:          append([]OrderItem(nil), items...),
		Shipping:       shipping,
		Payment:        Payment{Method: DefaultPaymentMethod, Status: PaymentStatusPending},
		Status:         OrderStatusPending,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	pricing, err := o.calculatePricing(decimal.Zero)
	if err != nil {
		return Order{}, err
	}
	o.Pricing = pricing
	return o, nil
}

func (o Order) calculatePricing(discount decimal.Decimal) (Pricing, error) {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.Subtotal())
	}
	return NewPricing(subtotal, DefaultShippingFee, discount, o.Items[0].Snapshot.Price.Currency)
}

func (o Order) OrderNumber() string {
	id := o.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "ORD-" + id
}

// TransitionTo applies the order state table; self-transitions and moves
// out of DELIVERED, CANCELLED or REFUNDED are rejected.
func (o Order) TransitionTo(target OrderStatus) (Order, error) {
	if !o.Status.CanTransitionTo(target) {
		return Order{}, &TransitionError{Entity: "order", From: string(o.Status), To: string(target)}
	}
	o.Status = target
	return o, nil
}

func (o Order) Confirm() (Order, error) {
	return o.TransitionTo(OrderStatusConfirmed)
}

func (o Order) Ship() (Order, error) {
	return o.TransitionTo(OrderStatusShipped)
}

func (o Order) Deliver() (Order, error) {
	return o.TransitionTo(OrderStatusDelivered)
}

func (o Order) Cancel(reason, cancelledBy string, at time.Time) (Order, error) {
	next, err := o.TransitionTo(OrderStatusCancelled)
	if err != nil {
		return Order{}, err
	}
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	next.Cancellation = &Cancellation{
		Reason:         reason,
		CancelledBy:    cancelledBy,
		CancelledItems: ids,
		CancelledAt:    at,
	}
	return next, nil
}

// Refund is only reachable once payment has completed.
func (o Order) Refund() (Order, error) {
	if o.Payment.Status != PaymentStatusCompleted {
		return Order{}, &TransitionError{Entity: "order", From: string(o.Status), To: string(OrderStatusRefunded)}
	}
	next, err := o.TransitionTo(OrderStatusRefunded)
	if err != nil {
		return Order{}, err
	}
	next.Payment = o.Payment.Refund()
	return next, nil
}

func (o Order) CompletePayment(transactionID string) (Order, error) {
	p, err := o.Payment.Complete(transactionID)
	if err != nil {
		return Order{}, err
	}
	o.Payment = p
	return o, nil
}

func (o Order) FailPayment() Order {
	o.Payment = o.Payment.Fail()
	return o
}

// ApplyDiscount recomputes pricing on an unpaid PENDING order; a discount
// that would drive the total below zero is rejected.
func (o Order) ApplyDiscount(discount decimal.Decimal) (Order, error) {
	if o.Status != OrderStatusPending || o.Payment.Status == PaymentStatusCompleted {
		return Order{}, &TransitionError{Entity: "pricing", From: string(o.Status), To: "DISCOUNTED"}
	}
	p, err := o.calculatePricing(discount)
	if err != nil {
		return Order{}, err
	}
	o.Pricing = p
	return o, nil
}
