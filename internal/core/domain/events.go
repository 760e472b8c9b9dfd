package domain

const (
	TopicInventoryReserved = "inventory.reserved"
	TopicOrderCreated      = "order.created"
	TopicOrderCancelled    = "order.cancelled"
	TopicPaymentCompleted  = "payment.completed"
)

type InventoryReserved struct {
	ProductID string `json:"productId"`
	OrderID   string `json:"orderId"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
}

type OrderCreated struct {
	OrderID        string `json:"orderId"`
	UserID         string `json:"userId"`
	OrderNumber    string `json:"orderNumber"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type OrderCancelled struct {
	OrderID     string `json:"orderId"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelledBy"`
}

type PaymentCompleted struct {
	OrderID       string `json:"orderId"`
	Method        string `json:"method"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}
