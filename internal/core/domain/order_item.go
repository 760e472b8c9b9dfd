package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Snapshot freezes the listing as it was when the order was placed.
type Snapshot struct {
	Title           string            `json:"title"`
	Image           string            `json:"image"`
	Price           Price             `json:"price"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

func NewSnapshot(title, image string, price Price, options map[string]string) (Snapshot, error) {
	if strings.TrimSpace(title) == "" {
		return Snapshot{}, invalid("snapshot.title", "cannot be empty")
	}
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}
	return Snapshot{Title: title, Image: image, Price: price, SelectedOptions: opts}, nil
}

// SnapshotOf captures a product for an order line; the image comes from the
// "imageUrl" spec when present.
func SnapshotOf(p Product) Snapshot {
	image := ""
	if v, ok := p.Specs.Get("imageUrl"); ok {
		image, _ = v.AsString()
	}
	return Snapshot{Title: p.Title, Image: image, Price: p.Price, SelectedOptions: map[string]string{}}
}

type OrderItem struct {
	ProductID string   `json:"productId"`
	Snapshot  Snapshot `json:"snapshot"`
	Quantity  Quantity `json:"quantity"`
}

func NewOrderItem(productID string, snapshot Snapshot, quantity int) (OrderItem, error) {
	if strings.TrimSpace(productID) == "" {
		return OrderItem{}, invalid("productId", "cannot be empty")
	}
	q, err := NewPositiveQuantity(quantity)
	if err != nil {
		return OrderItem{}, err
	}
	return OrderItem{ProductID: productID, Snapshot: snapshot, Quantity: q}, nil
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Snapshot.Price.Sale.Mul(decimal.NewFromInt(i.Quantity.Int64()))
}
