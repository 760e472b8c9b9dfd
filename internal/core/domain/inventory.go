package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Inventory binds a product to its stock and policy. Every stock-changing
// method returns a new value; the receiver is never modified.
type Inventory struct {
	ID        string
	ProductID string
	Stock     Stock
	Policy    Policy
	Version   int // optimistic locking, 0 until first save
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewInventoryID() string {
	return uuid.NewString()
}

func NewInventory(id, productID string, stock Stock, policy Policy) (Inventory, error) {
	if strings.TrimSpace(id) == "" {
		return Inventory{}, invalid("inventoryId", "cannot be empty")
	}
	if strings.TrimSpace(productID) == "" {
		return Inventory{}, invalid("productId", "cannot be empty")
	}
	if _, err := NewStock(stock.Total.Int(), stock.Reserved.Int(), stock.Available.Int(), stock.Sold.Int()); err != nil {
		return Inventory{}, err
	}
	if _, err := NewPolicy(policy.SafetyStock, policy.ReservationTimeout, policy.MaxPurchasePerUser); err != nil {
		return Inventory{}, err
	}

	return Inventory{
		ID:        id,
		ProductID: productID,
		Stock:     stock,
		Policy:    policy,
	}, nil
}

func (i Inventory) withStock(s Stock) Inventory {
	i.Stock = s
	return i
}

func (i Inventory) Reserve(q Quantity) (Inventory, error) {
	s, err := i.Stock.Reserve(q)
	if err != nil {
		return Inventory{}, err
	}
	return i.withStock(s), nil
}

func (i Inventory) Confirm(q Quantity) (Inventory, error) {
	s, err := i.Stock.Confirm(q)
	if err != nil {
		return Inventory{}, err
	}
	return i.withStock(s), nil
}

func (i Inventory) Release(q Quantity) (Inventory, error) {
	s, err := i.Stock.Release(q)
	if err != nil {
		return Inventory{}, err
	}
	return i.withStock(s), nil
}

// IncreaseStock restocks: q is added to both total and available.
func (i Inventory) IncreaseStock(q Quantity) (Inventory, error) {
	s, err := i.Stock.Increase(q)
	if err != nil {
		return Inventory{}, err
	}
	return i.withStock(s), nil
}

func (i Inventory) UpdatePolicy(p Policy) (Inventory, error) {
	p, err := NewPolicy(p.SafetyStock, p.ReservationTimeout, p.MaxPurchasePerUser)
	if err != nil {
		return Inventory{}, err
	}
	i.Policy = p
	return i, nil
}

func (i Inventory) OutOfStock() bool {
	return i.Stock.OutOfStock()
}

// LowStock reports available < safety stock; restock alerts key off this.
func (i Inventory) LowStock() bool {
	return i.Policy.IsLowStock(i.Stock.Available)
}

func (i Inventory) IsValidPurchaseQuantity(q Quantity) bool {
	return i.Policy.IsValidPurchaseQuantity(q)
}
