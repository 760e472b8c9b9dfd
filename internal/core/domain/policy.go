package domain

import "time"

// Policy holds the per-product reservation rules.
type Policy struct {
	SafetyStock        int           `json:"safetyStock"`
	ReservationTimeout time.Duration `json:"reservationTimeout"`
	MaxPurchasePerUser int           `json:"maxPurchasePerUser"`
}

func NewPolicy(safetyStock int, reservationTimeout time.Duration, maxPurchasePerUser int) (Policy, error) {
	if safetyStock < 0 {
		return Policy{}, invalid("safetyStock", "cannot be negative")
	}
	if reservationTimeout < time.Second {
		return Policy{}, invalid("reservationTimeout", "must be at least one second")
	}
	if maxPurchasePerUser <= 0 {
		return Policy{}, invalid("maxPurchasePerUser", "must be positive")
	}
	return Policy{
		SafetyStock:        safetyStock,
		ReservationTimeout: reservationTimeout,
		MaxPurchasePerUser: maxPurchasePerUser,
	}, nil
}

func DefaultPolicy() Policy {
	return Policy{
		SafetyStock:        10,
		ReservationTimeout: 600 * time.Second,
		MaxPurchasePerUser: 10,
	}
}

func (p Policy) IsLowStock(available Quantity) bool {
	return available.Int() < p.SafetyStock
}

func (p Policy) IsValidPurchaseQuantity(q Quantity) bool {
	return q > 0 && q.Int() <= p.MaxPurchasePerUser
}
