package domain

import "time"

// ReservationEntry is one outstanding hold against a product's fast-path counter.
type ReservationEntry struct {
	ProductID string
	OrderID   string
	Quantity  Quantity
	ExpiresAt time.Time
}

func (e ReservationEntry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}
