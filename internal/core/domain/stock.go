package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stock partitions a product's units. total == reserved + available + sold
// holds for every value that NewStock returns.
type Stock struct {
	Total     Quantity `json:"total"`
	Reserved  Quantity `json:"reserved"`
	Available Quantity `json:"available"`
	Sold      Quantity `json:"sold"`
}

func NewStock(total, reserved, available, sold int) (Stock, error) {
	fields := []struct {
		name  string
		value int
	}{
		{"total", total},
		{"reserved", reserved},
		{"available", available},
		{"sold", sold},
	}
	for _, f := range fields {
		if f.value < 0 {
			return Stock{}, invalid(f.name, "cannot be negative")
		}
	}

	if total != reserved+available+sold {
		return Stock{}, invalid("stock", fmt.Sprintf(
			"total(%d) must equal reserved(%d) + available(%d) + sold(%d) = %d",
			total, reserved, available, sold, reserved+available+sold))
	}

	return Stock{
		Total:     Quantity(total),
		Reserved:  Quantity(reserved),
		Available: Quantity(available),
		Sold:      Quantity(sold),
	}, nil
}

func InitialStock(total int) (Stock, error) {
	return NewStock(total, 0, total, 0)
}

// Reserve moves q from available to reserved.
func (s Stock) Reserve(q Quantity) (Stock, error) {
	if q < 0 {
		return Stock{}, invalid("quantity", "cannot be negative")
	}
	if q > s.Available {
		return Stock{}, errors.Wrapf(ErrInsufficientStock,
			"cannot reserve %d: only %d available", q, s.Available)
	}
	return NewStock(s.Total.Int(), (s.Reserved + q).Int(), (s.Available - q).Int(), s.Sold.Int())
}

// Confirm moves q from reserved to sold.
func (s Stock) Confirm(q Quantity) (Stock, error) {
	if q < 0 {
		return Stock{}, invalid("quantity", "cannot be negative")
	}
	if q > s.Reserved {
		return Stock{}, errors.Wrapf(ErrInvalidReservation,
			"cannot confirm %d: only %d reserved", q, s.Reserved)
	}
	return NewStock(s.Total.Int(), (s.Reserved - q).Int(), s.Available.Int(), (s.Sold + q).Int())
}

// Release moves q from reserved back to available.
func (s Stock) Release(q Quantity) (Stock, error) {
	if q < 0 {
		return Stock{}, invalid("quantity", "cannot be negative")
	}
	if q > s.Reserved {
		return Stock{}, errors.Wrapf(ErrInvalidReservation,
			"cannot release %d: only %d reserved", q, s.Reserved)
	}
	return NewStock(s.Total.Int(), (s.Reserved - q).Int(), (s.Available + q).Int(), s.Sold.Int())
}

// Increase adds q to total and available.
func (s Stock) Increase(q Quantity) (Stock, error) {
	if q < 0 {
		return Stock{}, invalid("quantity", "cannot be negative")
	}
	return NewStock((s.Total + q).Int(), s.Reserved.Int(), (s.Available + q).Int(), s.Sold.Int())
}

func (s Stock) OutOfStock() bool {
	return s.Available == 0
}

func (s Stock) String() string {
	return fmt.Sprintf("Stock{total=%d, reserved=%d, available=%d, sold=%d}",
		s.Total, s.Reserved, s.Available, s.Sold)
}
