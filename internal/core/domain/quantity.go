package domain

// Quantity is a non-negative count of units.
type Quantity int

func NewQuantity(v int) (Quantity, error) {
	if v < 0 {
		return 0, invalid("quantity", "cannot be negative")
	}
	return Quantity(v), nil
}

// NewPositiveQuantity is used where a zero amount is meaningless (holds, order lines).
func NewPositiveQuantity(v int) (Quantity, error) {
	if v <= 0 {
		return 0, invalid("quantity", "must be positive")
	}
	return Quantity(v), nil
}

func (q Quantity) Int() int {
	return int(q)
}

func (q Quantity) Int64() int64 {
	return int64(q)
}
