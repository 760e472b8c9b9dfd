package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Price struct {
	Original decimal.Decimal `json:"original"`
	Sale     decimal.Decimal `json:"sale"`
	Currency string          `json:"currency"`
}

func NewPrice(original, sale decimal.Decimal, currency string) (Price, error) {
	if strings.TrimSpace(currency) == "" {
		return Price{}, invalid("currency", "cannot be empty")
	}
	if original.IsNegative() {
		return Price{}, invalid("original", "cannot be negative")
	}
	if sale.IsNegative() {
		return Price{}, invalid("sale", "cannot be negative")
	}
	if sale.GreaterThan(original) {
		return Price{}, invalid("sale", "cannot be greater than original price")
	}
	return Price{Original: original, Sale: sale, Currency: currency}, nil
}

// DiscountRate is the whole-percent discount, rounded half-up from a
// ratio kept at four decimal places.
func (p Price) DiscountRate() int {
	if p.Original.IsZero() {
		return 0
	}
	ratio := p.Original.Sub(p.Sale).DivRound(p.Original, 4)
	return int(ratio.Mul(hundred).Round(0).IntPart())
}
