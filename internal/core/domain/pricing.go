package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var DefaultShippingFee = decimal.NewFromInt(3000)

type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Currency string          `json:"currency"`
}

func NewPricing(subtotal, shipping, discount decimal.Decimal, currency string) (Pricing, error) {
	if strings.TrimSpace(currency) == "" {
		return Pricing{}, invalid("currency", "cannot be empty")
	}
	if subtotal.IsNegative() {
		return Pricing{}, invalid("subtotal", "cannot be negative")
	}
	if shipping.IsNegative() {
		return Pricing{}, invalid("shipping", "cannot be negative")
	}
	if discount.IsNegative() {
		return Pricing{}, invalid("discount", "cannot be negative")
	}
	p := Pricing{Subtotal: subtotal, Shipping: shipping, Discount: discount, Currency: currency}
	if p.Total().IsNegative() {
		return Pricing{}, invalid("discount", "exceeds subtotal plus shipping")
	}
	return p, nil
}

func (p Pricing) Total() decimal.Decimal {
	return p.Subtotal.Add(p.Shipping).Sub(p.Discount)
}
