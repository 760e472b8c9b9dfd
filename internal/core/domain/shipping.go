package domain

import "strings"

const DefaultShippingMethod = "Standard"

type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type Shipping struct {
	Method       string    `json:"method"`
	Recipient    Recipient `json:"recipient"`
	Address      Address   `json:"address"`
	Instructions string    `json:"instructions,omitempty"`
}

func NewShipping(method string, recipient Recipient, address Address, instructions string) (Shipping, error) {
	if strings.TrimSpace(method) == "" {
		return Shipping{}, invalid("shipping.method", "cannot be empty")
	}
	if strings.TrimSpace(recipient.Name) == "" {
		return Shipping{}, invalid("recipient.name", "cannot be empty")
	}
	if strings.TrimSpace(address.Street) == "" || strings.TrimSpace(address.City) == "" {
		return Shipping{}, invalid("address", "street and city are required")
	}
	return Shipping{Method: method, Recipient: recipient, Address: address, Instructions: instructions}, nil
}
