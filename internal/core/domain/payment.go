package domain

import "strings"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

const DefaultPaymentMethod = "CreditCard"

type Payment struct {
	Method        string        `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transactionId,omitempty"`
	Gateway       string        `json:"gateway,omitempty"`
}

func NewPayment(method string, status PaymentStatus, transactionID, gateway string) (Payment, error) {
	if strings.TrimSpace(method) == "" {
		return Payment{}, invalid("method", "cannot be empty")
	}
	if status == "" {
		return Payment{}, invalid("status", "is required")
	}
	if status == PaymentStatusCompleted && strings.TrimSpace(transactionID) == "" {
		return Payment{}, invalid("transactionId", "is required when status is COMPLETED")
	}
	return Payment{Method: method, Status: status, TransactionID: transactionID, Gateway: gateway}, nil
}

func (p Payment) Complete(transactionID string) (Payment, error) {
	return NewPayment(p.Method, PaymentStatusCompleted, transactionID, p.Gateway)
}

func (p Payment) Fail() Payment {
	p.Status = PaymentStatusFailed
	return p
}

func (p Payment) Refund() Payment {
	p.Status = PaymentStatusRefunded
	return p
}
