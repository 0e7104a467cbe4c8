package adapter

import (
	"github.com/shopspring/decimal"
)

// PaymentConfirmation is a provider webhook after signature verification.
// AmountPaid is nil when the provider omitted the amount.
type PaymentConfirmation struct {
	OrderID    string
	Status     string
	AmountPaid *decimal.Decimal
}

// WebhookVerifier authenticates and decodes a raw provider callback.
// Implementations return domain.ErrInvalidSignature for forged payloads.
type WebhookVerifier interface {
	Name() string
	Verify(body []byte, signature string) (*PaymentConfirmation, error)
}
