package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/ports/adapter"
)

// SignatureHeader carries the hex HMAC of the raw request body.
const SignatureHeader = "Sign"

var _ adapter.WebhookVerifier = (*HMACWebhookVerifier)(nil)

// HMACWebhookVerifier authenticates provider callbacks signed with
// HMAC-SHA256(body, secret) and decodes the confirmation fields.
type HMACWebhookVerifier struct {
	name   string
	secret []byte
}

func NewHMACWebhookVerifier(name, secret string) (*HMACWebhookVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("webhook secret is empty")
	}
	return &HMACWebhookVerifier{name: name, secret: []byte(secret)}, nil
}

func (v *HMACWebhookVerifier) Name() string { return v.name }

// Sign returns the signature a provider would send for body.
func (v *HMACWebhookVerifier) Sign(body []byte) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// webhookBody accepts the field spellings providers use interchangeably.
type webhookBody struct {
	OrderID       string           `json:"order_id"`
	OrderIDCamel  string           `json:"orderId"`
	OrderIDLower  string           `json:"orderid"`
	Status        string           `json:"status"`
	PaymentStatus string           `json:"payment_status"`
	StatusCamel   string           `json:"paymentStatus"`
	Amount        *decimal.Decimal `json:"amount"`
	PaymentAmount *decimal.Decimal `json:"payment_amount"`
}

func (v *HMACWebhookVerifier) Verify(body []byte, signature string) (*adapter.PaymentConfirmation, error) {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return nil, domain.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(v.Sign(body))
	if !hmac.Equal(got, want) {
		return nil, domain.ErrInvalidSignature
	}

	var b webhookBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: webhook body: %v", domain.ErrInvalidArgument, err)
	}
	conf := &adapter.PaymentConfirmation{
		OrderID: firstNonEmpty(b.OrderID, b.OrderIDCamel, b.OrderIDLower),
		Status:  strings.ToLower(firstNonEmpty(b.Status, b.PaymentStatus, b.StatusCamel)),
	}
	switch {
	case b.PaymentAmount != nil:
		conf.AmountPaid = b.PaymentAmount
	case b.Amount != nil:
		conf.AmountPaid = b.Amount
	}
	if conf.OrderID == "" {
		return nil, fmt.Errorf("%w: webhook without order id", domain.ErrInvalidArgument)
	}
	return conf, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
