package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusAuthorized        PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured          PaymentStatus = "CAPTURED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
)

func (s PaymentStatus) IsRefundable() bool {
	return s == PaymentStatusCaptured || s == PaymentStatusPartiallyRefunded
}

// Payment is the order's entry in the payment ledger. RefundAmount is
// cumulative and append-only: it never decreases and never exceeds Amount.
type Payment struct {
	ID                int64           `json:"id"`
	TenantID          string          `json:"tenant_id"`
	OrderID           int64           `json:"order_id"`
	GatewayOrderRef   string          `json:"gateway_order_ref,omitempty"`
	GatewayPaymentRef string          `json:"gateway_payment_ref,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	Status            PaymentStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Refundable returns how much of the payment can still be refunded.
func (p *Payment) Refundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundAmount)
}

// Refund is one append-only adjustment against a payment, kept for audit.
type Refund struct {
	ID               int64           `json:"id"`
	PaymentID        int64           `json:"payment_id"`
	GatewayRefundRef string          `json:"gateway_refund_ref,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           string          `json:"reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
