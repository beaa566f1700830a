package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Gateway is the payment capability the refund coordinator depends on. The
// wire protocol behind it is opaque to the fulfillment core; every failure
// surfaces as *Error.
type Gateway interface {
	// CreateOrder registers an order with the gateway and returns its reference.
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error)

	// Capture captures a previously authorized payment.
	Capture(ctx context.Context, paymentRef string, amount decimal.Decimal) error

	// Refund refunds part or all of a captured payment and returns the refund
	// reference.
	Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) (string, error)

	// VerifySignature checks a webhook payload against its signature.
	VerifySignature(payload []byte, signature string) bool
}

// Error wraps any failure coming out of the payment gateway.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
