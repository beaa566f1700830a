package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrVariantNotFound     = errors.New("variant not found")
	ErrVariantNotActive    = errors.New("variant not active")
	ErrTenantMismatch      = errors.New("tenant mismatch")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderItemNotFound   = errors.New("order item not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrReturnNotFound      = errors.New("return request not found")
	ErrReturnItemNotFound  = errors.New("return request item not found")

	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidShippingInfo = errors.New("carrier and tracking number are required")

	ErrPaymentNotCompleted    = errors.New("payment has not been captured")
	ErrIncompleteQualityCheck = errors.New("quality check verdicts incomplete")
	ErrReturnWindowExpired    = errors.New("return window has expired")
	ErrReturnNotEligible      = errors.New("order is not eligible for return")
	ErrReturnClosed           = errors.New("return request is closed")
	ErrRefundNotEligible      = errors.New("payment is not eligible for refund")
	ErrRefundAlreadyProcessed = errors.New("refund already processed for this return")
	ErrRefundProcessingFailed = errors.New("refund processing failed")

	ErrInvalidSignature = errors.New("gateway signature verification failed")
)

// InvalidTransitionError rejects a lifecycle operation whose target state is
// not adjacent to the current one. It names both so stale callers can
// re-fetch and decide.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// InsufficientStockError is a business-rule rejection, not a bug. It always
// carries both sides of the comparison.
type InsufficientStockError struct {
	VariantID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %d: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// StockNegativeError signals a ledger invariant violation: a commit-time
// decrement would drive the counter below zero. It must abort the commit,
// never clamp.
type StockNegativeError struct {
	VariantID int64
	Quantity  int
}

func (e *StockNegativeError) Error() string {
	return fmt.Sprintf("stock would go negative for variant %d: decrement by %d refused",
		e.VariantID, e.Quantity)
}

type InvalidReturnQuantityError struct {
	OrderItemID int64
	Requested   int
	Ordered     int
}

func (e *InvalidReturnQuantityError) Error() string {
	return fmt.Sprintf("invalid return quantity for order item %d: requested %d of %d ordered",
		e.OrderItemID, e.Requested, e.Ordered)
}

type RefundExceedsMaxError struct {
	Requested     decimal.Decimal
	MaxRefundable decimal.Decimal
}

func (e *RefundExceedsMaxError) Error() string {
	return fmt.Sprintf("refund amount %s exceeds maximum refundable %s",
		e.Requested, e.MaxRefundable)
}
