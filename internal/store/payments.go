package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/database"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/events"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/gateway"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/metrics"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
)

// RefundResult reports one successful refund: the refreshed ledger entry, the
// gateway's refund reference and the amount that was refunded.
type RefundResult struct {
	Payment   *models.Payment
	RefundRef string
	Amount    decimal.Decimal
}

// CapturePayment captures an AUTHORIZED payment through the gateway and
// records the capture. The ledger is only written after the gateway call
// succeeds; the conditional update keeps a stale caller from capturing twice.
func CapturePayment(ctx context.Context, db *sql.DB, gw gateway.Gateway, pub events.Publisher, tenantID string, orderID int64, paymentRef string, amount decimal.Decimal) (*models.Payment, error) {
	payment, err := GetPaymentByOrder(ctx, db, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	if payment.Status != models.PaymentStatusAuthorized {
		return nil, &models.InvalidTransitionError{From: string(payment.Status), To: string(models.PaymentStatusCaptured)}
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(payment.Amount) {
		return nil, models.ErrInvalidAmount
	}

	if err := gw.Capture(ctx, paymentRef, amount); err != nil {
		return nil, err
	}

	if err := markCaptured(ctx, db, payment.ID, paymentRef); err != nil {
		return nil, err
	}

	payment, err = GetPaymentByOrder(ctx, db, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	pub.Publish(ctx, events.New("payment.captured", tenantID, map[string]any{
		"order_id":    orderID,
		"payment_id":  payment.ID,
		"payment_ref": paymentRef,
		"amount":      amount.String(),
	}))

	return payment, nil
}

// capturedWebhook is the payload the gateway posts when a payment is captured
// on its side.
type capturedWebhook struct {
	GatewayOrderRef   string `json:"gateway_order_ref"`
	GatewayPaymentRef string `json:"gateway_payment_ref"`
}

// HandlePaymentCaptured applies a gateway capture notification. The signature
// must verify before anything is parsed; no gateway call is made since the
// money already moved upstream.
func HandlePaymentCaptured(ctx context.Context, db *sql.DB, gw gateway.Gateway, pub events.Publisher, tenantID string, payload []byte, signature string) (*models.Payment, error) {
	if !gw.VerifySignature(payload, signature) {
		return nil, models.ErrInvalidSignature
	}

	var hook capturedWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	payment, err := getPaymentByGatewayOrderRef(ctx, db, tenantID, hook.GatewayOrderRef)
	if err != nil {
		return nil, err
	}

	if payment.Status != models.PaymentStatusAuthorized {
		return nil, &models.InvalidTransitionError{From: string(payment.Status), To: string(models.PaymentStatusCaptured)}
	}

	if err := markCaptured(ctx, db, payment.ID, hook.GatewayPaymentRef); err != nil {
		return nil, err
	}

	payment, err = GetPaymentByOrder(ctx, db, tenantID, payment.OrderID)
	if err != nil {
		return nil, err
	}

	pub.Publish(ctx, events.New("payment.captured", tenantID, map[string]any{
		"order_id":    payment.OrderID,
		"payment_id":  payment.ID,
		"payment_ref": payment.GatewayPaymentRef,
		"amount":      payment.Amount.String(),
	}))

	return payment, nil
}

// FullRefund refunds whatever remains refundable on the order's payment.
func FullRefund(ctx context.Context, db *sql.DB, gw gateway.Gateway, pub events.Publisher, tenantID string, orderID int64, reason string) (*RefundResult, error) {
	return refundPayment(ctx, db, gw, pub, tenantID, orderID, decimal.Zero, reason, true)
}

// PartialRefund refunds a bounded amount of the order's payment:
// 0 < amount <= (payment.amount - payment.refundAmount).
func PartialRefund(ctx context.Context, db *sql.DB, gw gateway.Gateway, pub events.Publisher, tenantID string, orderID int64, amount decimal.Decimal, reason string) (*RefundResult, error) {
	return refundPayment(ctx, db, gw, pub, tenantID, orderID, amount, reason, false)
}

func refundPayment(ctx context.Context, db *sql.DB, gw gateway.Gateway, pub events.Publisher, tenantID string, orderID int64, amount decimal.Decimal, reason string, full bool) (*RefundResult, error) {
	payment, err := GetPaymentByOrder(ctx, db, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	var orderStatus models.OrderStatus
	err = db.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE id = $1 AND tenant_id = $2`,
		orderID, tenantID).Scan(&orderStatus)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order status: %w", err)
	}

	if orderStatus == models.OrderStatusRefunded {
		return nil, models.ErrRefundNotEligible
	}
	if !payment.Status.IsRefundable() {
		return nil, models.ErrRefundNotEligible
	}

	remaining := payment.Refundable()
	if full {
		amount = remaining
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, models.ErrRefundNotEligible
		}
	} else {
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, models.ErrInvalidAmount
		}
		if amount.GreaterThan(remaining) {
			return nil, &models.RefundExceedsMaxError{Requested: amount, MaxRefundable: remaining}
		}
	}

	refundRef, err := gw.Refund(ctx, payment.GatewayPaymentRef, amount)
	if err != nil {
		// Gateway failure leaves the ledger untouched.
		return nil, err
	}

	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET refund_amount = refund_amount + $1,
			    status = CASE WHEN refund_amount + $1 >= amount
			                  THEN 'REFUNDED'
			                  ELSE 'PARTIALLY_REFUNDED'
			             END,
			    updated_at = NOW()
			WHERE id = $2
			  AND status IN ('CAPTURED', 'PARTIALLY_REFUNDED')
			  AND refund_amount + $1 <= amount`,
			amount, payment.ID)
		if err != nil {
			return fmt.Errorf("apply refund: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return models.ErrRefundNotEligible
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO refunds (payment_id, gateway_refund_ref, amount, reason, created_at)
			VALUES ($1, $2, $3, $4, NOW())`,
			payment.ID, refundRef, amount, reason)
		if err != nil {
			return fmt.Errorf("record refund: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	payment, err = GetPaymentByOrder(ctx, db, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	pub.Publish(ctx, events.New("payment.refunded", tenantID, map[string]any{
		"order_id":       orderID,
		"payment_id":     payment.ID,
		"refund_ref":     refundRef,
		"amount":         amount.String(),
		"payment_status": string(payment.Status),
	}))
	metrics.RefundAmount.Observe(amount.InexactFloat64())

	return &RefundResult{Payment: payment, RefundRef: refundRef, Amount: amount}, nil
}

func GetPaymentByOrder(ctx context.Context, db *sql.DB, tenantID string, orderID int64) (*models.Payment, error) {
	payment := &models.Payment{}

	query := `
		SELECT id, tenant_id, order_id, gateway_order_ref, gateway_payment_ref,
		       amount, refund_amount, status, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		  AND tenant_id = $2`

	err := scanPayment(db.QueryRowContext(ctx, query, orderID, tenantID), payment)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return payment, nil
}

// ListRefunds returns the append-only audit trail for a payment.
func ListRefunds(ctx context.Context, db *sql.DB, paymentID int64) ([]models.Refund, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, payment_id, gateway_refund_ref, amount, reason, created_at
		FROM refunds
		WHERE payment_id = $1
		ORDER BY id`,
		paymentID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []models.Refund
	for rows.Next() {
		var refund models.Refund
		err := rows.Scan(
			&refund.ID,
			&refund.PaymentID,
			&refund.GatewayRefundRef,
			&refund.Amount,
			&refund.Reason,
			&refund.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		refunds = append(refunds, refund)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return refunds, nil
}

func getPaymentByGatewayOrderRef(ctx context.Context, db *sql.DB, tenantID, gatewayOrderRef string) (*models.Payment, error) {
	payment := &models.Payment{}

	query := `
		SELECT id, tenant_id, order_id, gateway_order_ref, gateway_payment_ref,
		       amount, refund_amount, status, created_at, updated_at
		FROM payments
		WHERE gateway_order_ref = $1
		  AND tenant_id = $2`

	err := scanPayment(db.QueryRowContext(ctx, query, gatewayOrderRef, tenantID), payment)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by gateway ref: %w", err)
	}

	return payment, nil
}

func markCaptured(ctx context.Context, db *sql.DB, paymentID int64, paymentRef string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, gateway_payment_ref = $2, updated_at = NOW()
		WHERE id = $3
		  AND status = $4`,
		models.PaymentStatusCaptured, paymentRef, paymentID, models.PaymentStatusAuthorized)
	if err != nil {
		return fmt.Errorf("mark payment captured: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Lost a race: someone else moved the payment out of AUTHORIZED first.
		var current models.PaymentStatus
		if err := db.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = $1`, paymentID).Scan(&current); err != nil {
			return fmt.Errorf("get payment status: %w", err)
		}
		return &models.InvalidTransitionError{From: string(current), To: string(models.PaymentStatusCaptured)}
	}

	return nil
}

func scanPayment(row rowScanner, payment *models.Payment) error {
	return row.Scan(
		&payment.ID,
		&payment.TenantID,
		&payment.OrderID,
		&payment.GatewayOrderRef,
		&payment.GatewayPaymentRef,
		&payment.Amount,
		&payment.RefundAmount,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
}
