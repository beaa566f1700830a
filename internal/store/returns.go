package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/database"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/events"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/gateway"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/metrics"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
)

// ReturnWindow is how long after delivery a customer may open a return.
const ReturnWindow = 30 * 24 * time.Hour

// CreateReturnRequest is the input to CreateReturn.
type CreateReturnRequest struct {
	TenantID string
	OrderID  int64
	Reason   string
	Items    []ReturnItemRequest
}

type ReturnItemRequest struct {
	OrderItemID int64
	Quantity    int
}

// QualityCheckItem is the warehouse's verdict on one returned line.
type QualityCheckItem struct {
	ReturnItemID     int64
	Condition        models.ItemCondition
	ApprovedQuantity int
}

func generateRMANumber() string {
	return fmt.Sprintf("RMA-%d", time.Now().UnixNano())
}

// CreateReturn opens a return request against a delivered order. The order
// must still be within the return window, and every requested quantity must
// fit inside what was actually ordered. The order moves to RETURN_REQUESTED
// in the same transaction.
func CreateReturn(ctx context.Context, db *sql.DB, pub events.Publisher, req CreateReturnRequest) (*models.ReturnRequest, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	// Lines for the same order item are merged; the aggregate has to fit
	// inside the ordered quantity, split lines included.
	requested := make(map[int64]int, len(req.Items))
	itemOrder := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, models.ErrInvalidQuantity
		}
		if _, ok := requested[item.OrderItemID]; !ok {
			itemOrder = append(itemOrder, item.OrderItemID)
		}
		requested[item.OrderItemID] += item.Quantity
	}

	var returnID int64

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, req.TenantID, req.OrderID)
		if err != nil {
			return err
		}

		if !order.Status.CanBeReturned() {
			return models.ErrReturnNotEligible
		}
		if !order.WithinReturnWindow(ReturnWindow, time.Now()) {
			return models.ErrReturnWindowExpired
		}

		ordered, err := orderItemsByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		lines := make([]models.ReturnRequestItem, 0, len(itemOrder))
		for _, orderItemID := range itemOrder {
			quantity := requested[orderItemID]
			orderItem, ok := ordered[orderItemID]
			if !ok {
				return models.ErrOrderItemNotFound
			}
			if quantity > orderItem.Quantity {
				return &models.InvalidReturnQuantityError{
					OrderItemID: orderItemID,
					Requested:   quantity,
					Ordered:     orderItem.Quantity,
				}
			}

			amount := orderItem.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
			total = total.Add(amount)
			lines = append(lines, models.ReturnRequestItem{
				OrderItemID:  orderItemID,
				Quantity:     quantity,
				UnitPrice:    orderItem.UnitPrice,
				ReturnAmount: amount,
			})
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO return_requests (tenant_id, order_id, rma_number, status, reason, total_return_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			RETURNING id`,
			req.TenantID, req.OrderID, generateRMANumber(), models.ReturnStatusPending, req.Reason, total,
		).Scan(&returnID)
		if err != nil {
			return fmt.Errorf("create return request: %w", err)
		}

		for _, line := range lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO return_request_items (return_request_id, order_item_id, quantity, unit_price, return_amount)
				VALUES ($1, $2, $3, $4, $5)`,
				returnID, line.OrderItemID, line.Quantity, line.UnitPrice, line.ReturnAmount)
			if err != nil {
				return fmt.Errorf("create return item: %w", err)
			}
		}

		return transitionOrderTx(ctx, tx, order, models.OrderStatusReturnRequested)
	})
	if err != nil {
		return nil, err
	}

	return finishReturnTransition(ctx, db, pub, req.TenantID, returnID, "return.requested")
}

// ApproveReturn moves a PENDING request to APPROVED and records who signed
// off on it.
func ApproveReturn(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, returnID int64, approvedBy, notes string) (*models.ReturnRequest, error) {
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, tenantID, returnID)
		if err != nil {
			return err
		}
		if !ret.Status.CanTransitionTo(models.ReturnStatusApproved) {
			return &models.InvalidTransitionError{From: string(ret.Status), To: string(models.ReturnStatusApproved)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE return_requests
			SET status = $1, approved_by = $2, approval_notes = $3, updated_at = NOW()
			WHERE id = $4`,
			models.ReturnStatusApproved, approvedBy, notes, returnID)
		if err != nil {
			return fmt.Errorf("approve return: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return finishReturnTransition(ctx, db, pub, tenantID, returnID, "return.approved")
}

// RejectReturn closes a PENDING request and hands the order back to
// DELIVERED, since nothing is coming back to the warehouse.
func RejectReturn(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, returnID int64, reason string) (*models.ReturnRequest, error) {
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, tenantID, returnID)
		if err != nil {
			return err
		}
		if !ret.Status.CanTransitionTo(models.ReturnStatusRejected) {
			return &models.InvalidTransitionError{From: string(ret.Status), To: string(models.ReturnStatusRejected)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE return_requests
			SET status = $1, rejection_reason = $2, updated_at = NOW()
			WHERE id = $3`,
			models.ReturnStatusRejected, reason, returnID)
		if err != nil {
			return fmt.Errorf("reject return: %w", err)
		}

		order, err := lockOrder(ctx, tx, tenantID, ret.OrderID)
		if err != nil {
			return err
		}
		return transitionOrderTx(ctx, tx, order, models.OrderStatusDelivered)
	})
	if err != nil {
		return nil, err
	}

	return finishReturnTransition(ctx, db, pub, tenantID, returnID, "return.rejected")
}

// MarkPickedUp records that the reverse-logistics carrier collected the goods.
func MarkPickedUp(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, returnID int64) (*models.ReturnRequest, error) {
	if err := transitionReturn(ctx, db, tenantID, returnID, models.ReturnStatusPickedUp); err != nil {
		return nil, err
	}
	return finishReturnTransition(ctx, db, pub, tenantID, returnID, "return.picked_up")
}

// StartQualityCheck moves the request onto the inspection bench.
func StartQualityCheck(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, returnID int64) (*models.ReturnRequest, error) {
	if err := transitionReturn(ctx, db, tenantID, returnID, models.ReturnStatusQualityCheck); err != nil {
		return nil, err
	}
	return finishReturnTransition(ctx, db, pub, tenantID, returnID, "return.quality_check_started")
}

// CompleteQualityCheck records the inspection verdict for every returned
// line. Lines in a resellable condition count toward the refund at their
// approved quantity; the request only reaches QUALITY_APPROVED when every
// line passed and the resulting refund is positive.
func CompleteQualityCheck(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, returnID int64, verdicts []QualityCheckItem) (*models.ReturnRequest, error) {
	if len(verdicts) == 0 {
		return nil, models.ErrIncompleteQualityCheck
	}

	var eventName string

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, tenantID, returnID)
		if err != nil {
			return err
		}
		if ret.Status != models.ReturnStatusQualityCheck {
			return &models.InvalidTransitionError{From: string(ret.Status), To: string(models.ReturnStatusQualityApproved)}
		}

		items, err := returnItemsTx(ctx, tx, returnID)
		if err != nil {
			return err
		}

		byID := make(map[int64]*models.ReturnRequestItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		refund := decimal.Zero
		allEligible := true
		seen := make(map[int64]bool, len(verdicts))
		for _, verdict := range verdicts {
			item, ok := byID[verdict.ReturnItemID]
			if !ok {
				return models.ErrReturnItemNotFound
			}
			if seen[verdict.ReturnItemID] {
				return fmt.Errorf("duplicate verdict for return item %d", verdict.ReturnItemID)
			}
			seen[verdict.ReturnItemID] = true

			if verdict.ApprovedQuantity < 0 || verdict.ApprovedQuantity > item.Quantity {
				return &models.InvalidReturnQuantityError{
					OrderItemID: item.OrderItemID,
					Requested:   verdict.ApprovedQuantity,
					Ordered:     item.Quantity,
				}
			}

			approved := decimal.Zero
			if verdict.Condition.EligibleForFullRefund() {
				approved = item.UnitPrice.Mul(decimal.NewFromInt(int64(verdict.ApprovedQuantity)))
			} else {
				allEligible = false
			}
			refund = refund.Add(approved)

			_, err := tx.ExecContext(ctx, `
				UPDATE return_request_items
				SET condition = $1, approved_quantity = $2, approved_return_amount = $3
				WHERE id = $4`,
				verdict.Condition, verdict.ApprovedQuantity, approved, verdict.ReturnItemID)
			if err != nil {
				return fmt.Errorf("record quality verdict: %w", err)
			}
		}

		if len(seen) != len(items) {
			return fmt.Errorf("%w: %d of %d items have no verdict",
				models.ErrIncompleteQualityCheck, len(items)-len(seen), len(items))
		}

		target := models.ReturnStatusQualityRejected
		eventName = "return.quality_rejected"
		if allEligible && refund.GreaterThan(decimal.Zero) {
			target = models.ReturnStatusQualityApproved
			eventName = "return.quality_approved"
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE return_requests
			SET status = $1, refund_amount = $2, updated_at = NOW()
			WHERE id = $3`,
			target, refund, returnID)
		if err != nil {
			return fmt.Errorf("complete quality check: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return finishReturnTransition(ctx, db, pub, tenantID, returnID, eventName)
}

// ProcessRefund pushes the quality-approved amount back through the payment
// gateway. The request is claimed with a conditional update before the
// gateway call, so concurrent callers cannot issue the refund twice; a
// gateway failure releases the claim back to QUALITY_APPROVED so the
// operation can be retried.
func ProcessRefund(ctx context.Context, db *sql.DB, gw gateway.Gateway, pub events.Publisher, tenantID string, returnID int64) (*models.ReturnRequest, error) {
	ret, err := GetReturn(ctx, db, tenantID, returnID)
	if err != nil {
		return nil, err
	}

	if ret.Status != models.ReturnStatusQualityApproved {
		if ret.Status == models.ReturnStatusRefundProcessed ||
			ret.Status == models.ReturnStatusRefundPending ||
			ret.RefundRef != "" {
			return nil, models.ErrRefundAlreadyProcessed
		}
		return nil, &models.InvalidTransitionError{From: string(ret.Status), To: string(models.ReturnStatusRefundProcessed)}
	}
	if ret.RefundAmount.LessThanOrEqual(decimal.Zero) {
		return nil, models.ErrRefundNotEligible
	}

	// Claim the refund first. Only the caller whose update lands reaches
	// the gateway.
	res, err := db.ExecContext(ctx, `
		UPDATE return_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		  AND tenant_id = $3
		  AND status = $4`,
		models.ReturnStatusRefundPending, returnID, tenantID, models.ReturnStatusQualityApproved)
	if err != nil {
		return nil, fmt.Errorf("claim refund: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim refund: %w", err)
	}
	if rows == 0 {
		return nil, models.ErrRefundAlreadyProcessed
	}

	result, err := PartialRefund(ctx, db, gw, pub, tenantID, ret.OrderID, ret.RefundAmount, "return "+ret.RMANumber)
	if err != nil {
		releaseRefundClaim(ctx, db, tenantID, returnID)
		return nil, fmt.Errorf("%w: %v", models.ErrRefundProcessingFailed, err)
	}

	var fullRefund bool

	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		locked, err := lockReturn(ctx, tx, tenantID, returnID)
		if err != nil {
			return err
		}
		if locked.Status != models.ReturnStatusRefundPending {
			return models.ErrRefundAlreadyProcessed
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE return_requests
			SET status = $1, refund_ref = $2, updated_at = NOW()
			WHERE id = $3`,
			models.ReturnStatusRefundProcessed, result.RefundRef, returnID)
		if err != nil {
			return fmt.Errorf("mark refund processed: %w", err)
		}

		order, err := lockOrder(ctx, tx, tenantID, ret.OrderID)
		if err != nil {
			return err
		}
		if ret.RefundAmount.GreaterThanOrEqual(order.TotalAmount) && order.Status.CanTransitionTo(models.OrderStatusRefunded) {
			fullRefund = true
			return transitionOrderTx(ctx, tx, order, models.OrderStatusRefunded)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fullRefund {
		metrics.OrdersTotal.WithLabelValues(string(models.OrderStatusRefunded)).Inc()
	}

	return finishReturnTransition(ctx, db, pub, tenantID, returnID, "return.refund_processed")
}

// releaseRefundClaim hands a claimed request back to QUALITY_APPROVED after a
// gateway failure so the refund can be retried.
func releaseRefundClaim(ctx context.Context, db *sql.DB, tenantID string, returnID int64) {
	_, err := db.ExecContext(ctx, `
		UPDATE return_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		  AND tenant_id = $3
		  AND status = $4`,
		models.ReturnStatusQualityApproved, returnID, tenantID, models.ReturnStatusRefundPending)
	if err != nil {
		log.WithError(err).WithField("return_id", returnID).Error("Failed to release refund claim")
	}
}

// CompleteReturn closes out a refunded request. The order moves to RETURNED
// unless the refund already escalated it to REFUNDED.
func CompleteReturn(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, returnID int64) (*models.ReturnRequest, error) {
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, tenantID, returnID)
		if err != nil {
			return err
		}
		if !ret.Status.CanTransitionTo(models.ReturnStatusCompleted) {
			return &models.InvalidTransitionError{From: string(ret.Status), To: string(models.ReturnStatusCompleted)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE return_requests
			SET status = $1, updated_at = NOW()
			WHERE id = $2`,
			models.ReturnStatusCompleted, returnID)
		if err != nil {
			return fmt.Errorf("complete return: %w", err)
		}

		order, err := lockOrder(ctx, tx, tenantID, ret.OrderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusReturnRequested {
			return transitionOrderTx(ctx, tx, order, models.OrderStatusReturned)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return finishReturnTransition(ctx, db, pub, tenantID, returnID, "return.completed")
}

// AttachImages stores evidence photo keys against an open return request.
func AttachImages(ctx context.Context, db *sql.DB, tenantID string, returnID int64, storageKeys []string) error {
	if len(storageKeys) == 0 {
		return nil
	}

	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, tenantID, returnID)
		if err != nil {
			return err
		}
		if ret.Status.IsClosed() {
			return models.ErrReturnClosed
		}

		for _, key := range storageKeys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO return_request_images (return_request_id, storage_key, created_at)
				VALUES ($1, $2, NOW())`,
				returnID, key)
			if err != nil {
				return fmt.Errorf("attach image: %w", err)
			}
		}

		return nil
	})
}

func GetReturn(ctx context.Context, db *sql.DB, tenantID string, id int64) (*models.ReturnRequest, error) {
	ret := &models.ReturnRequest{}

	query := `
		SELECT id, tenant_id, order_id, rma_number, status, reason,
		       total_return_amount, refund_amount, approved_by, approval_notes,
		       rejection_reason, refund_ref, created_at, updated_at
		FROM return_requests
		WHERE id = $1
		  AND tenant_id = $2`

	err := scanReturn(db.QueryRowContext(ctx, query, id, tenantID), ret)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrReturnNotFound
		}
		return nil, fmt.Errorf("get return: %w", err)
	}

	items, err := loadReturnItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	ret.Items = items

	images, err := loadReturnImages(ctx, db, id)
	if err != nil {
		return nil, err
	}
	ret.Images = images

	return ret, nil
}

// ListReturnsByOrder returns every return request raised against an order,
// oldest first.
func ListReturnsByOrder(ctx context.Context, db *sql.DB, tenantID string, orderID int64) ([]models.ReturnRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, order_id, rma_number, status, reason,
		       total_return_amount, refund_amount, approved_by, approval_notes,
		       rejection_reason, refund_ref, created_at, updated_at
		FROM return_requests
		WHERE order_id = $1
		  AND tenant_id = $2
		ORDER BY id`,
		orderID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	var returns []models.ReturnRequest
	for rows.Next() {
		var ret models.ReturnRequest
		if err := scanReturn(rows, &ret); err != nil {
			return nil, fmt.Errorf("scan return: %w", err)
		}
		returns = append(returns, ret)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return returns, nil
}

// transitionReturn applies a bare status change with the adjacency guard.
func transitionReturn(ctx context.Context, db *sql.DB, tenantID string, returnID int64, target models.ReturnStatus) error {
	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, tenantID, returnID)
		if err != nil {
			return err
		}
		if !ret.Status.CanTransitionTo(target) {
			return &models.InvalidTransitionError{From: string(ret.Status), To: string(target)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE return_requests
			SET status = $1, updated_at = NOW()
			WHERE id = $2`,
			target, returnID)
		if err != nil {
			return fmt.Errorf("transition return to %s: %w", target, err)
		}

		return nil
	})
}

func finishReturnTransition(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, returnID int64, eventName string) (*models.ReturnRequest, error) {
	ret, err := GetReturn(ctx, db, tenantID, returnID)
	if err != nil {
		return nil, err
	}

	pub.Publish(ctx, events.New(eventName, tenantID, map[string]any{
		"return_id":     ret.ID,
		"rma_number":    ret.RMANumber,
		"order_id":      ret.OrderID,
		"status":        string(ret.Status),
		"refund_amount": ret.RefundAmount.String(),
	}))
	metrics.ReturnsTotal.WithLabelValues(string(ret.Status)).Inc()

	return ret, nil
}

func lockReturn(ctx context.Context, tx *sql.Tx, tenantID string, id int64) (*models.ReturnRequest, error) {
	ret := &models.ReturnRequest{}

	query := `
		SELECT id, tenant_id, order_id, rma_number, status, reason,
		       total_return_amount, refund_amount, approved_by, approval_notes,
		       rejection_reason, refund_ref, created_at, updated_at
		FROM return_requests
		WHERE id = $1
		  AND tenant_id = $2
		FOR UPDATE`

	err := scanReturn(tx.QueryRowContext(ctx, query, id, tenantID), ret)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrReturnNotFound
		}
		return nil, fmt.Errorf("lock return: %w", err)
	}

	return ret, nil
}

// orderItemsByID loads an order's items inside the caller's transaction,
// keyed by item id for quantity validation.
func orderItemsByID(ctx context.Context, tx *sql.Tx, orderID int64) (map[int64]models.OrderItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, variant_id, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64]models.OrderItem)
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.VariantID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[item.ID] = item
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func returnItemsTx(ctx context.Context, tx *sql.Tx, returnID int64) ([]models.ReturnRequestItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, return_request_id, order_item_id, quantity, approved_quantity,
		       condition, unit_price, return_amount, approved_return_amount
		FROM return_request_items
		WHERE return_request_id = $1
		ORDER BY id`,
		returnID)
	if err != nil {
		return nil, fmt.Errorf("load return items: %w", err)
	}
	defer rows.Close()

	var items []models.ReturnRequestItem
	for rows.Next() {
		var item models.ReturnRequestItem
		if err := scanReturnItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan return item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func loadReturnItems(ctx context.Context, db *sql.DB, returnID int64) ([]models.ReturnRequestItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, return_request_id, order_item_id, quantity, approved_quantity,
		       condition, unit_price, return_amount, approved_return_amount
		FROM return_request_items
		WHERE return_request_id = $1
		ORDER BY id`,
		returnID)
	if err != nil {
		return nil, fmt.Errorf("load return items: %w", err)
	}
	defer rows.Close()

	var items []models.ReturnRequestItem
	for rows.Next() {
		var item models.ReturnRequestItem
		if err := scanReturnItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan return item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func loadReturnImages(ctx context.Context, db *sql.DB, returnID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT storage_key
		FROM return_request_images
		WHERE return_request_id = $1
		ORDER BY id`,
		returnID)
	if err != nil {
		return nil, fmt.Errorf("load return images: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan return image: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return keys, nil
}

func scanReturn(row rowScanner, ret *models.ReturnRequest) error {
	return row.Scan(
		&ret.ID,
		&ret.TenantID,
		&ret.OrderID,
		&ret.RMANumber,
		&ret.Status,
		&ret.Reason,
		&ret.TotalReturnAmount,
		&ret.RefundAmount,
		&ret.ApprovedBy,
		&ret.ApprovalNotes,
		&ret.RejectionReason,
		&ret.RefundRef,
		&ret.CreatedAt,
		&ret.UpdatedAt,
	)
}

func scanReturnItem(row rowScanner, item *models.ReturnRequestItem) error {
	return row.Scan(
		&item.ID,
		&item.ReturnRequestID,
		&item.OrderItemID,
		&item.Quantity,
		&item.ApprovedQuantity,
		&item.Condition,
		&item.UnitPrice,
		&item.ReturnAmount,
		&item.ApprovedReturnAmount,
	)
}
