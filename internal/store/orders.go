package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/database"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/events"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/gateway"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/metrics"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
)

const defaultCurrency = "INR"

var ErrNoItems = errors.New("order must contain at least one item")

type PlaceOrderRequest struct {
	TenantID           string
	CustomerID         string
	Items              []OrderItemRequest
	ReservationTimeout time.Duration
}

type OrderItemRequest struct {
	VariantID int64
	Quantity  int
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

// PlaceOrder reserves stock for every line, registers the order with the
// payment gateway and persists the order in PENDING_PAYMENT together with an
// AUTHORIZED payment row. Any failure along the way releases the holds; the
// stock counters are untouched until confirmation commits the reservations.
func PlaceOrder(ctx context.Context, db *sql.DB, gw gateway.Gateway, pub events.Publisher, req PlaceOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, models.ErrInvalidQuantity
		}
	}

	var reservations []*models.Reservation
	releaseAll := func() {
		for _, r := range reservations {
			if err := ReleaseReservation(ctx, db, req.TenantID, r.ID); err != nil {
				logReleaseFailure(r, err)
			}
		}
	}

	totalAmount := decimal.Zero
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		variant, err := GetVariant(ctx, db, req.TenantID, item.VariantID)
		if err != nil {
			releaseAll()
			return nil, err
		}

		reservation, err := Reserve(ctx, db, req.TenantID, item.VariantID, item.Quantity, req.ReservationTimeout)
		if err != nil {
			releaseAll()
			return nil, err
		}
		reservations = append(reservations, reservation)

		subtotal := variant.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		totalAmount = totalAmount.Add(subtotal)
		items = append(items, models.OrderItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: variant.Price,
			Subtotal:  subtotal,
		})
	}

	orderNumber := generateOrderNumber()

	gatewayOrderRef, err := gw.CreateOrder(ctx, totalAmount, defaultCurrency, orderNumber)
	if err != nil {
		releaseAll()
		return nil, err
	}

	var orderID int64
	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (tenant_id, customer_id, order_number, status, total_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			RETURNING id`,
			req.TenantID, req.CustomerID, orderNumber, models.OrderStatusPendingPayment, totalAmount).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, variant_id, quantity, unit_price, subtotal, created_at)
				VALUES ($1, $2, $3, $4, $5, NOW())`,
				orderID, item.VariantID, item.Quantity, item.UnitPrice, item.Subtotal)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (tenant_id, order_id, gateway_order_ref, amount, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
			req.TenantID, orderID, gatewayOrderRef, totalAmount, models.PaymentStatusAuthorized)
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		reservationIDs := make([]string, len(reservations))
		for i, r := range reservations {
			reservationIDs[i] = r.ID.String()
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE reservations
			SET order_id = $1, updated_at = NOW()
			WHERE id = ANY($2::uuid[])`,
			orderID, pq.Array(reservationIDs))
		if err != nil {
			return fmt.Errorf("link reservations: %w", err)
		}

		return nil
	})
	if err != nil {
		releaseAll()
		return nil, err
	}

	order, err := GetOrder(ctx, db, req.TenantID, orderID)
	if err != nil {
		return nil, err
	}

	pub.Publish(ctx, events.New("order.placed", req.TenantID, map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"customer_id":  order.CustomerID,
		"new_status":   string(order.Status),
		"total_amount": order.TotalAmount.String(),
	}))
	metrics.OrdersTotal.WithLabelValues(string(order.Status)).Inc()

	return order, nil
}

// ConfirmOrder moves a paid order out of PENDING_PAYMENT and commits its
// reservations, which is the moment stock is actually gone. The payment must
// already be captured.
func ConfirmOrder(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, orderID int64) (*models.Order, error) {
	var prev models.OrderStatus

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		prev = order.Status

		if !order.Status.CanTransitionTo(models.OrderStatusConfirmed) {
			return &models.InvalidTransitionError{From: string(order.Status), To: string(models.OrderStatusConfirmed)}
		}

		var paymentStatus models.PaymentStatus
		err = tx.QueryRowContext(ctx,
			`SELECT status FROM payments WHERE order_id = $1`, orderID).Scan(&paymentStatus)
		if err != nil {
			if err == sql.ErrNoRows {
				return models.ErrPaymentNotFound
			}
			return fmt.Errorf("get payment status: %w", err)
		}
		if paymentStatus != models.PaymentStatusCaptured {
			return models.ErrPaymentNotCompleted
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1, confirmed_at = NOW(), updated_at = NOW()
			WHERE id = $2`,
			models.OrderStatusConfirmed, orderID)
		if err != nil {
			return fmt.Errorf("confirm order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reservationIDs, err := activeReservationIDs(ctx, db, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := CommitReservations(ctx, db, tenantID, reservationIDs, orderID); err != nil {
		return nil, err
	}

	return finishTransition(ctx, db, pub, tenantID, orderID, "order.confirmed", prev)
}

func PackOrder(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, orderID int64) (*models.Order, error) {
	var prev models.OrderStatus

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		prev = order.Status

		if !order.Status.CanTransitionTo(models.OrderStatusPacked) {
			return &models.InvalidTransitionError{From: string(order.Status), To: string(models.OrderStatusPacked)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1, packed_at = NOW(), updated_at = NOW()
			WHERE id = $2`,
			models.OrderStatusPacked, orderID)
		if err != nil {
			return fmt.Errorf("pack order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return finishTransition(ctx, db, pub, tenantID, orderID, "order.packed", prev)
}

// ShipOrder requires a carrier and tracking number before the transition is
// attempted.
func ShipOrder(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, orderID int64, carrier, trackingNumber string) (*models.Order, error) {
	if carrier == "" || trackingNumber == "" {
		return nil, models.ErrInvalidShippingInfo
	}

	var prev models.OrderStatus

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		prev = order.Status

		if !order.Status.CanTransitionTo(models.OrderStatusShipped) {
			return &models.InvalidTransitionError{From: string(order.Status), To: string(models.OrderStatusShipped)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1, carrier = $2, tracking_number = $3, shipped_at = NOW(), updated_at = NOW()
			WHERE id = $4`,
			models.OrderStatusShipped, carrier, trackingNumber, orderID)
		if err != nil {
			return fmt.Errorf("ship order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return finishTransition(ctx, db, pub, tenantID, orderID, "order.shipped", prev)
}

func DeliverOrder(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, orderID int64) (*models.Order, error) {
	var prev models.OrderStatus

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		prev = order.Status

		if !order.Status.CanTransitionTo(models.OrderStatusDelivered) {
			return &models.InvalidTransitionError{From: string(order.Status), To: string(models.OrderStatusDelivered)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1, delivered_at = NOW(), updated_at = NOW()
			WHERE id = $2`,
			models.OrderStatusDelivered, orderID)
		if err != nil {
			return fmt.Errorf("deliver order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return finishTransition(ctx, db, pub, tenantID, orderID, "order.delivered", prev)
}

// CancelOrder cancels an order from any state the adjacency table allows and
// releases its ACTIVE reservations. Terminal for normal flow: there is no
// un-cancel.
func CancelOrder(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, orderID int64, reason string) (*models.Order, error) {
	var prev models.OrderStatus

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		prev = order.Status

		if !order.Status.CanBeCancelled() {
			return &models.InvalidTransitionError{From: string(order.Status), To: string(models.OrderStatusCancelled)}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1, cancel_reason = $2, cancelled_at = NOW(), updated_at = NOW()
			WHERE id = $3`,
			models.OrderStatusCancelled, reason, orderID)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := ReleaseOrderReservations(ctx, db, tenantID, orderID); err != nil {
		return nil, err
	}

	return finishTransition(ctx, db, pub, tenantID, orderID, "order.cancelled", prev)
}

func GetOrder(ctx context.Context, db *sql.DB, tenantID string, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, tenant_id, customer_id, order_number, status, total_amount,
		       carrier, tracking_number, cancel_reason,
		       confirmed_at, packed_at, shipped_at, delivered_at, cancelled_at,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
		  AND tenant_id = $2`

	err := scanOrder(db.QueryRowContext(ctx, query, id, tenantID), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := loadOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func ListOrders(ctx context.Context, db *sql.DB, tenantID, customerID string, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, tenant_id, customer_id, order_number, status, total_amount,
		       carrier, tracking_number, cancel_reason,
		       confirmed_at, packed_at, shipped_at, delivered_at, cancelled_at,
		       created_at, updated_at
		FROM orders
		WHERE tenant_id = $1
		  AND customer_id = $2
		  AND (created_at, id) < ($3, $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5`

	rows, err := db.QueryContext(ctx, query, tenantID, customerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, tenantID string, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, tenant_id, customer_id, order_number, status, total_amount,
		       carrier, tracking_number, cancel_reason,
		       confirmed_at, packed_at, shipped_at, delivered_at, cancelled_at,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
		  AND tenant_id = $2
		FOR UPDATE`

	err := scanOrder(tx.QueryRowContext(ctx, query, id, tenantID), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

// transitionOrderTx performs a plain status change inside a caller-held
// transaction. Used for the post-delivery transitions the return workflow
// drives, which carry no milestone timestamp of their own.
func transitionOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order, target models.OrderStatus) error {
	if !order.Status.CanTransitionTo(target) {
		return &models.InvalidTransitionError{From: string(order.Status), To: string(target)}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2`,
		target, order.ID)
	if err != nil {
		return fmt.Errorf("transition order to %s: %w", target, err)
	}

	order.Status = target
	return nil
}

// finishTransition reloads the order and publishes the status-change event.
// Publication is best-effort and never fails the transition that already
// committed.
func finishTransition(ctx context.Context, db *sql.DB, pub events.Publisher, tenantID string, orderID int64, eventName string, prev models.OrderStatus) (*models.Order, error) {
	order, err := GetOrder(ctx, db, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	pub.Publish(ctx, events.New(eventName, tenantID, map[string]any{
		"order_id":        order.ID,
		"order_number":    order.OrderNumber,
		"customer_id":     order.CustomerID,
		"previous_status": string(prev),
		"new_status":      string(order.Status),
	}))
	metrics.OrdersTotal.WithLabelValues(string(order.Status)).Inc()

	return order, nil
}

func loadOrderItems(ctx context.Context, db *sql.DB, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, variant_id, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
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
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func scanOrder(row rowScanner, order *models.Order) error {
	var confirmedAt, packedAt, shippedAt, deliveredAt, cancelledAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.TenantID,
		&order.CustomerID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.Carrier,
		&order.TrackingNumber,
		&order.CancelReason,
		&confirmedAt,
		&packedAt,
		&shippedAt,
		&deliveredAt,
		&cancelledAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	order.ConfirmedAt = nullTimePtr(confirmedAt)
	order.PackedAt = nullTimePtr(packedAt)
	order.ShippedAt = nullTimePtr(shippedAt)
	order.DeliveredAt = nullTimePtr(deliveredAt)
	order.CancelledAt = nullTimePtr(cancelledAt)

	return nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
