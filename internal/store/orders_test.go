package store

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/events"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/gateway"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
)

func TestPlaceOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant1 := createTestVariant(t, db, "ORD-001", 100, 50)
	variant2 := createTestVariant(t, db, "ORD-002", 200, 30)

	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{
		{VariantID: variant1.ID, Quantity: 5},
		{VariantID: variant2.ID, Quantity: 3},
	})

	if order.Status != models.OrderStatusPendingPayment {
		t.Errorf("Expected PENDING_PAYMENT, got %s", order.Status)
	}

	expectedTotal := decimal.NewFromInt(100).Mul(decimal.NewFromInt(5)).
		Add(decimal.NewFromInt(200).Mul(decimal.NewFromInt(3)))
	if !order.TotalAmount.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, order.TotalAmount)
	}
	if len(order.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(order.Items))
	}

	payment, err := GetPaymentByOrder(ctx, db, testTenant, order.ID)
	if err != nil {
		t.Fatalf("Get payment: %v", err)
	}
	if payment.Status != models.PaymentStatusAuthorized {
		t.Errorf("Expected AUTHORIZED payment, got %s", payment.Status)
	}
	if !payment.Amount.Equal(expectedTotal) {
		t.Errorf("Expected payment amount %s, got %s", expectedTotal, payment.Amount)
	}
	if payment.GatewayOrderRef == "" {
		t.Error("Payment should carry the gateway order reference")
	}

	// Placement holds stock but does not decrement it.
	available, err := AvailableStock(ctx, db, testTenant, variant1.ID)
	if err != nil {
		t.Fatalf("Available stock: %v", err)
	}
	if available != 45 {
		t.Errorf("Expected available 45, got %d", available)
	}
	after, err := GetVariant(ctx, db, testTenant, variant1.ID)
	if err != nil {
		t.Fatalf("Get variant: %v", err)
	}
	if after.Stock != 50 {
		t.Errorf("Stock counter should remain 50, got %d", after.Stock)
	}

	names := pub.Names()
	if len(names) == 0 || names[len(names)-1] != "order.placed" {
		t.Errorf("Expected order.placed event, got %v", names)
	}
}

func TestPlaceOrderInsufficientStockReleasesHolds(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant1 := createTestVariant(t, db, "ORD-003", 100, 50)
	variant2 := createTestVariant(t, db, "ORD-004", 100, 2)

	_, err := PlaceOrder(ctx, db, gw, pub, PlaceOrderRequest{
		TenantID:   testTenant,
		CustomerID: "cust-1",
		Items: []OrderItemRequest{
			{VariantID: variant1.ID, Quantity: 5},
			{VariantID: variant2.ID, Quantity: 10},
		},
	})

	var insufficient *models.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected insufficient stock error, got: %v", err)
	}

	// The hold taken for the first line must be released again.
	available, err := AvailableStock(ctx, db, testTenant, variant1.ID)
	if err != nil {
		t.Fatalf("Available stock: %v", err)
	}
	if available != 50 {
		t.Errorf("Expected available back to 50, got %d", available)
	}
}

func TestOrderLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-005", 100, 20)
	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 4}})

	delivered := deliverTestOrder(t, db, gw, pub, order)

	if delivered.Status != models.OrderStatusDelivered {
		t.Errorf("Expected DELIVERED, got %s", delivered.Status)
	}
	if delivered.ConfirmedAt == nil || delivered.PackedAt == nil || delivered.ShippedAt == nil || delivered.DeliveredAt == nil {
		t.Error("All milestone timestamps should be set")
	}
	if delivered.Carrier != "bluedart" || delivered.TrackingNumber != "TRK-1" {
		t.Errorf("Expected shipping info recorded, got %q %q", delivered.Carrier, delivered.TrackingNumber)
	}

	// Confirmation committed the reservation into a real decrement.
	after, err := GetVariant(ctx, db, testTenant, variant.ID)
	if err != nil {
		t.Fatalf("Get variant: %v", err)
	}
	if after.Stock != 16 {
		t.Errorf("Expected stock 16 after confirmation, got %d", after.Stock)
	}
}

func TestConfirmRequiresCapturedPayment(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-006", 100, 20)
	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 2}})

	_, err := ConfirmOrder(ctx, db, pub, testTenant, order.ID)
	if !errors.Is(err, models.ErrPaymentNotCompleted) {
		t.Fatalf("Expected payment not completed error, got: %v", err)
	}

	after, err := GetOrder(ctx, db, testTenant, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.Status != models.OrderStatusPendingPayment {
		t.Errorf("Order should remain PENDING_PAYMENT, got %s", after.Status)
	}
}

func TestShipRequiresShippingInfo(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-007", 100, 20)
	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 1}})

	payment, err := GetPaymentByOrder(ctx, db, testTenant, order.ID)
	if err != nil {
		t.Fatalf("Get payment: %v", err)
	}
	if _, err := CapturePayment(ctx, db, gw, pub, testTenant, order.ID, "pay_1", payment.Amount); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if _, err := ConfirmOrder(ctx, db, pub, testTenant, order.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := PackOrder(ctx, db, pub, testTenant, order.ID); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	if _, err := ShipOrder(ctx, db, pub, testTenant, order.ID, "", "TRK-1"); !errors.Is(err, models.ErrInvalidShippingInfo) {
		t.Errorf("Expected invalid shipping info for empty carrier, got: %v", err)
	}
	if _, err := ShipOrder(ctx, db, pub, testTenant, order.ID, "bluedart", ""); !errors.Is(err, models.ErrInvalidShippingInfo) {
		t.Errorf("Expected invalid shipping info for empty tracking, got: %v", err)
	}
}

func TestInvalidTransitionLeavesOrderUnchanged(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-008", 100, 20)
	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 1}})

	_, err := DeliverOrder(ctx, db, pub, testTenant, order.ID)

	var invalid *models.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected invalid transition error, got: %v", err)
	}

	after, err := GetOrder(ctx, db, testTenant, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.Status != models.OrderStatusPendingPayment {
		t.Errorf("Order should remain PENDING_PAYMENT, got %s", after.Status)
	}
}

func TestCancelOrderReleasesReservations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-009", 100, 20)
	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 8}})

	cancelled, err := CancelOrder(ctx, db, pub, testTenant, order.ID, "customer changed mind")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.OrderStatusCancelled {
		t.Errorf("Expected CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.CancelReason != "customer changed mind" {
		t.Errorf("Expected cancel reason recorded, got %q", cancelled.CancelReason)
	}

	available, err := AvailableStock(ctx, db, testTenant, variant.ID)
	if err != nil {
		t.Fatalf("Available stock: %v", err)
	}
	if available != 20 {
		t.Errorf("Expected available back to 20, got %d", available)
	}
}

func TestCancelAfterDeliveryRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-010", 100, 20)
	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 1}})
	deliverTestOrder(t, db, gw, pub, order)

	_, err := CancelOrder(ctx, db, pub, testTenant, order.ID, "too late")

	var invalid *models.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Errorf("Expected invalid transition error, got: %v", err)
	}
}

func TestGetOrderWrongTenant(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-011", 100, 20)
	order := placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 1}})

	if _, err := GetOrder(ctx, db, "tenant-other", order.ID); !errors.Is(err, models.ErrOrderNotFound) {
		t.Errorf("Expected order not found for foreign tenant, got: %v", err)
	}
}

func TestListOrdersPagination(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	gw := gateway.NewSandbox("test-secret")
	pub := events.NewMemoryPublisher()

	variant := createTestVariant(t, db, "ORD-012", 100, 50)
	for i := 0; i < 5; i++ {
		placeTestOrder(t, db, gw, pub, []OrderItemRequest{{VariantID: variant.ID, Quantity: 1}})
	}

	page1, err := ListOrders(ctx, db, testTenant, "cust-1", "", 3)
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	if got := len(page1.Items.([]models.Order)); got != 3 {
		t.Errorf("Expected 3 orders on page 1, got %d", got)
	}
	if !page1.HasMore || page1.NextCursor == "" {
		t.Fatal("Expected a next cursor")
	}

	page2, err := ListOrders(ctx, db, testTenant, "cust-1", page1.NextCursor, 3)
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if got := len(page2.Items.([]models.Order)); got != 2 {
		t.Errorf("Expected 2 orders on page 2, got %d", got)
	}
	if page2.HasMore {
		t.Error("Expected no further pages")
	}
}
