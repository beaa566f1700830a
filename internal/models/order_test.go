package models

import (
	"testing"
	"time"
)

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPendingPayment, OrderStatusConfirmed, true},
		{OrderStatusPendingPayment, OrderStatusCancelled, true},
		{OrderStatusPendingPayment, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusPacked, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusDelivered, false},
		{OrderStatusPacked, OrderStatusShipped, true},
		{OrderStatusPacked, OrderStatusCancelled, true},
		{OrderStatusPacked, OrderStatusConfirmed, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusPacked, false},
		{OrderStatusDelivered, OrderStatusReturnRequested, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusReturnRequested, OrderStatusReturned, true},
		{OrderStatusReturnRequested, OrderStatusRefunded, true},
		{OrderStatusReturnRequested, OrderStatusDelivered, true},
		{OrderStatusReturnRequested, OrderStatusCancelled, false},
		{OrderStatusReturned, OrderStatusRefunded, true},
		{OrderStatusReturned, OrderStatusDelivered, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
		{OrderStatusRefunded, OrderStatusReturned, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestOrderTerminalStates(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusPendingPayment:  false,
		OrderStatusConfirmed:       false,
		OrderStatusPacked:          false,
		OrderStatusShipped:         false,
		OrderStatusDelivered:       false,
		OrderStatusReturnRequested: false,
		OrderStatusReturned:        false,
		OrderStatusCancelled:       true,
		OrderStatusRefunded:        true,
	}

	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s: expected IsTerminal %v, got %v", status, want, got)
		}
	}
}

func TestCanBeCancelled(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusPendingPayment, OrderStatusConfirmed, OrderStatusPacked, OrderStatusShipped} {
		if !status.CanBeCancelled() {
			t.Errorf("%s should be cancellable", status)
		}
	}
	for _, status := range []OrderStatus{OrderStatusDelivered, OrderStatusReturnRequested, OrderStatusReturned, OrderStatusCancelled, OrderStatusRefunded} {
		if status.CanBeCancelled() {
			t.Errorf("%s should not be cancellable", status)
		}
	}
}

func TestWithinReturnWindow(t *testing.T) {
	window := 30 * 24 * time.Hour
	now := time.Now()

	order := &Order{Status: OrderStatusDelivered}
	if order.WithinReturnWindow(window, now) {
		t.Error("Order without delivery timestamp should not be within window")
	}

	delivered := now.Add(-29 * 24 * time.Hour)
	order.DeliveredAt = &delivered
	if !order.WithinReturnWindow(window, now) {
		t.Error("Order delivered 29 days ago should be within window")
	}

	delivered = now.Add(-31 * 24 * time.Hour)
	order.DeliveredAt = &delivered
	if order.WithinReturnWindow(window, now) {
		t.Error("Order delivered 31 days ago should not be within window")
	}
}
