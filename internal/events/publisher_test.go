package events

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryPublisherRecordsInOrder(t *testing.T) {
	pub := NewMemoryPublisher()
	ctx := context.Background()

	pub.Publish(ctx, New("order.placed", "tenant-1", map[string]any{"order_id": int64(1)}))
	pub.Publish(ctx, New("order.confirmed", "tenant-1", nil))

	names := pub.Names()
	if len(names) != 2 || names[0] != "order.placed" || names[1] != "order.confirmed" {
		t.Errorf("Unexpected event names: %v", names)
	}

	events := pub.Events()
	if events[0].TenantID != "tenant-1" {
		t.Errorf("Expected tenant-1, got %q", events[0].TenantID)
	}
	if events[0].OccurredAt.IsZero() {
		t.Error("Expected occurred_at to be set")
	}
	if events[0].Payload["order_id"] != int64(1) {
		t.Errorf("Unexpected payload: %v", events[0].Payload)
	}
}

func TestMemoryPublisherConcurrent(t *testing.T) {
	pub := NewMemoryPublisher()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Publish(ctx, New("reservation.released", "tenant-1", nil))
		}()
	}
	wg.Wait()

	if got := len(pub.Events()); got != 20 {
		t.Errorf("Expected 20 events, got %d", got)
	}
}
