package events

import (
	"context"
	"sync"
	"time"
)

// Event is the payload handed to webhook/notification collaborators. Status
// change events carry the previous and new status alongside the entity ids.
type Event struct {
	Name       string         `json:"name"`
	TenantID   string         `json:"tenant_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher is a fire-and-forget publication point. Implementations must not
// block the caller and must not surface delivery failures; a lost event never
// rolls back the business mutation that produced it.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

func New(name, tenantID string, payload map[string]any) Event {
	return Event{
		Name:       name,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) {}

// MemoryPublisher records events in order of publication. Test use only.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the published event names in order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.events))
	for i, e := range p.events {
		names[i] = e.Name
	}
	return names
}
