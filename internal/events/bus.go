// Package events implements the in-process event bus connecting the core to
// the presentation layer. Events are advisory: the core never blocks on a
// slow or absent subscriber.
package events

import (
	"sync"
	"time"

	"planforge/internal/logging"
)

// Type identifies an event kind.
type Type string

const (
	TypeApprovalRequested Type = "approval_requested"
	TypePlanStatusChanged Type = "plan_status_changed"
	TypeTaskStatusChanged Type = "task_status_changed"
)

// Event is a single bus message.
type Event struct {
	Type      Type
	SessionID string
	Timestamp time.Time

	// Payload depends on Type: *approval.Request for TypeApprovalRequested,
	// PlanStatus for TypePlanStatusChanged, TaskStatus for TypeTaskStatusChanged.
	Payload interface{}
}

// PlanStatus is the payload of TypePlanStatusChanged.
type PlanStatus struct {
	PlanID string
	Status string
}

// TaskStatus is the payload of TypeTaskStatusChanged.
type TaskStatus struct {
	PlanID string
	TaskID string
	Status string
	Reason string
}

// Bus fans events out to subscribers over buffered channels.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

const subscriberBuffer = 64

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel function. The channel is
// closed on cancel or bus Close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers without blocking. A subscriber
// whose buffer is full misses the event; the core's correctness never depends
// on event delivery.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	logging.EventsDebug("publish %s session=%s", event.Type, event.SessionID)
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logging.Events("dropped %s event: subscriber buffer full", event.Type)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
