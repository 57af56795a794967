// Package event provides an in-process publish-subscribe bus through which
// the scheduler reports task and workflow progress.
package event

import (
	"context"
	"sync"
	"time"
)

// Topics published by the scheduler.
const (
	TaskStatusChanged = "task.status"
	WorkflowFinished  = "workflow.finished"
)

// Handler is a function that handles an event.
type Handler func(ctx context.Context, data any)

// EventBus defines the interface for an event system.
type EventBus interface {
	Subscribe(event string, handler Handler)
	Publish(ctx context.Context, event string, data any)
}

// TaskEvent is the payload of TaskStatusChanged.
type TaskEvent struct {
	WorkflowID string
	TaskID     string
	Category   string
	Status     string
	Error      string
	At         time.Time
}

// WorkflowEvent is the payload of WorkflowFinished.
type WorkflowEvent struct {
	WorkflowID string
	Completed  int
	Failed     int
	Blocked    int
	Findings   int
	Err        string
	At         time.Time
}

// Bus represents the event bus. Handlers run synchronously on the publishing
// goroutine, in subscription order, so progress output keeps event order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
	}
}

// Subscribe adds a handler for a specific event.
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[event] = append(b.subscribers[event], handler)
}

// Publish calls every handler subscribed to the event. A nil bus is a no-op.
func (b *Bus) Publish(ctx context.Context, event string, data any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler{}, b.subscribers[event]...)
	b.mu.RUnlock()
	for _, handler := range handlers {
		handler(ctx, data)
	}
}

// SubscriberCount returns the number of handlers for event.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[event])
}
