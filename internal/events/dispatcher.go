// Package events distributes domain events to registered observers.
// The assignment engine and suggestion orchestrator publish here; the
// websocket hub and logging observers subscribe.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event represents a domain event that can be dispatched to observers.
type Event struct {
	// Type is the event type (e.g., "toast:show", "deck:render").
	Type string

	// TypedData contains the event payload as a typed struct.
	TypedData any

	// Context provides execution context for the event.
	Context context.Context
}

// Observer defines the interface for objects that want to be notified of
// events. Implementations can forward events to the frontend, log them, or
// trigger follow-up work.
type Observer interface {
	// OnEvent is called when an event is dispatched.
	OnEvent(event Event) error

	// GetName returns a human-readable name for this observer.
	GetName() string

	// ShouldHandle returns true if this observer should handle the given
	// event type. This allows observers to filter which events they care
	// about.
	ShouldHandle(eventType string) bool
}

// Dispatcher implements the Observer pattern for event distribution.
// Thread-safe for concurrent use.
type Dispatcher struct {
	observers []Observer
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		observers: make([]Observer, 0),
		logger:    logger,
	}
}

// Register adds an observer to the dispatcher. The observer will be
// notified of all future events, filtered by ShouldHandle.
func (d *Dispatcher) Register(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observers = append(d.observers, observer)
	d.logger.Debug("registered observer", zap.String("observer", observer.GetName()))
}

// Unregister removes an observer from the dispatcher.
func (d *Dispatcher) Unregister(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, obs := range d.observers {
		if obs == observer {
			d.observers[i] = d.observers[len(d.observers)-1]
			d.observers = d.observers[:len(d.observers)-1]
			d.logger.Debug("unregistered observer", zap.String("observer", observer.GetName()))
			return
		}
	}
}

// Dispatch sends an event to all registered observers. Observers are
// notified sequentially in registration order. Observer errors are logged
// but do not stop delivery to the remaining observers.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, observer := range observers {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		if err := observer.OnEvent(event); err != nil {
			d.logger.Warn("observer failed to handle event",
				zap.String("observer", observer.GetName()),
				zap.String("event", event.Type),
				zap.Error(err))
		}
	}
}

// DispatchAsync sends an event to all observers, each in its own
// goroutine. Useful for long-running handlers that shouldn't block the
// caller.
func (d *Dispatcher) DispatchAsync(event Event) {
	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, observer := range observers {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		go func(obs Observer) {
			if err := obs.OnEvent(event); err != nil {
				d.logger.Warn("observer failed to handle event",
					zap.String("observer", obs.GetName()),
					zap.String("event", event.Type),
					zap.Error(err))
			}
		}(observer)
	}
}

// ObserverCount returns the number of registered observers.
func (d *Dispatcher) ObserverCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

// Clear removes all registered observers.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = make([]Observer, 0)
}

// NewTypedEvent creates an Event with typed data.
func NewTypedEvent[T any](eventType string, data T, ctx context.Context) Event {
	return Event{
		Type:      eventType,
		TypedData: data,
		Context:   ctx,
	}
}

// GetTypedData extracts typed data from an Event. Returns the zero value
// and false if the data is not of the expected type.
func GetTypedData[T any](event Event) (T, bool) {
	var zero T
	if event.TypedData == nil {
		return zero, false
	}
	typed, ok := event.TypedData.(T)
	return typed, ok
}
