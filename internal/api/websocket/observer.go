package websocket

import (
	"deckforge/internal/events"
)

// Observer forwards dispatched domain events to all connected WebSocket
// clients, bridging the event dispatcher to the frontend.
type Observer struct {
	name string
	hub  *Hub
}

// NewObserver creates an observer bound to a hub.
func NewObserver(hub *Hub) *Observer {
	return &Observer{
		name: "WebSocketObserver",
		hub:  hub,
	}
}

// OnEvent broadcasts the event to all connected clients.
func (o *Observer) OnEvent(event events.Event) error {
	if o.hub == nil {
		return nil
	}
	o.hub.BroadcastEvent(Event{
		Type: event.Type,
		Data: event.TypedData,
	})
	return nil
}

// GetName returns the observer's name.
func (o *Observer) GetName() string {
	return o.name
}

// ShouldHandle forwards every event type; the frontend filters for itself.
func (o *Observer) ShouldHandle(string) bool {
	return true
}

var _ events.Observer = (*Observer)(nil)
