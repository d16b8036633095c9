package events

import "context"

// Event type names published by the pipeline.
const (
	TypeToast              = "toast:show"
	TypeDeckRender         = "deck:render"
	TypeDeckUpdated        = "deck:updated"
	TypeCollectionUpdated  = "collection:updated"
	TypeSuggestionsReady   = "suggestions:ready"
	TypeAssignmentProgress = "assignment:progress"
	TypeSyncCompleted      = "sync:completed"
)

// Toast severity levels.
const (
	ToastInfo    = "info"
	ToastSuccess = "success"
	ToastWarning = "warning"
	ToastError   = "error"
)

// ToastEvent is the payload for toast:show events. Sent when the user
// should see a transient notification.
type ToastEvent struct {
	Level   string `json:"level"`   // One of the Toast* levels
	Message string `json:"message"` // Human-readable text
}

// RenderDeckEvent is the payload for deck:render events. Sent when a
// deck's working view changed and should be redrawn.
type RenderDeckEvent struct {
	DeckID string `json:"deckId"` // Deck whose view is stale
}

// DeckUpdatedEvent is the payload for deck:updated events. Sent after a
// deck document changed in the store.
type DeckUpdatedEvent struct {
	DeckID string `json:"deckId"`
}

// CollectionUpdatedEvent is the payload for collection:updated events.
// Sent when owned stacks were created, split, or removed.
type CollectionUpdatedEvent struct {
	Changed int `json:"changed"` // Number of stacks touched
}

// SuggestionsReadyEvent is the payload for suggestions:ready events.
// Sent when a suggestion pass produced results for review.
type SuggestionsReadyEvent struct {
	DeckID string `json:"deckId"`
	Slot   string `json:"slot,omitempty"` // Empty for a full-deck pass
	Count  int    `json:"count"`          // Suggestions produced
}

// AssignmentProgressEvent is the payload for assignment:progress events.
// Sent after each committed chunk during a batch assignment.
type AssignmentProgressEvent struct {
	DeckID    string `json:"deckId"`
	Committed int    `json:"committed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

// SyncCompletedEvent is the payload for sync:completed events. Sent when
// reconciliation replaced optimistic placeholders with stored documents.
type SyncCompletedEvent struct {
	DeckID   string `json:"deckId"`
	Replaced int    `json:"replaced"`
	Missing  int    `json:"missing"`
}

// Toast dispatches a toast notification.
func (d *Dispatcher) Toast(level, message string) {
	d.Dispatch(NewTypedEvent(TypeToast, ToastEvent{Level: level, Message: message}, context.Background()))
}

// Render dispatches a redraw request for one deck.
func (d *Dispatcher) Render(deckID string) {
	d.Dispatch(NewTypedEvent(TypeDeckRender, RenderDeckEvent{DeckID: deckID}, context.Background()))
}
