package handlers

import (
	"net/http"
	"sort"

	"deckforge/internal/api/response"
	"deckforge/internal/deck"
)

// CollectionHandler serves the owned-card inventory.
type CollectionHandler struct {
	state *deck.State
}

// NewCollectionHandler creates a collection handler.
func NewCollectionHandler(state *deck.State) *CollectionHandler {
	return &CollectionHandler{state: state}
}

// StackView is the API shape for one inventory stack.
type StackView struct {
	UnitID string `json:"unitId"`
	deck.Card
	Count       int           `json:"count"`
	Pending     bool          `json:"pending,omitempty"`
	AssignedTo  []deckRefView `json:"assignedTo,omitempty"`
	IsBasicLand bool          `json:"isBasicLand,omitempty"`
}

type deckRefView struct {
	DeckID   string `json:"deckId"`
	DeckName string `json:"deckName"`
}

// List handles GET /api/collection.
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	stacks := h.state.Stacks()
	index := h.state.Index()

	views := make([]StackView, 0, len(stacks))
	for unitID, s := range stacks {
		v := StackView{
			UnitID:      unitID,
			Card:        s.Card,
			Count:       s.Count,
			Pending:     s.Pending,
			IsBasicLand: s.IsBasicLand(),
		}
		for _, ref := range index.Assignments(unitID) {
			v.AssignedTo = append(v.AssignedTo, deckRefView{DeckID: ref.DeckID, DeckName: ref.DeckName})
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Name != views[j].Name {
			return views[i].Name < views[j].Name
		}
		return views[i].UnitID < views[j].UnitID
	})
	response.Success(w, views)
}
