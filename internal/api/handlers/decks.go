package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"deckforge/internal/api/response"
	"deckforge/internal/assign"
	"deckforge/internal/deck"
)

// DeckHandler serves deck reads and assignment mutations.
type DeckHandler struct {
	state  *deck.State
	engine *assign.Engine
	logger *zap.Logger
}

// NewDeckHandler creates a deck handler.
func NewDeckHandler(state *deck.State, engine *assign.Engine, logger *zap.Logger) *DeckHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeckHandler{state: state, engine: engine, logger: logger}
}

// DeckSummary is the list-view shape for a deck.
type DeckSummary struct {
	DeckID    string `json:"deckId"`
	Name      string `json:"name"`
	Format    string `json:"format,omitempty"`
	Commander string `json:"commander,omitempty"`
	CardCount int    `json:"cardCount"`
}

// List handles GET /api/decks.
func (h *DeckHandler) List(w http.ResponseWriter, r *http.Request) {
	decks := h.state.Decks()
	summaries := make([]DeckSummary, 0, len(decks))
	for _, d := range decks {
		s := DeckSummary{
			DeckID:    d.DeckID,
			Name:      d.Name,
			Format:    d.Format,
			CardCount: d.NonCommanderCount(),
		}
		if d.Commander != nil {
			s.Commander = d.Commander.Name
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	response.Success(w, summaries)
}

// Get handles GET /api/decks/{deckID}.
func (h *DeckHandler) Get(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")
	d := h.state.Deck(deckID)
	if d == nil {
		response.NotFound(w, fmt.Errorf("deck %s not found", deckID))
		return
	}
	response.Success(w, d)
}

// Delete handles DELETE /api/decks/{deckID}. The deleteCards query flag
// also removes the deck's assigned unit stacks instead of returning them
// to the collection.
func (h *DeckHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")
	deleteCards := r.URL.Query().Get("deleteCards") == "true"
	if err := h.engine.DeleteDeck(r.Context(), deckID, deleteCards); err != nil {
		if isNotFound(err) {
			response.NotFound(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}
	response.NoContent(w)
}

// AssignRequest is the body for POST /api/decks/{deckID}/cards.
type AssignRequest struct {
	UnitIDs []string `json:"unitIds"`
}

// AssignCards handles POST /api/decks/{deckID}/cards.
func (h *DeckHandler) AssignCards(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.UnitIDs) == 0 {
		response.BadRequest(w, fmt.Errorf("unitIds is required"))
		return
	}

	result, err := h.engine.Assign(r.Context(), deckID, req.UnitIDs)
	if err != nil {
		if isNotFound(err) {
			response.NotFound(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}
	response.Success(w, result)
}

// RemoveCard handles DELETE /api/decks/{deckID}/cards/{unitID}.
func (h *DeckHandler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")
	unitID := chi.URLParam(r, "unitID")
	if err := h.engine.RemoveCard(r.Context(), deckID, unitID); err != nil {
		if isNotFound(err) {
			response.NotFound(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}
	response.NoContent(w)
}

func isNotFound(err error) bool {
	return errors.Is(err, assign.ErrDeckNotFound) || errors.Is(err, assign.ErrCardNotFound)
}
