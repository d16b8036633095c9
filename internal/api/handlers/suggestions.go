package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"deckforge/internal/api/response"
	"deckforge/internal/assign"
	"deckforge/internal/deck"
	"deckforge/internal/llm"
	"deckforge/internal/suggest"
)

// SuggestionHandler runs and applies deck suggestion passes.
type SuggestionHandler struct {
	orchestrator *suggest.Orchestrator
	engine       *assign.Engine
	logger       *zap.Logger
}

// NewSuggestionHandler creates a suggestion handler.
func NewSuggestionHandler(orchestrator *suggest.Orchestrator, engine *assign.Engine, logger *zap.Logger) *SuggestionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SuggestionHandler{orchestrator: orchestrator, engine: engine, logger: logger}
}

// RunRequest is the body for POST /api/decks/{deckID}/suggestions.
type RunRequest struct {
	Slot string            `json:"slot,omitempty"`
	Mode string            `json:"mode,omitempty"`
	Seed []deck.Suggestion `json:"seed,omitempty"`
}

// Run handles POST /api/decks/{deckID}/suggestions.
func (h *SuggestionHandler) Run(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")

	var req RunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	mode := suggest.ModePreview
	switch req.Mode {
	case "", string(suggest.ModePreview):
	case string(suggest.ModeAuto):
		mode = suggest.ModeAuto
	default:
		response.BadRequest(w, fmt.Errorf("unknown mode %q", req.Mode))
		return
	}

	summary, err := h.orchestrator.Run(r.Context(), suggest.RunOptions{
		DeckID: deckID,
		Slot:   req.Slot,
		Mode:   mode,
		Seed:   req.Seed,
	})
	switch {
	case errors.Is(err, suggest.ErrRunInFlight):
		response.Conflict(w, err)
	case errors.Is(err, llm.ErrUnavailable):
		response.ServiceUnavailable(w, err)
	case isNotFound(err):
		response.NotFound(w, err)
	case err != nil:
		response.InternalError(w, err)
	default:
		response.Success(w, summary)
	}
}

// ApplyRequest is the body for POST /api/decks/{deckID}/suggestions/apply.
type ApplyRequest struct {
	Suggestions []deck.Suggestion `json:"suggestions"`
}

// Apply handles POST /api/decks/{deckID}/suggestions/apply: the user's
// approved subset of a preview run is committed and its metadata persisted
// under the new unit ids.
func (h *SuggestionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")

	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Suggestions) == 0 {
		response.BadRequest(w, fmt.Errorf("suggestions is required"))
		return
	}

	result, err := h.engine.ApplySuggestions(r.Context(), deckID, req.Suggestions)
	if err != nil {
		if isNotFound(err) {
			response.NotFound(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}

	if metas := metadataFor(req.Suggestions, result); len(metas) > 0 {
		if err := h.orchestrator.SaveMetadata(r.Context(), deckID, metas); err != nil {
			h.logger.Warn("failed to persist suggestion metadata",
				zap.String("deck_id", deckID), zap.Error(err))
		}
	}
	response.Success(w, result)
}

// metadataFor joins commit mappings back to the approved suggestions so
// persisted metadata carries the new unit ids.
func metadataFor(suggestions []deck.Suggestion, result *assign.Result) []deck.SuggestionMeta {
	bySource := make(map[string]deck.Suggestion, len(suggestions))
	byName := make(map[string]deck.Suggestion)
	for _, s := range suggestions {
		if s.UnitID != "" {
			bySource[s.UnitID] = s
		} else {
			byName[s.Name] = s
		}
	}

	metas := make([]deck.SuggestionMeta, 0, len(result.Committed))
	for _, m := range result.Committed {
		s, ok := bySource[m.SourceID]
		if !ok {
			s, ok = byName[m.Name]
		}
		if !ok {
			continue
		}
		metas = append(metas, deck.SuggestionMeta{
			UnitID:     m.NewUnitID,
			Rating:     s.Rating,
			Reason:     s.Reason,
			SourceType: s.SourceType,
			SlotType:   s.SlotType,
		})
	}
	return metas
}
