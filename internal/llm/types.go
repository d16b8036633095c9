// Package llm talks to the suggestion model endpoint. It owns the request
// and response wire shapes, the retry and dedup policy around model calls,
// and the error taxonomy callers branch on.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means no model endpoint is configured. Callers treat
	// the suggestion feature as disabled rather than failed.
	ErrUnavailable = errors.New("suggestion model not configured")

	// ErrBlocked means the model refused the prompt. Blocked prompts are
	// not retried; the same input produces the same refusal.
	ErrBlocked = errors.New("prompt blocked by model")
)

// CandidateRecord is one owned card offered to the model. Field names match
// the stored card documents so prompts stay consistent with persistence.
type CandidateRecord struct {
	UnitID      string   `json:"unitId"`
	Name        string   `json:"name"`
	TypeLine    string   `json:"type_line"`
	OracleText  string   `json:"oracle_text"`
	ManaCost    string   `json:"mana_cost"`
	CMC         float64  `json:"cmc"`
	Power       string   `json:"power,omitempty"`
	Toughness   string   `json:"toughness,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	OwnedCount  int      `json:"owned_count"`
	IsBasicLand bool     `json:"is_basic_land,omitempty"`
}

// SuggestionRequest is the full payload for one model call.
type SuggestionRequest struct {
	Instructions string            `json:"instructions"`
	Blueprint    map[string]any    `json:"blueprint,omitempty"`
	Candidates   []CandidateRecord `json:"candidates"`
}

// ModelSuggestion is one pick returned by the model.
type ModelSuggestion struct {
	UnitID string  `json:"unitId"`
	Rating float64 `json:"rating"`
	Reason string  `json:"reason"`
	Count  int     `json:"count,omitempty"`
}

// SuggestionResponse is the parsed model output.
type SuggestionResponse struct {
	Suggestions []ModelSuggestion `json:"suggestions"`
}

// Client produces deck suggestions from a candidate pool.
type Client interface {
	Suggest(ctx context.Context, req SuggestionRequest) (*SuggestionResponse, error)
}
