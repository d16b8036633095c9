package deck

import (
	"encoding/json"
	"fmt"
)

// Document codecs between typed records and the store's JSON documents.
// Records are validated on the way in from the store so malformed documents
// surface at the boundary instead of deep in the pipeline.

// StackToDoc encodes a stack for persistence.
func StackToDoc(s *Stack) map[string]any {
	return toDoc(s)
}

// StackFromDoc decodes and validates a stack document.
func StackFromDoc(unitID string, doc map[string]any) (*Stack, error) {
	var s Stack
	if err := fromDoc(doc, &s); err != nil {
		return nil, fmt.Errorf("stack %s: %w", unitID, err)
	}
	s.UnitID = unitID
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeckToDoc encodes a deck for persistence.
func DeckToDoc(d *Deck) map[string]any {
	return toDoc(d)
}

// DeckFromDoc decodes and validates a deck document.
func DeckFromDoc(deckID string, doc map[string]any) (*Deck, error) {
	var d Deck
	if err := fromDoc(doc, &d); err != nil {
		return nil, fmt.Errorf("deck %s: %w", deckID, err)
	}
	d.DeckID = deckID
	if d.Cards == nil {
		d.Cards = make(map[string]DeckCard)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func toDoc(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		// Domain records are plain data; this cannot fail at runtime.
		panic(fmt.Sprintf("deck: unencodable record: %v", err))
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("deck: undecodable record: %v", err))
	}
	return doc
}

func fromDoc(doc map[string]any, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
