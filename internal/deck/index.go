package deck

// DeckRef identifies a deck holding a unit.
type DeckRef struct {
	DeckID   string `json:"deckId"`
	DeckName string `json:"deckName"`
}

// Index is the derived reverse map from unit id to the deck(s) referencing
// it. It is recomputed from the full deck collection after every change and
// is never the source of truth. For ordinary cards each value list has at
// most one entry; only basic lands are exempt from that invariant.
type Index map[string][]DeckRef

// BuildIndex rebuilds the assignment index from all decks' card maps and
// commander references. Pure; the caller decides when to apply the result.
func BuildIndex(decks map[string]*Deck) Index {
	idx := make(Index)
	for _, d := range decks {
		if d == nil {
			continue
		}
		ref := DeckRef{DeckID: d.DeckID, DeckName: d.Name}
		for unitID := range d.Cards {
			idx.add(unitID, ref)
		}
		if d.Commander != nil && d.Commander.UnitID != "" {
			idx.add(d.Commander.UnitID, ref)
		}
	}
	return idx
}

func (idx Index) add(unitID string, ref DeckRef) {
	for _, existing := range idx[unitID] {
		if existing.DeckID == ref.DeckID {
			return
		}
	}
	idx[unitID] = append(idx[unitID], ref)
}

// Assignments returns the decks referencing a unit, nil if unassigned.
func (idx Index) Assignments(unitID string) []DeckRef {
	return idx[unitID]
}

// AssignedElsewhere reports whether the unit is referenced by any deck other
// than the given one.
func (idx Index) AssignedElsewhere(unitID, deckID string) bool {
	for _, ref := range idx[unitID] {
		if ref.DeckID != deckID {
			return true
		}
	}
	return false
}
