package deck

import "sync"

// State is the local optimistic mirror of the authoritative store: inventory
// stacks, decks, and the derived assignment index. It replaces the browser
// client's page-global caches with one injectable service object.
//
// Mutated only by the assignment engine and reconciliation sync; reads hand
// out snapshots or clones so callers never hold live map references.
type State struct {
	mu     sync.RWMutex
	stacks map[string]*Stack
	decks  map[string]*Deck
	index  Index
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		stacks: make(map[string]*Stack),
		decks:  make(map[string]*Deck),
		index:  make(Index),
	}
}

// Load replaces the full contents, as when hydrating from the store at
// startup, and rebuilds the index.
func (s *State) Load(stacks map[string]*Stack, decks map[string]*Deck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stacks = make(map[string]*Stack, len(stacks))
	for id, st := range stacks {
		s.stacks[id] = st
	}
	s.decks = make(map[string]*Deck, len(decks))
	for id, d := range decks {
		s.decks[id] = d
	}
	s.index = BuildIndex(s.decks)
}

// Stack returns a clone of the stack, or nil when absent.
func (s *State) Stack(unitID string) *Stack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stacks[unitID]; ok {
		return st.Clone()
	}
	return nil
}

// PutStack inserts or replaces a stack.
func (s *State) PutStack(st *Stack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stacks[st.UnitID] = st
}

// RemoveStack deletes a stack from the mirror.
func (s *State) RemoveStack(unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stacks, unitID)
}

// AdjustStackCount decrements (or increments) a stack's count, removing the
// stack entirely when it reaches zero. Reports whether the stack existed.
func (s *State) AdjustStackCount(unitID string, delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stacks[unitID]
	if !ok {
		return false
	}
	st.Count += delta
	if st.Count <= 0 {
		delete(s.stacks, unitID)
	}
	return true
}

// Deck returns a deep copy of the deck, or nil when absent.
func (s *State) Deck(deckID string) *Deck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.decks[deckID]; ok {
		return d.Clone()
	}
	return nil
}

// PutDeck inserts or replaces a deck.
func (s *State) PutDeck(d *Deck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decks[d.DeckID] = d
}

// RemoveDeck deletes a deck from the mirror.
func (s *State) RemoveDeck(deckID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.decks, deckID)
}

// UpsertDeckCard merges a unit into a deck's card map: the entry is created
// when absent, otherwise its count is incremented.
func (s *State) UpsertDeckCard(deckID, unitID string, card DeckCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decks[deckID]
	if !ok {
		return
	}
	if d.Cards == nil {
		d.Cards = make(map[string]DeckCard)
	}
	if existing, ok := d.Cards[unitID]; ok {
		existing.Count += card.Count
		d.Cards[unitID] = existing
	} else {
		d.Cards[unitID] = card
	}
}

// RemoveDeckCard deletes a unit entry from a deck's card map.
func (s *State) RemoveDeckCard(deckID, unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.decks[deckID]; ok {
		delete(d.Cards, unitID)
	}
}

// Snapshot returns shallow copies of the stack and deck maps for read-only
// candidate building. The pointed-to records must not be mutated.
func (s *State) Snapshot() (map[string]*Stack, map[string]*Deck) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stacks := make(map[string]*Stack, len(s.stacks))
	for id, st := range s.stacks {
		stacks[id] = st
	}
	decks := make(map[string]*Deck, len(s.decks))
	for id, d := range s.decks {
		decks[id] = d
	}
	return stacks, decks
}

// RebuildIndex recomputes the assignment index from the current decks. Must
// run after every assignment commit and deck load.
func (s *State) RebuildIndex() Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = BuildIndex(s.decks)
	return s.index
}

// Index returns the last rebuilt assignment index.
func (s *State) Index() Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Stacks returns clones of all stacks.
func (s *State) Stacks() map[string]*Stack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Stack, len(s.stacks))
	for id, st := range s.stacks {
		out[id] = st.Clone()
	}
	return out
}

// Decks returns deep copies of all decks.
func (s *State) Decks() map[string]*Deck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Deck, len(s.decks))
	for id, d := range s.decks {
		out[id] = d.Clone()
	}
	return out
}

// FindStackByPrinting returns a clone of a stack matching the card id and
// finish, used when merging a removed unit back into the collection. Returns
// nil if no stack matches; the excluded unit id is skipped.
func (s *State) FindStackByPrinting(cardID, finish, excludeUnitID string) *Stack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, st := range s.stacks {
		if id == excludeUnitID {
			continue
		}
		if st.CardID == cardID && st.Finish == finish {
			return st.Clone()
		}
	}
	return nil
}
