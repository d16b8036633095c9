package deck

import "strings"

// IsColorIdentityValid reports whether a card's color identity is legal
// under the commander's. Colorless cards are always legal; a colorless
// commander permits only colorless cards.
func IsColorIdentityValid(cardColors, commanderColors []string) bool {
	if len(cardColors) == 0 {
		return true
	}
	if len(commanderColors) == 0 {
		return false
	}
	allowed := make(map[string]struct{}, len(commanderColors))
	for _, c := range commanderColors {
		allowed[c] = struct{}{}
	}
	for _, c := range cardColors {
		if _, ok := allowed[c]; !ok {
			return false
		}
	}
	return true
}

// BuildCandidates filters the inventory to the legal, unassigned stacks that
// can fill one slot. The result is a snapshot keyed by unit id; nothing is
// mutated.
//
// Rules, in order: color-identity legality, type match (substring for
// non-land slots, exact primary type "Land" for the land slot), exclusion of
// units in the pending working set or assigned to another deck, and the
// basic-land exemption from exclusion.
//
// Exclusion scans every deck's card map and commander reference directly
// instead of trusting a cached index, so optimistic writes from the current
// session cannot leave stale candidates. O(inventory x decks); the inventory
// is small enough that correctness wins over incremental maintenance.
func BuildCandidates(stacks map[string]*Stack, decks map[string]*Deck, slotType string, commanderColors []string, pending map[string]struct{}, excludeDeckID string) map[string]*Stack {
	candidates := make(map[string]*Stack)
	for unitID, s := range stacks {
		if s == nil || s.Count < 1 {
			continue
		}
		if !IsColorIdentityValid(s.ColorIdentity, commanderColors) {
			continue
		}
		if !matchesSlot(s.Card, slotType) {
			continue
		}
		if !s.IsBasicLand() {
			if _, inSession := pending[unitID]; inSession {
				continue
			}
			if assignedToOtherDeck(decks, unitID, excludeDeckID) {
				continue
			}
		}
		candidates[unitID] = s
	}
	return candidates
}

func matchesSlot(c Card, slotType string) bool {
	if slotType == "Land" {
		return c.PrimaryType() == "Land"
	}
	return strings.Contains(c.TypeLine, slotType)
}

func assignedToOtherDeck(decks map[string]*Deck, unitID, excludeDeckID string) bool {
	for _, d := range decks {
		if d == nil || d.DeckID == excludeDeckID {
			continue
		}
		if _, ok := d.Cards[unitID]; ok {
			return true
		}
		if d.Commander != nil && d.Commander.UnitID == unitID {
			return true
		}
	}
	return false
}
