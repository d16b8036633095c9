package suggest

import (
	"fmt"

	"deckforge/internal/deck"
	"deckforge/internal/mana"
)

// DefaultLandTarget is the total-land convention for commander decks, used
// when a deck's blueprint does not override it.
const DefaultLandTarget = 37

// DefaultLandTargetSixty is the equivalent convention for sixty-card decks.
const DefaultLandTargetSixty = 24

// autoFillBasics computes the basic lands the working deck still needs and
// turns them into suggestions: one per color, carrying the full copy count,
// backed by a real inventory stack when one exists and a virtual record
// otherwise. Rating is pinned to the maximum since the distribution is
// arithmetic, not a model opinion.
func autoFillBasics(working *deck.Deck, stacks map[string]*deck.Stack, landTarget int) []deck.Suggestion {
	cards := workingCardCounts(working, stacks)
	needs := mana.CalculateBasicLandNeeds(cards, landTarget)
	if needs.Total() == 0 {
		return nil
	}

	suggestions := make([]deck.Suggestion, 0, len(needs.Counts))
	for _, color := range mana.Colors {
		count := needs.Counts[color]
		if count < 1 {
			continue
		}
		name := mana.BasicLandNames[color]
		share := 0
		if needs.Pips.Total > 0 {
			share = needs.Pips.Get(color) * 100 / needs.Pips.Total
		}
		s := deck.Suggestion{
			Name:       name,
			TypeLine:   mana.BasicLandTypeLines[color],
			Rating:     10,
			Reason:     fmt.Sprintf("Auto-filled to match %d%% {%s} pip density.", share, color),
			SourceType: "Land",
			SlotType:   "Land",
			Count:      count,
		}
		if backing := findBasicStack(stacks, name); backing != nil {
			s.UnitID = backing.UnitID
		} else {
			s.Virtual = true
		}
		suggestions = append(suggestions, s)
	}
	return suggestions
}

func findBasicStack(stacks map[string]*deck.Stack, name string) *deck.Stack {
	var best *deck.Stack
	for _, s := range stacks {
		if s.Name != name || !s.IsBasicLand() || s.Count < 1 || s.Pending {
			continue
		}
		// Deterministic choice: largest stack, unit id as tiebreak.
		if best == nil || s.Count > best.Count || (s.Count == best.Count && s.UnitID < best.UnitID) {
			best = s
		}
	}
	return best
}

// workingCardCounts joins the working deck's card map with the stack mirror
// so the pip calculator sees mana costs. Entries with no backing stack fall
// back to the name and type line the deck map carries.
func workingCardCounts(working *deck.Deck, stacks map[string]*deck.Stack) []mana.CardCount {
	cards := make([]mana.CardCount, 0, len(working.Cards)+1)
	for unitID, dc := range working.Cards {
		cc := mana.CardCount{
			Card:  deck.Card{Name: dc.Name, TypeLine: dc.TypeLine},
			Count: dc.Count,
		}
		if s, ok := stacks[unitID]; ok && s != nil {
			cc.Card = s.Card
		}
		cards = append(cards, cc)
	}
	if working.Commander != nil {
		card := deck.Card{Name: working.Commander.Name, TypeLine: "Legendary Creature"}
		if s, ok := stacks[working.Commander.UnitID]; ok && s != nil {
			card = s.Card
		}
		cards = append(cards, mana.CardCount{Card: card, Count: 1})
	}
	return cards
}
