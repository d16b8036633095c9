// Package mana computes colored-mana requirements and basic-land
// distribution for deck snapshots.
package mana

import (
	"regexp"
	"sort"
	"strings"

	"deckforge/internal/deck"
)

// Colors in WUBRG order.
var Colors = []string{"W", "U", "B", "R", "G"}

// BasicLandNames maps a mana color to its basic land.
var BasicLandNames = map[string]string{
	"W": "Plains",
	"U": "Island",
	"B": "Swamp",
	"R": "Mountain",
	"G": "Forest",
}

// BasicLandTypeLines maps a mana color to the full basic-land type line.
var BasicLandTypeLines = map[string]string{
	"W": "Basic Land — Plains",
	"U": "Basic Land — Island",
	"B": "Basic Land — Swamp",
	"R": "Basic Land — Mountain",
	"G": "Basic Land — Forest",
}

var manaSymbol = regexp.MustCompile(`\{[^}]+\}`)

// Pips counts colored mana symbols per color.
type Pips struct {
	W, U, B, R, G int
	Total         int
}

// Get returns the count for a color symbol.
func (p Pips) Get(color string) int {
	switch color {
	case "W":
		return p.W
	case "U":
		return p.U
	case "B":
		return p.B
	case "R":
		return p.R
	case "G":
		return p.G
	}
	return 0
}

func (p *Pips) add(color string, n int) {
	switch color {
	case "W":
		p.W += n
	case "U":
		p.U += n
	case "B":
		p.B += n
	case "R":
		p.R += n
	case "G":
		p.G += n
	default:
		return
	}
	p.Total += n
}

// CountPipsInManaCost counts colored pips in a mana cost string such as
// "{2}{G}{G}". Hybrid symbols count for both colors, Phyrexian symbols for
// their color; generic, colorless and X symbols are ignored.
func CountPipsInManaCost(manaCost string) Pips {
	var pips Pips
	for _, symbol := range manaSymbol.FindAllString(manaCost, -1) {
		clean := strings.Trim(symbol, "{}")
		switch {
		case strings.Contains(clean, "/"):
			for _, part := range strings.Split(clean, "/") {
				if part == "P" {
					continue
				}
				pips.add(part, 1)
			}
		default:
			pips.add(clean, 1)
		}
	}
	return pips
}

// CardCount pairs a card with how many copies a deck runs.
type CardCount struct {
	Card  deck.Card
	Count int
}

// CountDeckPips totals colored pips across a deck's non-land cards,
// weighting each card by its copy count.
func CountDeckPips(cards []CardCount) Pips {
	var total Pips
	for _, cc := range cards {
		if cc.Card.IsLand() {
			continue
		}
		pips := CountPipsInManaCost(cc.Card.ManaCost)
		n := cc.Count
		if n < 1 {
			n = 1
		}
		for _, color := range Colors {
			total.add(color, pips.Get(color)*n)
		}
	}
	return total
}

// LandProducesColor reports whether a land can produce the given color,
// checking color identity, the produced_mana attribute, and finally scanning
// the oracle text for the symbol or an any-color clause.
func LandProducesColor(card deck.Card, color string) bool {
	for _, c := range card.ColorIdentity {
		if c == color {
			return true
		}
	}
	for _, c := range card.ProducedMana {
		if c == color {
			return true
		}
	}
	if card.OracleText != "" {
		text := strings.ToLower(card.OracleText)
		if strings.Contains(text, strings.ToLower("{"+color+"}")) ||
			strings.Contains(text, "add one mana of any color") {
			return true
		}
	}
	return false
}

// Needs is the recommended basic-land count per color for a deck.
type Needs struct {
	Counts map[string]int

	// Pips are the colored requirements the distribution was derived from.
	Pips Pips

	// CurrentLands is the number of land cards already in the deck.
	CurrentLands int
}

// Total returns the total basic lands recommended.
func (n Needs) Total() int {
	total := 0
	for _, c := range n.Counts {
		total += c
	}
	return total
}

// CalculateBasicLandNeeds distributes the remaining land slots of a deck
// across basic lands in proportion to colored pip density. targetLandCount
// is the desired total lands (37 is the commander convention). A deck with
// no colored pips gets no basics.
//
// Distribution: floor of the proportional share per color, then leftover
// slots handed out one at a time in descending pip order so the totals add
// up exactly.
func CalculateBasicLandNeeds(cards []CardCount, targetLandCount int) Needs {
	needs := Needs{Counts: make(map[string]int)}

	currentLands := 0
	for _, cc := range cards {
		if cc.Card.IsLand() {
			n := cc.Count
			if n < 1 {
				n = 1
			}
			currentLands += n
		}
	}
	needs.CurrentLands = currentLands

	pips := CountDeckPips(cards)
	needs.Pips = pips
	if pips.Total == 0 {
		return needs
	}

	slots := targetLandCount - currentLands
	if slots <= 0 {
		return needs
	}

	allocated := 0
	for _, color := range Colors {
		if pips.Get(color) == 0 {
			continue
		}
		share := slots * pips.Get(color) / pips.Total
		needs.Counts[color] = share
		allocated += share
	}

	// Hand out rounding leftovers to the heaviest colors first.
	order := make([]string, 0, len(needs.Counts))
	for color := range needs.Counts {
		order = append(order, color)
	}
	sort.Slice(order, func(i, j int) bool {
		pi, pj := pips.Get(order[i]), pips.Get(order[j])
		if pi != pj {
			return pi > pj
		}
		return order[i] < order[j]
	})
	for i := 0; allocated < slots && len(order) > 0; i++ {
		color := order[i%len(order)]
		needs.Counts[color]++
		allocated++
	}

	return needs
}

// BasicLandsInUse totals the recommended basic lands across all decks,
// useful for checking physical basic-land supply.
func BasicLandsInUse(decks map[string][]CardCount, targetLandCount int) map[string]int {
	usage := make(map[string]int)
	for _, cards := range decks {
		needs := CalculateBasicLandNeeds(cards, targetLandCount)
		for color, n := range needs.Counts {
			usage[color] += n
		}
	}
	return usage
}
