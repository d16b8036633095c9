package mana

import (
	"testing"

	"deckforge/internal/deck"
)

func TestCountPipsInManaCost(t *testing.T) {
	tests := []struct {
		cost string
		want Pips
	}{
		{"{2}{G}{G}", Pips{G: 2, Total: 2}},
		{"{1}{U}{W}", Pips{U: 1, W: 1, Total: 2}},
		{"{W/U}", Pips{W: 1, U: 1, Total: 2}},
		{"{W/P}", Pips{W: 1, Total: 1}},
		{"{X}{C}{3}", Pips{}},
		{"", Pips{}},
	}
	for _, tt := range tests {
		if got := CountPipsInManaCost(tt.cost); got != tt.want {
			t.Errorf("CountPipsInManaCost(%q) = %+v, want %+v", tt.cost, got, tt.want)
		}
	}
}

func TestCountDeckPipsSkipsLands(t *testing.T) {
	cards := []CardCount{
		{Card: deck.Card{Name: "Cultivate", TypeLine: "Sorcery", ManaCost: "{2}{G}"}, Count: 1},
		{Card: deck.Card{Name: "Forest", TypeLine: "Basic Land — Forest"}, Count: 10},
		{Card: deck.Card{Name: "Llanowar Elves", TypeLine: "Creature — Elf Druid", ManaCost: "{G}"}, Count: 2},
	}
	pips := CountDeckPips(cards)
	if pips.G != 3 || pips.Total != 3 {
		t.Errorf("expected 3 green pips, got %+v", pips)
	}
}

func TestLandProducesColor(t *testing.T) {
	byIdentity := deck.Card{Name: "Breeding Pool", TypeLine: "Land — Forest Island", ColorIdentity: []string{"G", "U"}}
	if !LandProducesColor(byIdentity, "G") || LandProducesColor(byIdentity, "R") {
		t.Error("color identity check failed")
	}

	byProduced := deck.Card{Name: "City Ruins", TypeLine: "Land", ProducedMana: []string{"R"}}
	if !LandProducesColor(byProduced, "R") {
		t.Error("produced_mana check failed")
	}

	byOracle := deck.Card{Name: "Command Tower", TypeLine: "Land", OracleText: "Add one mana of any color in your commander's color identity."}
	if !LandProducesColor(byOracle, "W") {
		t.Error("oracle any-color clause not detected")
	}
}

func TestCalculateBasicLandNeeds(t *testing.T) {
	cards := []CardCount{
		// 6 green pips, 2 blue pips, 30 lands already in deck.
		{Card: deck.Card{Name: "A", TypeLine: "Creature", ManaCost: "{G}{G}"}, Count: 3},
		{Card: deck.Card{Name: "B", TypeLine: "Instant", ManaCost: "{U}"}, Count: 2},
		{Card: deck.Card{Name: "Forest", TypeLine: "Basic Land — Forest"}, Count: 30},
	}
	needs := CalculateBasicLandNeeds(cards, 37)

	if needs.CurrentLands != 30 {
		t.Fatalf("current lands = %d, want 30", needs.CurrentLands)
	}
	if got := needs.Total(); got != 7 {
		t.Fatalf("total basics = %d, want 7 (37 target - 30 current)", got)
	}
	// 6/8 of 7 slots floor to 5 for green, 2/8 floor to 1 for blue, and the
	// leftover slot goes to the heavier color.
	if needs.Counts["G"] != 6 || needs.Counts["U"] != 1 {
		t.Errorf("distribution = %v, want G:6 U:1", needs.Counts)
	}
}

func TestCalculateBasicLandNeedsEdgeCases(t *testing.T) {
	colorless := []CardCount{
		{Card: deck.Card{Name: "Sol Ring", TypeLine: "Artifact", ManaCost: "{1}"}, Count: 1},
	}
	if got := CalculateBasicLandNeeds(colorless, 37).Total(); got != 0 {
		t.Errorf("colorless deck should need no basics, got %d", got)
	}

	full := []CardCount{
		{Card: deck.Card{Name: "A", TypeLine: "Creature", ManaCost: "{G}"}, Count: 1},
		{Card: deck.Card{Name: "Forest", TypeLine: "Basic Land — Forest"}, Count: 40},
	}
	if got := CalculateBasicLandNeeds(full, 37).Total(); got != 0 {
		t.Errorf("deck over the land target should need no basics, got %d", got)
	}
}

func TestBasicLandsInUse(t *testing.T) {
	decks := map[string][]CardCount{
		"d1": {{Card: deck.Card{Name: "A", TypeLine: "Creature", ManaCost: "{W}"}, Count: 1}},
		"d2": {{Card: deck.Card{Name: "B", TypeLine: "Creature", ManaCost: "{W}"}, Count: 1}},
	}
	usage := BasicLandsInUse(decks, 5)
	if usage["W"] != 10 {
		t.Errorf("expected both decks to claim 5 Plains each, got %d", usage["W"])
	}
}
