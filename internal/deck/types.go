// Package deck defines the domain records for the collection/deck manager:
// inventory stacks of fungible card copies, decks with per-unit card maps,
// deck blueprints, AI suggestions, and the derived assignment index.
package deck

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Slot types a blueprint can ask the suggestion pipeline to fill, in the
// order the orchestrator processes them.
var SlotOrder = []string{
	"Creature",
	"Planeswalker",
	"Instant",
	"Sorcery",
	"Artifact",
	"Enchantment",
	"Land",
}

// DefaultSlotTargets are the per-slot targets used when a deck's blueprint
// does not specify one.
var DefaultSlotTargets = map[string]int{
	"Creature":     25,
	"Planeswalker": 5,
	"Instant":      10,
	"Sorcery":      10,
	"Artifact":     10,
	"Enchantment":  10,
	"Land":         30,
}

var basicLandName = regexp.MustCompile(`^(Plains|Island|Swamp|Mountain|Forest)$`)

// Card holds the printed-card attributes shared by every copy in a stack.
type Card struct {
	CardID        string   `json:"id,omitempty"`
	Name          string   `json:"name"`
	TypeLine      string   `json:"type_line"`
	OracleText    string   `json:"oracle_text,omitempty"`
	ManaCost      string   `json:"mana_cost,omitempty"`
	CMC           float64  `json:"cmc,omitempty"`
	Power         string   `json:"power,omitempty"`
	Toughness     string   `json:"toughness,omitempty"`
	Colors        []string `json:"colors,omitempty"`
	ColorIdentity []string `json:"color_identity,omitempty"`
	ProducedMana  []string `json:"produced_mana,omitempty"`
	Finish        string   `json:"finish,omitempty"`
}

// PrimaryType returns the part of the type line before the em-dash
// separator, e.g. "Legendary Creature" for "Legendary Creature — Elf Druid".
func (c Card) PrimaryType() string {
	primary, _, _ := strings.Cut(c.TypeLine, " — ")
	return strings.TrimSpace(primary)
}

// IsBasicLand reports whether the card is one of the five basic lands.
// Basic lands are exempt from assignment-exclusion rules and may carry a
// per-deck count greater than one.
func (c Card) IsBasicLand() bool {
	return strings.Contains(c.TypeLine, "Basic") || basicLandName.MatchString(c.Name)
}

// IsLand reports whether the card's type line contains "Land" at all.
func (c Card) IsLand() bool {
	return strings.Contains(strings.ToLower(c.TypeLine), "land")
}

// Stack is an inventory record: Count fungible copies of one printing.
// A deck-assigned unit is a Stack carved off with the deck's copies and
// referenced from that deck's card map by UnitID.
type Stack struct {
	Card

	// UnitID is the opaque document identifier in the store.
	UnitID string `json:"-"`

	// Count is the number of physical copies this record represents.
	// A stack is deleted rather than kept at zero.
	Count int `json:"count"`

	// Pending marks a locally-synthesized placeholder for a unit whose
	// create is still awaiting server confirmation.
	Pending bool `json:"-"`

	AddedAt time.Time `json:"addedAt,omitempty"`
}

// Validate checks the store-boundary invariants for a stack document.
func (s *Stack) Validate() error {
	if s.UnitID == "" {
		return fmt.Errorf("stack missing unit id")
	}
	if s.Name == "" {
		return fmt.Errorf("stack %s missing card name", s.UnitID)
	}
	if s.Count < 0 {
		return fmt.Errorf("stack %s has negative count %d", s.UnitID, s.Count)
	}
	return nil
}

// Clone returns a copy of the stack safe to mutate independently.
func (s *Stack) Clone() *Stack {
	dup := *s
	dup.Colors = append([]string(nil), s.Colors...)
	dup.ColorIdentity = append([]string(nil), s.ColorIdentity...)
	dup.ProducedMana = append([]string(nil), s.ProducedMana...)
	return &dup
}

// DeckCard is one entry in a deck's card map, keyed by the owning unit's id.
// Count is 1 for ordinary cards; basic lands may hold the full copy count on
// a single entry.
type DeckCard struct {
	Count    int    `json:"count"`
	Name     string `json:"name"`
	TypeLine string `json:"type_line"`
	SlotType string `json:"slotType,omitempty"`
}

// Commander references the deck's commander unit.
type Commander struct {
	UnitID        string   `json:"firestoreId,omitempty"`
	Name          string   `json:"name"`
	ColorIdentity []string `json:"color_identity,omitempty"`
}

// Blueprint is the per-deck target composition plus thematic guidance used
// only as prompt context.
type Blueprint struct {
	Targets map[string]int `json:"counts,omitempty"`
	Themes  []string       `json:"themes,omitempty"`

	// LandTarget overrides the format default for total lands when the
	// basic-land auto-fill runs. Zero means use the format default.
	LandTarget int `json:"landTarget,omitempty"`
}

// SlotTarget returns the blueprint target for a slot, falling back to the
// shared defaults.
func (b *Blueprint) SlotTarget(slot string) int {
	if b != nil && b.Targets != nil {
		if n, ok := b.Targets[slot]; ok {
			return n
		}
	}
	if n, ok := DefaultSlotTargets[slot]; ok {
		return n
	}
	return 10
}

// Deck is a user deck document.
type Deck struct {
	DeckID    string              `json:"-"`
	Name      string              `json:"name"`
	Format    string              `json:"format,omitempty"`
	Commander *Commander          `json:"commander,omitempty"`
	Cards     map[string]DeckCard `json:"cards"`
	Blueprint *Blueprint          `json:"aiBlueprint,omitempty"`

	// Suggestions is persisted AI suggestion metadata for cards the user
	// approved, keyed by unit id.
	Suggestions []SuggestionMeta `json:"aiSuggestions,omitempty"`
}

// Validate checks the store-boundary invariants for a deck document.
func (d *Deck) Validate() error {
	if d.DeckID == "" {
		return fmt.Errorf("deck missing id")
	}
	for unitID, dc := range d.Cards {
		if dc.Count < 1 {
			return fmt.Errorf("deck %s card %s has count %d", d.DeckID, unitID, dc.Count)
		}
	}
	return nil
}

// Clone returns a deep copy of the deck.
func (d *Deck) Clone() *Deck {
	dup := *d
	dup.Cards = make(map[string]DeckCard, len(d.Cards))
	for id, dc := range d.Cards {
		dup.Cards[id] = dc
	}
	if d.Commander != nil {
		cmd := *d.Commander
		cmd.ColorIdentity = append([]string(nil), d.Commander.ColorIdentity...)
		dup.Commander = &cmd
	}
	dup.Suggestions = append([]SuggestionMeta(nil), d.Suggestions...)
	return &dup
}

// CommanderColors returns the deck's color identity, empty for a colorless
// or missing commander.
func (d *Deck) CommanderColors() []string {
	if d.Commander == nil {
		return nil
	}
	return d.Commander.ColorIdentity
}

// NonCommanderCount is the total card count in the deck's card map. The
// commander is stored separately and never counted.
func (d *Deck) NonCommanderCount() int {
	total := 0
	for _, dc := range d.Cards {
		total += dc.Count
	}
	return total
}

// TargetSize is the non-commander deck size the suggestion pipeline fills
// toward: 99 for commander decks, 59 for sixty-card formats.
func (d *Deck) TargetSize() int {
	if d.Format == "" || d.Format == "commander" {
		return 99
	}
	return 59
}

// Suggestion is an ephemeral pipeline record: a candidate the model picked
// for a slot, not persisted until approved.
type Suggestion struct {
	UnitID   string  `json:"unitId"`
	Name     string  `json:"name"`
	TypeLine string  `json:"type_line"`
	Rating   float64 `json:"rating,omitempty"`
	Reason   string  `json:"reason,omitempty"`

	// SourceType is the card type actually selected; SlotType is the
	// blueprint slot it fills. They differ when a fallback substitution
	// was applied.
	SourceType string `json:"sourceType"`
	SlotType   string `json:"slotType"`

	// Count is the number of copies to assign; 1 except for basic lands
	// produced by the auto-fill pass.
	Count int `json:"count"`

	// Virtual marks an auto-fill suggestion with no backing inventory
	// stack; assignment synthesizes the stack document.
	Virtual bool `json:"virtual,omitempty"`

	// Fallback marks a suggestion produced through the documented
	// type-substitution fallback, for UI and logging.
	Fallback bool `json:"fallback,omitempty"`
}

// SuggestionMeta is the subset of a suggestion persisted onto the deck
// document when the user approves it.
type SuggestionMeta struct {
	UnitID     string  `json:"firestoreId"`
	Rating     float64 `json:"rating,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	SourceType string  `json:"sourceType,omitempty"`
	SlotType   string  `json:"slotType,omitempty"`
}
