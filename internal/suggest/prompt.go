package suggest

import (
	"fmt"
	"sort"
	"strings"

	"deckforge/internal/deck"
	"deckforge/internal/llm"
)

// candidateRecords strips candidate stacks to the fields the model needs,
// sorted by unit id so identical pools always serialize identically and the
// in-flight dedup can collapse repeat calls.
func candidateRecords(candidates map[string]*deck.Stack) []llm.CandidateRecord {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]llm.CandidateRecord, 0, len(ids))
	for _, id := range ids {
		s := candidates[id]
		records = append(records, llm.CandidateRecord{
			UnitID:      id,
			Name:        s.Name,
			TypeLine:    s.TypeLine,
			OracleText:  s.OracleText,
			ManaCost:    s.ManaCost,
			CMC:         s.CMC,
			Power:       s.Power,
			Toughness:   s.Toughness,
			Colors:      s.Colors,
			OwnedCount:  s.Count,
			IsBasicLand: s.IsBasicLand(),
		})
	}
	return records
}

// buildRequest assembles the model payload for one slot pass: instruction
// text with the shortfall, the deck's blueprint, current contents for
// anti-duplication, and the stripped candidate pool.
func buildRequest(working *deck.Deck, slot, effectiveType string, shortfall int, candidates map[string]*deck.Stack) llm.SuggestionRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Choose up to %d %s cards from the candidate list to add to this deck.\n", shortfall, effectiveType)
	if slot == "Land" {
		b.WriteString("Prioritize non-basic utility lands over basic lands; basic lands are auto-filled separately.\n")
	}
	if effectiveType != slot {
		fmt.Fprintf(&b, "These fill the deck's %s slots; pick %s cards that serve the same role.\n", slot, effectiveType)
	}
	format := working.Format
	if format == "" {
		format = "commander"
	}
	fmt.Fprintf(&b, "Deck format: %s.\n", format)
	if working.Commander != nil {
		fmt.Fprintf(&b, "Commander: %s.\n", working.Commander.Name)
	}
	if working.Blueprint != nil && len(working.Blueprint.Themes) > 0 {
		fmt.Fprintf(&b, "Deck themes: %s.\n", strings.Join(working.Blueprint.Themes, ", "))
	}
	if names := deckCardNames(working); len(names) > 0 {
		fmt.Fprintf(&b, "Already in the deck (do not suggest duplicates): %s.\n", strings.Join(names, ", "))
	}
	b.WriteString("Return only unitId values from the candidate list, each with a 1-10 rating and a one-sentence reason.")

	req := llm.SuggestionRequest{
		Instructions: b.String(),
		Candidates:   candidateRecords(candidates),
	}
	if working.Blueprint != nil {
		req.Blueprint = map[string]any{
			"counts": working.Blueprint.Targets,
			"themes": working.Blueprint.Themes,
		}
	}
	return req
}

func deckCardNames(d *deck.Deck) []string {
	names := make([]string, 0, len(d.Cards))
	seen := make(map[string]struct{}, len(d.Cards))
	for _, dc := range d.Cards {
		if _, dup := seen[dc.Name]; dup {
			continue
		}
		seen[dc.Name] = struct{}{}
		names = append(names, dc.Name)
	}
	sort.Strings(names)
	return names
}
