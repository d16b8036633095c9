package suggest

import (
	"regexp"

	"deckforge/internal/deck"
)

// Models occasionally return a suffixed variant of a real candidate id
// ("abc_1" for "abc"). These bounded rewrites strip one such suffix; the
// repaired id still has to exist in the candidate map, and no further
// guessing is attempted beyond this list.
var idRepairs = []*regexp.Regexp{
	regexp.MustCompile(`_\d+$`),
	regexp.MustCompile(`-\d+$`),
	regexp.MustCompile(`\s*\(\d+\)$`),
	regexp.MustCompile(`-copy$`),
	regexp.MustCompile(`\.\d+$`),
}

// resolveUnitID maps a model-returned id onto the candidate map, repairing
// known hallucinated suffixes. Returns the canonical id and whether a
// candidate was found.
func resolveUnitID(id string, candidates map[string]*deck.Stack) (string, bool) {
	if _, ok := candidates[id]; ok {
		return id, true
	}
	for _, re := range idRepairs {
		repaired := re.ReplaceAllString(id, "")
		if repaired == id {
			continue
		}
		if _, ok := candidates[repaired]; ok {
			return repaired, true
		}
	}
	return "", false
}
