// Package analysis provides the text heuristics used when no model-backed
// adjudicator is available.
package analysis

import (
	"math"
	"strings"
	"unicode/utf8"
)

// NarrativeWeight measures how much a party had to say: the rune count of
// the narrative with surrounding whitespace removed.
func NarrativeWeight(narrative string) int {
	return utf8.RuneCountInString(strings.TrimSpace(narrative))
}

// NarrativeShare splits 100 percentage points between two narratives in
// proportion to their weight. Both empty yields 50/50. Results are rounded
// to one decimal and always sum to 100.
func NarrativeShare(a, b string) (pctA, pctB float64) {
	wa, wb := NarrativeWeight(a), NarrativeWeight(b)
	if wa+wb == 0 {
		return 50, 50
	}
	pctA = math.Round(float64(wa)*1000/float64(wa+wb)) / 10
	return pctA, math.Round((100-pctA)*10) / 10
}
