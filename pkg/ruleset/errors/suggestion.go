package errors

import (
	"fmt"
	"slices"
	"strings"
)

// SuggestName proposes the closest of valid to unknown, or lists the valid
// names when nothing is close. noun names the kind of thing ("field", "op").
func SuggestName(unknown string, valid []string, noun string) string {
	if len(valid) == 0 {
		return ""
	}
	sorted := slices.Clone(valid)
	slices.Sort(sorted)

	best, bestDist := "", 1<<30
	for _, name := range sorted {
		if d := levenshteinDistance(unknown, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	if bestDist <= max(2, len(unknown)/3) {
		return fmt.Sprintf("Did you mean '%s'?", best)
	}
	if len(sorted) > 8 {
		return fmt.Sprintf("Valid %ss include: %s, ...", noun, strings.Join(sorted[:8], ", "))
	}
	return fmt.Sprintf("Valid %ss: %s", noun, strings.Join(sorted, ", "))
}

// SuggestMissingField proposes adding a required field.
func SuggestMissingField(fieldName string, exampleValue string) string {
	if exampleValue != "" {
		return fmt.Sprintf("Add '%s: %s'", fieldName, exampleValue)
	}
	return fmt.Sprintf("Add a '%s' field", fieldName)
}

// levenshteinDistance is the edit distance between s1 and s2.
func levenshteinDistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}
