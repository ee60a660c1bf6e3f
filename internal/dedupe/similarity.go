package dedupe

import "github.com/agnivade/levenshtein"

// Similarity returns a normalized edit-distance ratio in [0, 1].
// 1.0 means identical strings, 0.0 means nothing in common.
// Parameters:
//   - a, b: normalized strings to compare.
// Returns:
//   - float64: similarity ratio.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	return 1.0 - float64(dist)/float64(longest)
}
