package entity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity is 1 - distance/max(len), in runes. Two empty strings score 0.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
