package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalises a name for matching: NFC, lower case, glued
// initials split ("и.петров" -> "и. петров"), whitespace collapsed and
// trimmed, and trailing periods dropped from single-letter initials.
func Normalize(name string) string {
	s := strings.ToLower(norm.NFC.String(name))
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		for _, part := range splitInitials(f) {
			out = append(out, trimInitial(part))
		}
	}
	return strings.Join(out, " ")
}

// splitInitials breaks "и.п.петров" into "и.", "п.", "петров".
func splitInitials(field string) []string {
	var parts []string
	r := []rune(field)
	for len(r) >= 3 && unicode.IsLetter(r[0]) && r[1] == '.' && r[2] != '.' {
		parts = append(parts, string(r[:2]))
		r = r[2:]
	}
	return append(parts, string(r))
}

func trimInitial(field string) string {
	trimmed := strings.TrimRight(field, ".")
	if isInitial(trimmed) {
		return trimmed
	}
	return field
}

// isInitial reports whether s is a single letter.
func isInitial(s string) bool {
	r := []rune(s)
	return len(r) == 1 && unicode.IsLetter(r[0])
}
