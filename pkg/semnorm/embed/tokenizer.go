package embed

import (
	"strings"
	"unicode"
)

// tokenizer splits text into lowercase word tokens for feature hashing.
type tokenizer struct {
	stopwords map[string]struct{}
}

func newTokenizer(stopwords []string) *tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &tokenizer{stopwords: stops}
}

// tokenize splits on anything that is not a letter, digit or inner hyphen.
func (t *tokenizer) tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if word := t.processToken(current.String()); word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()

	return tokens
}

func (t *tokenizer) processToken(token string) string {
	// snake_case headers are common in spreadsheets
	word := strings.Trim(strings.ReplaceAll(token, "_", "-"), "-")
	for strings.Contains(word, "--") {
		word = strings.ReplaceAll(word, "--", "-")
	}
	if word == "" {
		return ""
	}
	if isNumericOnly(word) {
		return ""
	}
	if _, ok := t.stopwords[word]; ok {
		return ""
	}
	return word
}

// isNumericOnly returns true if the token contains only digits and hyphens.
func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}
