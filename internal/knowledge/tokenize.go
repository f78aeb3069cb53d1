package knowledge

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are dropped before scoring; they carry no topical signal
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "been": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "there": {}, "these": {}, "this": {}, "those": {}, "to": {}, "was": {},
	"were": {}, "which": {}, "with": {}, "without": {}, "within": {}, "than": {}, "then": {},
	"into": {}, "may": {}, "can": {}, "should": {}, "will": {}, "if": {}, "also": {},
	"seen": {}, "noted": {}, "present": {}, "identified": {}, "demonstrated": {},
}

// Tokenize splits text into lowercase letter/digit runs, dropping
// single-rune tokens and stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TermFrequencies counts tokens in text
func TermFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range Tokenize(text) {
		tf[tok]++
	}
	return tf
}
