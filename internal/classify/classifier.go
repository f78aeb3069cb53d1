// Package classify diffs original and corrected report text and labels
// every change with a category from the correction taxonomy.
package classify

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/rules"
)

var (
	headingPattern = regexp.MustCompile(`(?m)^\s*[A-Z][A-Z /&()-]*:`)

	measurementWords = map[string]bool{
		"mm": true, "cm": true, "ml": true, "cc": true,
		"millimeter": true, "millimeters": true, "millimetre": true, "millimetres": true,
		"centimeter": true, "centimeters": true, "centimetre": true, "centimetres": true,
		"measuring": true, "measures": true, "measured": true,
		"approximately": true, "approx": true, "about": true, "around": true, "roughly": true,
		"diameter": true, "size": true,
	}
)

// Classifier buckets text changes into the fixed taxonomy
type Classifier struct {
	terms *rules.Terminology
}

// NewClassifier creates a classifier that recognizes substitutions from terms
func NewClassifier(terms *rules.Terminology) *Classifier {
	if terms == nil {
		terms = rules.DefaultTerminology()
	}
	return &Classifier{terms: terms}
}

// Classify returns one Correction per changed span, ordered by position in
// the corrected text. Spans no heuristic recognizes are labelled Clarity.
func (c *Classifier) Classify(original, corrected string) []model.Correction {
	corrections := []model.Correction{}
	for _, h := range diffHunks(original, corrected) {
		corrections = append(corrections, model.Correction{
			Category:        c.categorize(h.deleted, h.inserted),
			OriginalSpan:    h.deleted,
			ReplacementSpan: h.inserted,
			Position:        h.position,
		})
	}
	return corrections
}

// Count returns per-category totals; every category is present
func Count(corrections []model.Correction) map[model.Category]int {
	counts := make(map[model.Category]int, 4)
	for _, cat := range model.Categories() {
		counts[cat] = 0
	}
	for _, corr := range corrections {
		counts[corr.Category]++
	}
	return counts
}

// categorize applies the heuristics in precedence order:
// completion, terminology, accuracy, clarity.
func (c *Classifier) categorize(original, replacement string) model.Category {
	switch {
	case isCompletion(original, replacement):
		return model.CategoryCompletion
	case c.terms.Explains(original, replacement):
		return model.CategoryTerminology
	case isAccuracy(original) || isAccuracy(replacement):
		return model.CategoryAccuracy
	default:
		// Includes spans equal up to punctuation, case and whitespace
		return model.CategoryClarity
	}
}

// isCompletion reports a pure insertion of new structure
func isCompletion(original, replacement string) bool {
	if hasWord(original) || !hasWord(replacement) {
		return false
	}
	return strings.Contains(replacement, "\n") || headingPattern.MatchString(replacement)
}

func isAccuracy(span string) bool {
	if strings.IndexFunc(span, unicode.IsDigit) >= 0 {
		return true
	}
	for _, w := range strings.FieldsFunc(strings.ToLower(span), notWordRune) {
		if measurementWords[w] {
			return true
		}
	}
	return false
}

func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// hunk is a maximal run of consecutive non-equal diff operations
type hunk struct {
	deleted  string
	inserted string
	position int // Byte offset in the corrected text
}

// segment is a paragraph or paragraph separator at a corrected-text offset
type segment struct {
	text string
	pos  int
}

// diffHunks aligns paragraphs first, so an appended section never absorbs
// an edit at the end of the preceding paragraph, then diffs each changed
// paragraph pair token by token.
func diffHunks(original, corrected string) []hunk {
	if original == corrected {
		return nil
	}

	var (
		hunks  []hunk
		dels   []string
		ins    []segment
		offset int
	)
	flush := func() {
		if len(dels) > 0 || len(ins) > 0 {
			hunks = append(hunks, pairParagraphs(dels, ins, offset)...)
		}
		dels, ins = nil, nil
	}

	for _, d := range diffUnits(splitParagraphs(original), splitParagraphs(corrected)) {
		switch d.op {
		case diffmatchpatch.DiffEqual:
			flush()
			for _, u := range d.units {
				offset += len(u)
			}
		case diffmatchpatch.DiffDelete:
			dels = append(dels, d.units...)
		case diffmatchpatch.DiffInsert:
			for _, u := range d.units {
				ins = append(ins, segment{text: u, pos: offset})
				offset += len(u)
			}
		}
	}
	flush()

	return mergeAdjacent(hunks)
}

// pairParagraphs matches each deleted paragraph with the remaining inserted
// paragraph sharing the most words, in order. Matched pairs are diffed by
// token; unmatched paragraphs become whole insertions or deletions. end is
// the corrected-text offset just past the run.
func pairParagraphs(dels []string, ins []segment, end int) []hunk {
	var hunks []hunk
	next := 0

	insertRun := func(lo, hi int) {
		if lo >= hi {
			return
		}
		h := hunk{position: ins[lo].pos}
		for _, seg := range ins[lo:hi] {
			h.inserted += seg.text
		}
		hunks = append(hunks, h)
	}

	for _, d := range dels {
		best, bestScore := -1, 0
		for k := next; k < len(ins); k++ {
			if score := sharedWords(d, ins[k].text); score > bestScore {
				best, bestScore = k, score
			}
		}
		if best < 0 {
			pos := end
			if next < len(ins) {
				pos = ins[next].pos
			}
			hunks = append(hunks, hunk{deleted: d, position: pos})
			continue
		}

		insertRun(next, best)
		for _, h := range tokenHunks(d, ins[best].text) {
			h.position += ins[best].pos
			hunks = append(hunks, h)
		}
		next = best + 1
	}
	insertRun(next, len(ins))

	sort.SliceStable(hunks, func(i, j int) bool { return hunks[i].position < hunks[j].position })
	return hunks
}

// mergeAdjacent joins a pure deletion with the change at the same position
func mergeAdjacent(hunks []hunk) []hunk {
	var out []hunk
	for _, h := range hunks {
		if n := len(out); n > 0 && out[n-1].position == h.position && out[n-1].inserted == "" {
			out[n-1].deleted += h.deleted
			out[n-1].inserted = h.inserted
			continue
		}
		out = append(out, h)
	}
	return out
}

// tokenHunks diffs two paragraphs at token granularity
func tokenHunks(original, corrected string) []hunk {
	var (
		hunks   []hunk
		current *hunk
		offset  int
	)
	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	for _, d := range diffUnits(tokenize(original), tokenize(corrected)) {
		text := strings.Join(d.units, "")
		switch d.op {
		case diffmatchpatch.DiffEqual:
			flush()
			offset += len(text)
		case diffmatchpatch.DiffDelete:
			if current == nil {
				current = &hunk{position: offset}
			}
			current.deleted += text
		case diffmatchpatch.DiffInsert:
			if current == nil {
				current = &hunk{position: offset}
			}
			current.inserted += text
			offset += len(text)
		}
	}
	flush()

	return hunks
}

// unitDiff is one diff operation over whole units (tokens or paragraphs)
type unitDiff struct {
	op    diffmatchpatch.Operation
	units []string
}

func diffUnits(a, b []string) []unitDiff {
	table := newTokenTable()
	ra := table.encode(a)
	rb := table.encode(b)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // No deadline, output must be reproducible

	var out []unitDiff
	for _, d := range dmp.DiffMainRunes(ra, rb, false) {
		out = append(out, unitDiff{op: d.Type, units: table.decode(d.Text)})
	}
	return out
}

var paragraphBreak = regexp.MustCompile(`\n(?:[ \t]*\n)+`)

// splitParagraphs cuts text into paragraphs and the blank-line runs
// between them. Concatenating the parts yields the input.
func splitParagraphs(text string) []string {
	var parts []string
	last := 0
	for _, m := range paragraphBreak.FindAllStringIndex(text, -1) {
		if m[0] > last {
			parts = append(parts, text[last:m[0]])
		}
		parts = append(parts, text[m[0]:m[1]])
		last = m[1]
	}
	if last < len(text) {
		parts = append(parts, text[last:])
	}
	return parts
}

// sharedWords counts case-insensitive word tokens common to a and b
func sharedWords(a, b string) int {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(a), notWordRune) {
		counts[w]++
	}
	shared := 0
	for _, w := range strings.FieldsFunc(strings.ToLower(b), notWordRune) {
		if counts[w] > 0 {
			counts[w]--
			shared++
		}
	}
	return shared
}

// tokenize splits text into word, whitespace and punctuation tokens.
// Concatenating the tokens yields the input.
func tokenize(text string) []string {
	var tokens []string
	start := -1
	kind := 0

	classOf := func(r rune) int {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return 1
		case unicode.IsSpace(r):
			return 2
		default:
			return 3
		}
	}

	for i, r := range text {
		k := classOf(r)
		if start >= 0 && (k != kind || k == 3) {
			tokens = append(tokens, text[start:i])
			start = -1
		}
		if start < 0 {
			start = i
			kind = k
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

// tokenTable maps each distinct token to a private-use rune so the
// character diff operates on whole tokens
type tokenTable struct {
	index  map[string]rune
	tokens map[rune]string
}

func newTokenTable() *tokenTable {
	return &tokenTable{index: make(map[string]rune), tokens: make(map[rune]string)}
}

func (t *tokenTable) encode(tokens []string) []rune {
	out := make([]rune, len(tokens))
	for i, tok := range tokens {
		r, ok := t.index[tok]
		if !ok {
			r = privateUseRune(len(t.index))
			t.index[tok] = r
			t.tokens[r] = tok
		}
		out[i] = r
	}
	return out
}

func (t *tokenTable) decode(s string) []string {
	var units []string
	for _, r := range s {
		units = append(units, t.tokens[r])
	}
	return units
}

// privateUseRune spreads n over the BMP private use area and then the
// supplementary private use planes
func privateUseRune(n int) rune {
	const bmpSize = 0xF8FF - 0xE000 + 1
	if n < bmpSize {
		return rune(0xE000 + n)
	}
	return rune(0xF0000 + n - bmpSize)
}
