package rules

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// maxTerminologyPasses bounds fixpoint iteration of the terminology rule
const maxTerminologyPasses = 4

// Term maps a known malformed term or phrase to its canonical form
type Term struct {
	Malformed string `yaml:"malformed"`
	Canonical string `yaml:"canonical"`
}

// defaultTerms is the maintained mapping of dictation errors and
// abbreviations seen in radiology reports.
var defaultTerms = []Term{
	{"plural effusion", "pleural effusion"},
	{"pleural efusion", "pleural effusion"},
	{"plueral effusion", "pleural effusion"},
	{"effussion", "effusion"},
	{"nodual", "nodule"},
	{"noduel", "nodule"},
	{"ateletasis", "atelectasis"},
	{"atelectesis", "atelectasis"},
	{"atalectasis", "atelectasis"},
	{"emphasema", "emphysema"},
	{"emphysemia", "emphysema"},
	{"cardiomegally", "cardiomegaly"},
	{"hepatomegally", "hepatomegaly"},
	{"splenomegally", "splenomegaly"},
	{"pnuemonia", "pneumonia"},
	{"neumonia", "pneumonia"},
	{"pnuemothorax", "pneumothorax"},
	{"neumothorax", "pneumothorax"},
	{"hemorrage", "hemorrhage"},
	{"hemmorhage", "hemorrhage"},
	{"lymphadenopthy", "lymphadenopathy"},
	{"lymphadenophathy", "lymphadenopathy"},
	{"consolodation", "consolidation"},
	{"infiltrait", "infiltrate"},
	{"calcifed", "calcified"},
	{"diverticulitus", "diverticulitis"},
	{"appendicitus", "appendicitis"},
	{"metastisis", "metastasis"},
	{"anuerysm", "aneurysm"},
	{"aneurism", "aneurysm"},
	{"stenossis", "stenosis"},
	{"ground glass opacity", "ground-glass opacity"},
	{"ggo", "ground-glass opacity"},
	{"rul", "right upper lobe"},
	{"rml", "right middle lobe"},
	{"rll", "right lower lobe"},
	{"lul", "left upper lobe"},
	{"lll", "left lower lobe"},
}

// DefaultTerms returns a copy of the built-in terminology mapping
func DefaultTerms() []Term {
	out := make([]Term, len(defaultTerms))
	copy(out, defaultTerms)
	return out
}

// Terminology is a validated, compiled terminology mapping. Safe for
// concurrent use.
type Terminology struct {
	terms   []Term            // Sorted longest malformed first
	lookup  map[string]string // normalized malformed -> canonical
	pattern *regexp.Regexp
}

// NewTerminology validates and compiles a mapping. Later entries override
// earlier ones with the same malformed key. A canonical form may not contain
// any malformed key as a whole word; otherwise the rule could never settle.
func NewTerminology(terms []Term) (*Terminology, error) {
	lookup := make(map[string]string, len(terms))
	for _, t := range terms {
		key := normalizeKey(t.Malformed)
		canonical := strings.TrimSpace(t.Canonical)
		if key == "" || canonical == "" {
			return nil, fmt.Errorf("terminology entry %q -> %q: empty term", t.Malformed, t.Canonical)
		}
		if key == normalizeKey(canonical) {
			return nil, fmt.Errorf("terminology entry %q maps to itself", t.Malformed)
		}
		lookup[key] = canonical
	}

	compiled := &Terminology{lookup: lookup}
	for key, canonical := range lookup {
		compiled.terms = append(compiled.terms, Term{Malformed: key, Canonical: canonical})
	}
	sort.Slice(compiled.terms, func(i, j int) bool {
		a, b := compiled.terms[i].Malformed, compiled.terms[j].Malformed
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	if len(compiled.terms) > 0 {
		alternatives := make([]string, len(compiled.terms))
		for i, t := range compiled.terms {
			alternatives[i] = keyPattern(t.Malformed)
		}
		compiled.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)

		for _, t := range compiled.terms {
			if loc := compiled.pattern.FindStringIndex(t.Canonical); loc != nil {
				return nil, fmt.Errorf("terminology entry %q: canonical form %q contains malformed term %q",
					t.Malformed, t.Canonical, t.Canonical[loc[0]:loc[1]])
			}
		}
	}

	return compiled, nil
}

// DefaultTerminology returns the compiled built-in mapping
func DefaultTerminology() *Terminology {
	t, err := NewTerminology(defaultTerms)
	if err != nil {
		panic(fmt.Sprintf("built-in terminology is invalid: %v", err))
	}
	return t
}

// LoadTerminologyFile reads additional terms from a YAML file of the form:
//
//	terms:
//	  - malformed: efusion
//	    canonical: effusion
func LoadTerminologyFile(path string) ([]Term, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terminology file: %w", err)
	}

	var doc struct {
		Terms []Term `yaml:"terms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse terminology file: %w", err)
	}
	return doc.Terms, nil
}

// Terms returns the compiled mapping, longest malformed key first
func (t *Terminology) Terms() []Term {
	out := make([]Term, len(t.terms))
	copy(out, t.terms)
	return out
}

// Canonical returns the canonical form for a malformed term
func (t *Terminology) Canonical(malformed string) (string, bool) {
	c, ok := t.lookup[normalizeKey(malformed)]
	return c, ok
}

// Explains reports whether replacing original with replacement is (part of)
// a known substitution: original occurs as whole words inside a malformed
// key and replacement inside that key's canonical form.
func (t *Terminology) Explains(original, replacement string) bool {
	o := normalizeKey(original)
	r := normalizeKey(replacement)
	if o == "" || r == "" || o == r {
		return false
	}
	for _, term := range t.terms {
		if containsWords(term.Malformed, o) && strings.Contains(strings.ToLower(term.Canonical), r) {
			return true
		}
	}
	return false
}

// Apply replaces malformed terms until the text stops changing. It returns
// the rewritten text and the number of substitutions made.
func (t *Terminology) Apply(text string) (string, int) {
	if t.pattern == nil {
		return text, 0
	}

	total := 0
	for pass := 0; pass < maxTerminologyPasses; pass++ {
		next, n := t.applyOnce(text)
		if n == 0 {
			break
		}
		text = next
		total += n
	}
	return text, total
}

func (t *Terminology) applyOnce(text string) (string, int) {
	matches := t.pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	count := 0
	for _, m := range matches {
		src := text[m[0]:m[1]]
		canonical, ok := t.lookup[normalizeKey(src)]
		if !ok {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(matchCase(src, canonical, atSentenceStart(text, m[0])))
		last = m[1]
		count++
	}
	b.WriteString(text[last:])
	return b.String(), count
}

// matchCase carries the casing style of src over to canonical. Short
// all-caps tokens are treated as abbreviations, not shouting.
func matchCase(src, canonical string, sentenceStart bool) string {
	letters := 0
	for _, r := range src {
		if unicode.IsLetter(r) {
			letters++
		}
	}

	first, _ := utf8.DecodeRuneInString(src)
	switch {
	case letters > 3 && strings.ToUpper(src) == src:
		return strings.ToUpper(canonical)
	case unicode.IsUpper(first) && (letters > 3 || sentenceStart):
		return capitalize(canonical)
	default:
		return canonical
	}
}

func atSentenceStart(text string, pos int) bool {
	prefix := strings.TrimRightFunc(text[:pos], unicode.IsSpace)
	if prefix == "" {
		return true
	}
	if strings.HasSuffix(text[:pos], "\n") {
		return true
	}
	last, _ := utf8.DecodeLastRuneInString(prefix)
	return strings.ContainsRune(".!?:", last)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func keyPattern(key string) string {
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// containsWords reports whether needle occurs in haystack on word boundaries
func containsWords(haystack, needle string) bool {
	h := " " + haystack + " "
	return strings.Contains(h, " "+needle+" ")
}
