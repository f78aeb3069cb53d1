package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxExcerptRunes bounds KnowledgeSource.Excerpt
const MaxExcerptRunes = 280

// KnowledgeSource is a reference document (guideline, prior case note,
// handbook page). Immutable once indexed.
type KnowledgeSource struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Excerpt  string `json:"excerpt" yaml:"excerpt,omitempty"`
	FullText string `json:"full_text,omitempty" yaml:"full_text,omitempty"`
}

// Text returns the text used for matching: title plus full text, or the
// excerpt when no full text is stored.
func (s KnowledgeSource) Text() string {
	body := s.FullText
	if body == "" {
		body = s.Excerpt
	}
	return s.Title + "\n" + body
}

// RankedSource is a knowledge source scored against one report
type RankedSource struct {
	SourceID  string  `json:"id"`
	Title     string  `json:"title"`
	Excerpt   string  `json:"excerpt"`
	Relevance float64 `json:"relevance"`
	Cited     bool    `json:"cited"` // Attributed by the generative corrector
}

// MakeExcerpt cuts text to at most max runes, preferring a word boundary
func MakeExcerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:max-1])
	if idx := strings.LastIndexByte(cut, ' '); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:.") + "…"
}

// AuthorityTier classifies the publisher of an imported source. Lower is
// more authoritative.
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Professional societies, government health agencies, journals
	TierSecondary AuthorityTier = 2 // Curated reference sites and encyclopedias
	TierTertiary  AuthorityTier = 3 // Everything else
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// ParseAuthorityTier accepts a tier name or its number
func ParseAuthorityTier(s string) (AuthorityTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "1":
		return TierPrimary, nil
	case "secondary", "2":
		return TierSecondary, nil
	case "tertiary", "3":
		return TierTertiary, nil
	default:
		return TierUnknown, fmt.Errorf("unknown authority tier %q (supported: primary, secondary, tertiary)", s)
	}
}
