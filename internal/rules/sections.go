package rules

import (
	"regexp"
	"strings"

	"github.com/ppiankov/rectify/internal/model"
)

const (
	// FindingsHeading is inserted before the first body paragraph
	FindingsHeading = "FINDINGS:"

	// RecommendationHeading leads the synthesized follow-up paragraph
	RecommendationHeading = "RECOMMENDATION:"

	// DefaultRecommendation is the standard follow-up text
	DefaultRecommendation = "Clinical correlation and follow-up as clinically indicated."
)

var (
	findingsPresent       = regexp.MustCompile(`(?im)^\s*findings\s*:`)
	recommendationPresent = regexp.MustCompile(`(?im)^\s*(?:recommendations?|follow[- ]?up|plan)\s*:`)
)

// HasFindings reports whether text already carries a FINDINGS heading
func HasFindings(text string) bool {
	return findingsPresent.MatchString(text)
}

// HasRecommendation reports whether text carries a recommendation-equivalent section
func HasRecommendation(text string) bool {
	return recommendationPresent.MatchString(text)
}

// synthesizeSections adds the FINDINGS heading and the recommendation
// paragraph when they are missing. Paragraphs are separated by one blank line.
func synthesizeSections(text, recommendation string) (string, bool, bool) {
	if strings.TrimSpace(text) == "" {
		return text, false, false
	}

	paragraphs := strings.Split(text, "\n\n")
	addedFindings := false
	addedRecommendation := false

	if !HasFindings(text) {
		target := 0
		for i, p := range paragraphs {
			if !model.IsHeadingLine(firstLine(p)) {
				target = i
				break
			}
		}
		paragraphs[target] = FindingsHeading + "\n" + paragraphs[target]
		addedFindings = true
	}

	if !HasRecommendation(text) {
		paragraphs = append(paragraphs, RecommendationHeading+"\n"+recommendation)
		addedRecommendation = true
	}

	return strings.Join(paragraphs, "\n\n"), addedFindings, addedRecommendation
}

func firstLine(p string) string {
	if idx := strings.IndexByte(p, '\n'); idx >= 0 {
		return p[:idx]
	}
	return p
}
