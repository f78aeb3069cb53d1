package rules

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// "approximately 5mm", "measuring about 1.2 cm", "~3 cc"
	vagueMeasurement = regexp.MustCompile(`(?i)(\bmeasuring\s+)?(\b(?:approximately|approx\.?|about|around|roughly)\s+|~\s*)(\d+(?:\.\d+)?)\s*(millimet(?:er|re)s?|centimet(?:er|re)s?|mm|cm|ml|cc)\b`)

	// "5mm" -> "5 mm"
	compactMeasurement = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)(mm|cm|ml|cc)\b`)
)

// normalizeUnit maps unit spellings to their standard abbreviation
func normalizeUnit(unit string) string {
	u := strings.ToLower(unit)
	switch {
	case strings.HasPrefix(u, "millimet"), u == "mm":
		return "mm"
	case strings.HasPrefix(u, "centimet"), u == "cm":
		return "cm"
	case u == "ml", u == "cc":
		return "mL"
	default:
		return unit
	}
}

// applyMeasurement rewrites vague quantity phrases into "measuring N unit".
// Quantities without a unit-like token are left untouched.
func applyMeasurement(text string) (string, int) {
	count := 0

	text = vagueMeasurement.ReplaceAllStringFunc(text, func(match string) string {
		m := vagueMeasurement.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		count++

		lead := "measuring"
		if r, _ := utf8.DecodeRuneInString(match); unicode.IsUpper(r) {
			lead = "Measuring"
		}
		return lead + " " + m[3] + " " + normalizeUnit(m[4])
	})

	text = compactMeasurement.ReplaceAllStringFunc(text, func(match string) string {
		m := compactMeasurement.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		count++
		return m[1] + " " + normalizeUnit(m[2])
	})

	return text, count
}
