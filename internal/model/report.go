package model

import (
	"regexp"
	"strings"
	"time"
)

// Report is a single clinical report submitted for correction.
// RawText is never modified; Sections is derived from it by ParseReport.
type Report struct {
	RawText  string    `json:"raw_text"`
	Sections []Section `json:"sections,omitempty"`
}

// Section is a (heading, body) pair. Heading is empty for text that
// precedes the first recognized heading.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

// headingLine matches "FINDINGS:" or "CLINICAL HISTORY: free text"
var headingLine = regexp.MustCompile(`^\s*([A-Z][A-Z0-9 /&()-]*[A-Z0-9)])\s*:\s*(.*)$`)

// ParseReport splits raw report text into sections
func ParseReport(raw string) Report {
	report := Report{RawText: raw}
	if strings.TrimSpace(raw) == "" {
		return report
	}

	var current *Section
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Heading != "" || current.Body != "" {
			report.Sections = append(report.Sections, *current)
		}
		body = body[:0]
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if m := headingLine.FindStringSubmatch(line); m != nil {
			flush()
			current = &Section{Heading: strings.TrimSpace(m[1])}
			if rest := strings.TrimSpace(m[2]); rest != "" {
				body = append(body, rest)
			}
			continue
		}
		if current == nil {
			current = &Section{}
		}
		body = append(body, line)
	}
	flush()

	return report
}

// HasSection reports whether a section with one of the given headings exists
// (case-insensitive).
func (r Report) HasSection(headings ...string) bool {
	for _, s := range r.Sections {
		for _, h := range headings {
			if strings.EqualFold(s.Heading, h) {
				return true
			}
		}
	}
	return false
}

// CorrectionResult is the sole output artifact of a correction request.
// Its shape is identical whether or not the fallback path was used.
type CorrectionResult struct {
	ID            string           `json:"id"`
	OriginalText  string           `json:"original_text"`
	CorrectedText string           `json:"corrected_text"`
	Corrections   []Correction     `json:"corrections"`
	Counts        map[Category]int `json:"counts"`
	Sources       []RankedSource   `json:"sources"`
	Confidence    float64          `json:"confidence"`
	Degraded      bool             `json:"degraded"`
	Provider      string           `json:"provider"`
	Model         string           `json:"model"`
	Timestamp     time.Time        `json:"timestamp"`
}

// IsHeadingLine reports whether line starts with a recognized section heading
func IsHeadingLine(line string) bool {
	return headingLine.MatchString(line)
}
