// Package rules implements the deterministic correction rule engine. It has
// no external dependencies at request time and serves as the fallback when
// the generative corrector is unavailable.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/rectify/internal/model"
)

// Rule names reported in a Trace
const (
	RuleHygiene         = "hygiene"
	RuleTerminology     = "terminology"
	RuleMeasurement     = "measurement"
	RuleFindingsHeading = "findings_heading"
	RuleRecommendation  = "recommendation"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

// Trace records which rules changed the text during one Apply
type Trace struct {
	Fired         []string `json:"fired"`
	Substitutions int      `json:"substitutions"` // Terminology replacements
	Measurements  int      `json:"measurements"`  // Measurement rewrites
}

// Applied reports whether any rule changed the text
func (t Trace) Applied() bool {
	return len(t.Fired) > 0
}

// Option configures an Engine
type Option func(*Engine)

// WithTerminology replaces the built-in terminology mapping
func WithTerminology(t *Terminology) Option {
	return func(e *Engine) {
		if t != nil {
			e.terms = t
		}
	}
}

// WithRecommendation replaces the synthesized follow-up text
func WithRecommendation(text string) Option {
	return func(e *Engine) {
		if text = strings.TrimSpace(text); text != "" {
			e.recommendation = text
		}
	}
}

// Engine applies the correction rules in a fixed order:
//  1. terminology normalization
//  2. measurement precision
//  3. section synthesis
//
// A whitespace hygiene pass runs first. Apply is pure, deterministic and
// idempotent: Apply(Apply(x)) == Apply(x).
type Engine struct {
	terms          *Terminology
	recommendation string
}

// NewEngine creates a rule engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		terms:          DefaultTerminology(),
		recommendation: DefaultRecommendation,
	}
	for _, opt := range opts {
		opt(e)
	}

	// The synthesized paragraph must already be in corrected form or a
	// second Apply would rewrite it.
	rec := hygiene(e.recommendation)
	rec, _ = e.terms.Apply(rec)
	rec, _ = applyMeasurement(rec)
	e.recommendation = rec

	return e
}

// NewEngineFromConfig builds an engine whose terminology is the built-in
// table extended by cfg.TerminologyFile, when set
func NewEngineFromConfig(cfg model.RulesConfig) (*Engine, error) {
	if cfg.TerminologyFile == "" {
		return NewEngine(), nil
	}
	extra, err := LoadTerminologyFile(cfg.TerminologyFile)
	if err != nil {
		return nil, err
	}
	terms, err := NewTerminology(append(DefaultTerms(), extra...))
	if err != nil {
		return nil, fmt.Errorf("build terminology: %w", err)
	}
	return NewEngine(WithTerminology(terms)), nil
}

// Terminology returns the mapping the engine applies
func (e *Engine) Terminology() *Terminology {
	return e.terms
}

// Apply returns the corrected text
func (e *Engine) Apply(text string) string {
	out, _ := e.ApplyTrace(text)
	return out
}

// ApplyTrace returns the corrected text and which rules fired
func (e *Engine) ApplyTrace(text string) (string, Trace) {
	var trace Trace

	out := hygiene(text)
	if out != text {
		trace.Fired = append(trace.Fired, RuleHygiene)
	}
	if out == "" {
		return out, trace
	}

	if next, n := e.terms.Apply(out); n > 0 {
		out = next
		trace.Substitutions = n
		trace.Fired = append(trace.Fired, RuleTerminology)
	}

	if next, n := applyMeasurement(out); n > 0 {
		out = next
		trace.Measurements = n
		trace.Fired = append(trace.Fired, RuleMeasurement)
	}

	next, findings, recommendation := synthesizeSections(out, e.recommendation)
	out = next
	if findings {
		trace.Fired = append(trace.Fired, RuleFindingsHeading)
	}
	if recommendation {
		trace.Fired = append(trace.Fired, RuleRecommendation)
	}

	return out, trace
}

// hygiene normalizes line endings and whitespace without touching words
func hygiene(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")

	text = extraBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
