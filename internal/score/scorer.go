package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/rectify/internal/model"
)

const (
	// SupportCredit is granted when the correction rests on something:
	// ranked sources, a generative answer, or at least one fired rule
	SupportCredit = 0.2

	// DegradedPenalty is subtracted when the rule engine fallback was used
	DegradedPenalty = 0.15
)

// SignalType identifies one term of the confidence derivation
type SignalType string

const (
	SignalSourceRelevance SignalType = "source_relevance"
	SignalSupport         SignalType = "support"
	SignalDegraded        SignalType = "degraded_penalty"
)

// Signal explains one contribution to the confidence value
type Signal struct {
	Type        SignalType             `json:"type"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Input is everything the scorer looks at
type Input struct {
	Sources     []model.RankedSource
	Corrections []model.Correction
	Degraded    bool
	Hint        *float64 // Generator's own confidence, if reported

	// RulesApplied reports that the fallback changed the text. Only read
	// when Degraded is set.
	RulesApplied bool
}

// Score is the confidence with its derivation
type Score struct {
	Confidence float64  `json:"confidence"`
	Signals    []Signal `json:"signals"`
}

// Scorer derives a single confidence value for a correction
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Confidence returns the clamped confidence for a result. A degraded
// result with corrections is taken to have applied a rule.
func (s *Scorer) Confidence(sources []model.RankedSource, corrections []model.Correction, degraded bool) float64 {
	return s.Calculate(Input{
		Sources:      sources,
		Corrections:  corrections,
		Degraded:     degraded,
		RulesApplied: len(corrections) > 0,
	}).Confidence
}

// Calculate computes
//
//	raw = mean(relevance) + support - penalty
//
// clamped to [0,1]. The result is zero only when there are no sources and
// the fallback applied no rule.
func (s *Scorer) Calculate(in Input) Score {
	var signals []Signal

	base, baseSignal := s.calculateRelevance(in.Sources)
	signals = append(signals, baseSignal)

	support, supportSignal := s.calculateSupport(in)
	signals = append(signals, supportSignal)

	raw := base + support
	if in.Degraded {
		raw -= DegradedPenalty
		signals = append(signals, Signal{
			Type:        SignalDegraded,
			Description: fmt.Sprintf("Rule engine fallback used: -%.2f", DegradedPenalty),
			Data: map[string]interface{}{
				"penalty": DegradedPenalty,
			},
		})
	}

	return Score{
		Confidence: clamp(raw),
		Signals:    signals,
	}
}

// calculateRelevance returns the mean relevance (0 with no sources)
func (s *Scorer) calculateRelevance(sources []model.RankedSource) (float64, Signal) {
	if len(sources) == 0 {
		return 0, Signal{
			Type:        SignalSourceRelevance,
			Description: "No supporting sources",
			Data: map[string]interface{}{
				"sources": 0,
			},
		}
	}

	sum := 0.0
	for _, src := range sources {
		sum += clamp(src.Relevance)
	}
	mean := sum / float64(len(sources))

	return mean, Signal{
		Type:        SignalSourceRelevance,
		Description: fmt.Sprintf("Mean relevance of %d sources: %.2f", len(sources), mean),
		Data: map[string]interface{}{
			"sources": len(sources),
			"mean":    mean,
			"formula": "mean(relevance)",
		},
	}
}

// calculateSupport grants the support credit unless the result rests on
// nothing at all: no sources and a fallback that applied no rule
func (s *Scorer) calculateSupport(in Input) (float64, Signal) {
	if len(in.Sources) == 0 && in.Degraded && !in.RulesApplied {
		return 0, Signal{
			Type:        SignalSupport,
			Description: "No sources and no rule applied",
			Data: map[string]interface{}{
				"support": 0.0,
			},
		}
	}

	support := SupportCredit
	data := map[string]interface{}{
		"corrections": len(in.Corrections),
	}
	if in.Hint != nil && !in.Degraded {
		hint := clamp(*in.Hint)
		support *= 0.5 + 0.5*hint
		data["hint"] = hint
		data["formula"] = "0.2 * (0.5 + 0.5 * hint)"
	}
	data["support"] = support

	return support, Signal{
		Type:        SignalSupport,
		Description: fmt.Sprintf("Support credit: %.2f", support),
		Data:        data,
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
