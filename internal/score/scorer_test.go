package score

import (
	"math"
	"testing"

	"github.com/ppiankov/rectify/internal/model"
)

func sources(relevance ...float64) []model.RankedSource {
	out := make([]model.RankedSource, len(relevance))
	for i, r := range relevance {
		out[i] = model.RankedSource{SourceID: string(rune('a' + i)), Relevance: r}
	}
	return out
}

var someCorrection = []model.Correction{{Category: model.CategoryCompletion, ReplacementSpan: "FINDINGS:\n"}}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScorer_Calculate(t *testing.T) {
	hint := 0.5

	tests := []struct {
		name  string
		input Input
		want  float64
	}{
		{
			name:  "generative with sources",
			input: Input{Sources: sources(0.5, 1.0)},
			want:  0.75 + 0.2,
		},
		{
			name:  "generative with hint",
			input: Input{Sources: sources(0.5), Hint: &hint},
			want:  0.5 + 0.2*0.75,
		},
		{
			name:  "degraded with sources",
			input: Input{Sources: sources(0.5), Corrections: someCorrection, Degraded: true, RulesApplied: true},
			want:  0.5 + 0.2 - 0.15,
		},
		{
			name:  "degraded without sources, rule applied",
			input: Input{Corrections: someCorrection, Degraded: true, RulesApplied: true},
			want:  0.2 - 0.15,
		},
		{
			name:  "degraded without sources, nothing applied",
			input: Input{Degraded: true},
			want:  0,
		},
		{
			name:  "clamped to one",
			input: Input{Sources: sources(1, 1, 1)},
			want:  1,
		},
	}

	scorer := NewScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Calculate(tt.input)
			if !approx(got.Confidence, tt.want) {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.want)
			}
			if len(got.Signals) == 0 {
				t.Error("expected signals explaining the score")
			}
		})
	}
}

func TestScorer_ZeroOnlyWithoutSourcesAndRules(t *testing.T) {
	scorer := NewScorer()

	cases := []Input{
		{Sources: sources(0.01), Degraded: true},
		{Sources: sources(0.01), Corrections: someCorrection, Degraded: true, RulesApplied: true},
		{Corrections: someCorrection, Degraded: true, RulesApplied: true},
		{},
		{Sources: sources(0.01)},
	}
	for i, in := range cases {
		if got := scorer.Calculate(in).Confidence; got <= 0 {
			t.Errorf("case %d: expected positive confidence, got %v", i, got)
		}
	}
}

func TestScorer_ConfidenceInfersRulesFromCorrections(t *testing.T) {
	scorer := NewScorer()

	if got := scorer.Confidence(nil, nil, true); got != 0 {
		t.Errorf("expected zero without sources or corrections, got %v", got)
	}
	if got := scorer.Confidence(nil, someCorrection, true); got <= 0 {
		t.Errorf("expected positive confidence with corrections, got %v", got)
	}
}

func TestScorer_MonotonicInRelevance(t *testing.T) {
	scorer := NewScorer()

	steps := []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1}
	for _, degraded := range []bool{false, true} {
		prev := -1.0
		for _, r := range steps {
			got := scorer.Confidence(sources(0.4, r), someCorrection, degraded)
			if got < prev {
				t.Errorf("degraded=%v: confidence fell from %v to %v when relevance rose to %v", degraded, prev, got, r)
			}
			prev = got
		}
	}
}

func TestScorer_BaseIsMeanRelevance(t *testing.T) {
	scorer := NewScorer()

	got := scorer.Calculate(Input{Sources: sources(0.2, 0.4)})
	if !approx(got.Confidence, 0.3+SupportCredit) {
		t.Errorf("expected mean relevance plus support, got %v", got.Confidence)
	}
	if got.Signals[0].Type != SignalSourceRelevance || !approx(got.Signals[0].Data["mean"].(float64), 0.3) {
		t.Errorf("unexpected relevance signal %+v", got.Signals[0])
	}
}

func TestScorer_DegradedPenalty(t *testing.T) {
	scorer := NewScorer()

	normal := scorer.Confidence(sources(0.6), someCorrection, false)
	degraded := scorer.Confidence(sources(0.6), someCorrection, true)

	if !approx(normal-degraded, DegradedPenalty) {
		t.Errorf("expected penalty %v, got %v", DegradedPenalty, normal-degraded)
	}
}
