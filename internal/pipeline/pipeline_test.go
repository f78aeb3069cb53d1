package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/rectify/internal/knowledge"
	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/worker"
)

const nodeReport = "There is a nodule in the right upper lobe."

// fakeProvider returns raw model output, validated the way real providers do
type fakeProvider struct {
	raw   string
	err   error
	delay time.Duration
}

func (f *fakeProvider) Name() string                         { return "fake" }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.err == nil }

func (f *fakeProvider) Correct(ctx context.Context, req llm.CorrectRequest) (*llm.CorrectResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	resp, err := llm.ParseCorrection(f.raw, req.SourceIDs(), true)
	if err != nil {
		return nil, err
	}
	resp.Model = "fake-1"
	return resp, nil
}

func newIndex(t *testing.T, sources ...model.KnowledgeSource) *knowledge.Index {
	t.Helper()
	idx, err := knowledge.NewIndex(sources...)
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	return idx
}

func noduleSources() []model.KnowledgeSource {
	return []model.KnowledgeSource{
		{ID: "fleischner", Title: "Pulmonary nodule follow-up", FullText: "Solid pulmonary nodule in the upper lobe: follow-up CT."},
		{ID: "cardiac", Title: "Cardiomegaly", FullText: "Enlarged cardiac silhouette."},
	}
}

// recorder collects state transitions per request
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) hook(_ string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func TestNewPipelineFromConfig_MissingKeyFallsBack(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""

	p, err := NewPipelineFromConfig(cfg, newIndex(t, noduleSources()...), zerolog.Nop())
	if err != nil {
		t.Fatalf("expected pipeline without a key, got %v", err)
	}
	if p.Provider() != ProviderRules {
		t.Errorf("expected rules provider, got %q", p.Provider())
	}

	result, err := p.Correct(context.Background(), Request{Text: nodeReport})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}
	if !result.Degraded || result.Provider != ProviderRules {
		t.Errorf("expected degraded rules result, got degraded=%v provider=%q", result.Degraded, result.Provider)
	}
	if !strings.Contains(result.CorrectedText, "FINDINGS:") {
		t.Errorf("expected rule engine output, got %q", result.CorrectedText)
	}
}

func TestNewPipelineFromConfig_UnknownProvider(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "watson"

	if _, err := NewPipelineFromConfig(cfg, nil, zerolog.Nop()); !errors.Is(err, llm.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestCorrect_FallbackAddsSections(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(newIndex(t, noduleSources()...), WithStateHook(rec.hook))

	result, err := p.Correct(context.Background(), Request{Text: nodeReport})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if !result.Degraded || result.Provider != ProviderRules {
		t.Errorf("expected degraded rules result, got degraded=%v provider=%q", result.Degraded, result.Provider)
	}
	if !strings.Contains(result.CorrectedText, "FINDINGS:") || !strings.Contains(result.CorrectedText, "RECOMMENDATION:") {
		t.Errorf("expected synthesized sections, got %q", result.CorrectedText)
	}
	if result.Counts[model.CategoryCompletion] != 2 {
		t.Errorf("expected 2 completion corrections, got %v", result.Counts)
	}
	if result.OriginalText != nodeReport {
		t.Errorf("original text modified: %q", result.OriginalText)
	}
	if result.ID == "" || result.Timestamp.Location() != time.UTC {
		t.Errorf("expected id and UTC timestamp, got %q %v", result.ID, result.Timestamp)
	}
	if len(result.Sources) == 0 || result.Sources[0].SourceID != "fleischner" {
		t.Errorf("expected fleischner ranked first, got %+v", result.Sources)
	}
	for _, s := range result.Sources {
		if s.Cited {
			t.Errorf("fallback must not mark sources cited: %+v", s)
		}
	}

	want := []State{StateReceived, StateRanking, StateCorrecting, StateFallbackCorrecting, StateClassifying, StateScoring, StateCompleted}
	if diff := cmp.Diff(want, rec.states); diff != "" {
		t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestCorrect_InvalidInput(t *testing.T) {
	p := NewPipeline(nil, WithEngineConfig(model.EngineConfig{TopK: 5, MaxTopK: 50, Timeout: time.Second, MaxInputBytes: 64}))

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", " \n\t "},
		{"invalid utf8", "nodule \xff\xfe"},
		{"nul byte", "nodule\x00lobe"},
		{"too large", strings.Repeat("nodule ", 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			p.hook = rec.hook

			result, err := p.Correct(context.Background(), Request{Text: tt.text})
			if result != nil {
				t.Errorf("expected no result, got %+v", result)
			}
			if !model.IsInvalidInput(err) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
			if diff := cmp.Diff([]State{StateReceived, StateRejected}, rec.states); diff != "" {
				t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCorrect_EmptyKnowledgeStore(t *testing.T) {
	p := NewPipeline(newIndex(t))

	result, err := p.Correct(context.Background(), Request{Text: nodeReport})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if result.Sources == nil || len(result.Sources) != 0 {
		t.Errorf("expected empty non-nil sources, got %#v", result.Sources)
	}
	if want := 0.2 - 0.15; result.Confidence < want-1e-9 || result.Confidence > want+1e-9 {
		t.Errorf("expected fallback-only confidence %v, got %v", want, result.Confidence)
	}
}

func TestCorrect_ZeroConfidenceWhenNothingApplies(t *testing.T) {
	p := NewPipeline(newIndex(t))

	text := "FINDINGS:\nLungs are clear.\n\nRECOMMENDATION:\nNone."
	result, err := p.Correct(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}
	if result.CorrectedText != text {
		t.Fatalf("expected text unchanged, got %q", result.CorrectedText)
	}
	if result.Confidence != 0 {
		t.Errorf("expected zero confidence, got %v", result.Confidence)
	}
}

func TestCorrect_TiedSourcesOrderedByID(t *testing.T) {
	guideline := "Pleural effusion grading and follow-up."
	p := NewPipeline(newIndex(t,
		model.KnowledgeSource{ID: "zeta", Title: "Effusion", FullText: guideline},
		model.KnowledgeSource{ID: "alpha", Title: "Effusion", FullText: guideline},
	))

	var first []model.RankedSource
	for i := 0; i < 5; i++ {
		result, err := p.Correct(context.Background(), Request{Text: "Small plural effusion."})
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = result.Sources
			if len(first) != 2 || first[0].SourceID != "alpha" || first[0].Relevance != first[1].Relevance {
				t.Fatalf("expected tied sources ordered alpha, zeta; got %+v", first)
			}
			continue
		}
		if diff := cmp.Diff(first, result.Sources); diff != "" {
			t.Fatalf("source order changed on run %d:\n%s", i, diff)
		}
	}
}

func TestCorrect_GenerativeSuccess(t *testing.T) {
	provider := &fakeProvider{
		raw: `{"corrected_text": "FINDINGS:\nThere is a nodule in the right upper lobe.\n\nRECOMMENDATION:\nFollow-up CT.", "source_ids": ["fleischner"], "confidence": 0.9}`,
	}
	rec := &recorder{}
	p := NewPipeline(newIndex(t, noduleSources()...),
		WithCorrector(llm.NewCorrector(provider)),
		WithStateHook(rec.hook),
	)

	result, err := p.Correct(context.Background(), Request{Text: nodeReport})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if result.Degraded {
		t.Error("expected non-degraded result")
	}
	if result.Provider != "fake" || result.Model != "fake-1" {
		t.Errorf("unexpected provider/model: %q %q", result.Provider, result.Model)
	}
	if !strings.HasSuffix(result.CorrectedText, "Follow-up CT.") {
		t.Errorf("expected generative text, got %q", result.CorrectedText)
	}
	for _, s := range result.Sources {
		if s.Cited != (s.SourceID == "fleischner") {
			t.Errorf("unexpected cited flag on %+v", s)
		}
	}

	want := []State{StateReceived, StateRanking, StateCorrecting, StateClassifying, StateScoring, StateCompleted}
	if diff := cmp.Diff(want, rec.states); diff != "" {
		t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestCorrect_FallbackOnFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		timeout  time.Duration
	}{
		{"error", &fakeProvider{err: errors.New("connection refused")}, time.Second},
		{"timeout", &fakeProvider{delay: 2 * time.Second, raw: `{"corrected_text": "late"}`}, 20 * time.Millisecond},
		{"malformed", &fakeProvider{raw: "I fixed it for you."}, time.Second},
		{"citation leak", &fakeProvider{raw: `{"corrected_text": "x", "source_ids": ["invented"]}`}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(newIndex(t, noduleSources()...), WithCorrector(llm.NewCorrector(tt.provider)))

			start := time.Now()
			result, err := p.Correct(context.Background(), Request{Text: nodeReport, Timeout: tt.timeout})
			if err != nil {
				t.Fatalf("failure leaked to caller: %v", err)
			}
			if !result.Degraded || result.Provider != ProviderRules {
				t.Errorf("expected fallback, got degraded=%v provider=%q", result.Degraded, result.Provider)
			}
			if result.CorrectedText != p.Rules().Apply(nodeReport) {
				t.Errorf("expected rule engine output, got %q", result.CorrectedText)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("fallback took %v", elapsed)
			}
		})
	}
}

func TestCorrect_FallbackShapeMatchesGenerative(t *testing.T) {
	ok := NewPipeline(newIndex(t, noduleSources()...), WithCorrector(llm.NewCorrector(&fakeProvider{
		raw: `{"corrected_text": "FINDINGS:\nThere is a nodule in the right upper lobe.", "source_ids": []}`,
	})))
	failing := NewPipeline(newIndex(t, noduleSources()...), WithCorrector(llm.NewCorrector(&fakeProvider{
		err: errors.New("unavailable"),
	})))

	good, err := ok.Correct(context.Background(), Request{Text: nodeReport})
	if err != nil {
		t.Fatal(err)
	}
	degraded, err := failing.Correct(context.Background(), Request{Text: nodeReport})
	if err != nil {
		t.Fatal(err)
	}
	if good.Degraded || !degraded.Degraded {
		t.Fatalf("expected one degraded result, got %v and %v", good.Degraded, degraded.Degraded)
	}

	if diff := cmp.Diff(jsonShape(t, good), jsonShape(t, degraded)); diff != "" {
		t.Errorf("result shapes differ (-generative +fallback):\n%s", diff)
	}
}

// jsonShape returns the sorted top-level keys with their JSON kinds
func jsonShape(t *testing.T, result *model.CorrectionResult) []string {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}

	var shape []string
	for k, v := range fields {
		kind := "null"
		switch v.(type) {
		case string:
			kind = "string"
		case float64:
			kind = "number"
		case bool:
			kind = "bool"
		case []interface{}:
			kind = "array"
		case map[string]interface{}:
			kind = "object"
		}
		shape = append(shape, k+":"+kind)
	}
	sort.Strings(shape)
	return shape
}

func TestCorrect_Deterministic(t *testing.T) {
	p := NewPipeline(newIndex(t, noduleSources()...))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	text := "Small plural effusion. Nodual approximately 5mm in the RUL."
	a, err := p.Correct(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Correct(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatal(err)
	}

	a.ID, b.ID = "", ""
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated correction differs:\n%s", diff)
	}
}

func TestCorrect_TopK(t *testing.T) {
	var sources []model.KnowledgeSource
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		sources = append(sources, model.KnowledgeSource{ID: id, Title: "Nodule", FullText: "nodule lobe"})
	}
	p := NewPipeline(newIndex(t, sources...), WithEngineConfig(model.EngineConfig{
		TopK: 2, MaxTopK: 4, Timeout: time.Second, MaxInputBytes: 1000,
	}))

	for _, tt := range []struct{ requested, want int }{{0, 2}, {3, 3}, {100, 4}} {
		result, err := p.Correct(context.Background(), Request{Text: nodeReport, TopK: tt.requested})
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Sources) != tt.want {
			t.Errorf("top_k=%d: expected %d sources, got %d", tt.requested, tt.want, len(result.Sources))
		}
	}
}

func TestCorrectAll(t *testing.T) {
	p := NewPipeline(newIndex(t, noduleSources()...), WithWorkers(3))

	inputs := []worker.Input{
		{Name: "one", Text: nodeReport},
		{Name: "blank", Text: "   "},
		{Name: "three", Text: "Small plural effusion."},
	}
	results := p.CorrectAll(context.Background(), inputs)

	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}
	for i, r := range results {
		if r.Name != inputs[i].Name {
			t.Errorf("result %d out of order: %s", i, r.Name)
		}
	}
	if results[0].Error != nil || results[0].Result == nil {
		t.Errorf("expected success for first report, got %v", results[0].Error)
	}
	if !model.IsInvalidInput(results[1].Error) {
		t.Errorf("expected invalid input for blank report, got %v", results[1].Error)
	}
	if results[2].Result == nil || !strings.Contains(results[2].Result.CorrectedText, "pleural") {
		t.Errorf("expected corrected third report, got %+v", results[2].Result)
	}
}
