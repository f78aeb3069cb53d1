package classify

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/rules"
)

func TestClassify_IdenticalText(t *testing.T) {
	c := NewClassifier(nil)

	got := c.Classify("No acute disease.", "No acute disease.")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", got)
	}
}

func TestClassify_AddedSectionsAreCompletion(t *testing.T) {
	original := "There is a nodule in the right upper lobe."
	corrected := rules.NewEngine().Apply(original)

	got := NewClassifier(nil).Classify(original, corrected)

	if len(got) != 2 {
		t.Fatalf("expected 2 corrections, got %d: %+v", len(got), got)
	}
	for _, corr := range got {
		if corr.Category != model.CategoryCompletion {
			t.Errorf("expected completion, got %s for %q", corr.Category, corr.ReplacementSpan)
		}
		if corr.OriginalSpan != "" {
			t.Errorf("expected pure insertion, got original span %q", corr.OriginalSpan)
		}
	}
	if got[0].Position != 0 || !strings.HasPrefix(got[0].ReplacementSpan, "FINDINGS:") {
		t.Errorf("expected FINDINGS insertion first at 0, got %+v", got[0])
	}
	if !strings.Contains(got[1].ReplacementSpan, "RECOMMENDATION:") {
		t.Errorf("expected RECOMMENDATION insertion second, got %+v", got[1])
	}
	if !strings.HasPrefix(corrected[got[1].Position:], got[1].ReplacementSpan) {
		t.Errorf("position %d does not point at the replacement in corrected text", got[1].Position)
	}
}

func TestClassify_Terminology(t *testing.T) {
	got := NewClassifier(nil).Classify("Small plural effusion.", "Small pleural effusion.")

	want := []model.Correction{{
		Category:        model.CategoryTerminology,
		OriginalSpan:    "plural",
		ReplacementSpan: "pleural",
		Position:        6,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("corrections mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_AbbreviationExpansion(t *testing.T) {
	got := NewClassifier(nil).Classify("Mass in the RUL.", "Mass in the right upper lobe.")

	if len(got) != 1 {
		t.Fatalf("expected 1 correction, got %+v", got)
	}
	if got[0].Category != model.CategoryTerminology {
		t.Errorf("expected terminology, got %s", got[0].Category)
	}
	if got[0].OriginalSpan != "RUL" || got[0].ReplacementSpan != "right upper lobe" {
		t.Errorf("unexpected spans: %+v", got[0])
	}
}

func TestClassify_Measurement(t *testing.T) {
	got := NewClassifier(nil).Classify("Nodule approximately 5mm.", "Nodule measuring 5 mm.")

	if len(got) == 0 {
		t.Fatal("expected corrections")
	}
	for _, corr := range got {
		if corr.Category != model.CategoryAccuracy {
			t.Errorf("expected accuracy, got %s for %q -> %q", corr.Category, corr.OriginalSpan, corr.ReplacementSpan)
		}
	}
}

func TestClassify_PunctuationAndCaseAreClarity(t *testing.T) {
	got := NewClassifier(nil).Classify("no acute disease", "No acute disease.")

	want := []model.Correction{
		{Category: model.CategoryClarity, OriginalSpan: "no", ReplacementSpan: "No", Position: 0},
		{Category: model.CategoryClarity, OriginalSpan: "", ReplacementSpan: ".", Position: 16},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("corrections mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_UnrecognizedDefaultsToClarity(t *testing.T) {
	got := NewClassifier(nil).Classify("Lungs are clear.", "Lungs are unremarkable.")

	if len(got) != 1 || got[0].Category != model.CategoryClarity {
		t.Errorf("expected single clarity correction, got %+v", got)
	}
}

func TestClassify_FullCorrectionOrderedByPosition(t *testing.T) {
	original := "Small plural effusion. Nodual approximately 5mm in the RUL."
	corrected := rules.NewEngine().Apply(original)

	got := NewClassifier(nil).Classify(original, corrected)

	for i := 1; i < len(got); i++ {
		if got[i].Position < got[i-1].Position {
			t.Errorf("corrections out of order at %d: %d < %d", i, got[i].Position, got[i-1].Position)
		}
	}
	for _, corr := range got {
		if !corr.Category.Valid() {
			t.Errorf("invalid category %q", corr.Category)
		}
	}

	counts := Count(got)
	if counts[model.CategoryCompletion] != 2 {
		t.Errorf("expected 2 completion corrections, got %d", counts[model.CategoryCompletion])
	}
	if counts[model.CategoryTerminology] == 0 {
		t.Error("expected at least one terminology correction")
	}
	if counts[model.CategoryAccuracy] == 0 {
		t.Error("expected at least one accuracy correction")
	}
}

func TestCount_AllCategoriesPresent(t *testing.T) {
	counts := Count(nil)
	for _, cat := range model.Categories() {
		if n, ok := counts[cat]; !ok || n != 0 {
			t.Errorf("expected %s=0, got %d (present=%v)", cat, n, ok)
		}
	}
}

func TestTokenize_Lossless(t *testing.T) {
	inputs := []string{
		"",
		"FINDINGS:\nNodule measuring 5 mm.\n\nRECOMMENDATION:\nNone.",
		"  leading and trailing  ",
		"1.2 cm, ~3cc; ground-glass opacity!!",
		"unicode: pleurální výpotek",
	}
	for _, in := range inputs {
		if got := strings.Join(tokenize(in), ""); got != in {
			t.Errorf("tokenize lost text: %q -> %q", in, got)
		}
	}

	if diff := cmp.Diff([]string{"5", ".", ".", " ", "mm"}, tokenize("5.. mm")); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}
