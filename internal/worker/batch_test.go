package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/rectify/internal/model"
)

type mockCorrector struct{}

func (mockCorrector) CorrectText(ctx context.Context, text string) (*model.CorrectionResult, error) {
	time.Sleep(time.Millisecond)
	if strings.TrimSpace(text) == "" {
		return nil, &model.InvalidInputError{Reason: "empty report"}
	}
	return &model.CorrectionResult{OriginalText: text, CorrectedText: strings.ToUpper(text)}, nil
}

func TestBatchProcessor_ProcessKeepsInputOrder(t *testing.T) {
	processor := NewBatchProcessor(mockCorrector{}, 3)

	var inputs []Input
	for _, s := range []string{"a", "b", "", "d", "e", "f", "g"} {
		inputs = append(inputs, Input{Name: s, Text: s})
	}

	results := processor.Process(context.Background(), inputs)

	var names []string
	for _, r := range results {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "", "d", "e", "f", "g"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if !model.IsInvalidInput(results[2].GetError()) {
		t.Errorf("expected invalid input for empty report, got %v", results[2].GetError())
	}
	if results[0].Result == nil || results[0].Result.CorrectedText != "A" {
		t.Errorf("unexpected first result: %+v", results[0].Result)
	}
}

func TestBatchProcessor_ProcessEmpty(t *testing.T) {
	results := NewBatchProcessor(mockCorrector{}, 2).Process(context.Background(), nil)
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil results, got %#v", results)
	}
}

func TestBatchProcessor_ProcessFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(good, []byte("nodule"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.txt")

	results := NewBatchProcessor(mockCorrector{}, 2).ProcessFiles(context.Background(), []string{good, missing})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != good || results[0].Error != nil {
		t.Errorf("unexpected good result: %+v", results[0])
	}
	if results[1].Name != missing || !errors.Is(results[1].Error, os.ErrNotExist) {
		t.Errorf("expected not-exist error for missing file, got %+v", results[1])
	}
}

func TestReadPathsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	content := "# reports\nfirst.txt\n\nsecond.txt\nfirst.txt\n  third.txt  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadPathsFromFile(path)
	if err != nil {
		t.Fatalf("ReadPathsFromFile failed: %v", err)
	}
	if diff := cmp.Diff([]string{"first.txt", "second.txt", "third.txt"}, got); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadPathsFromFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing list file")
	}
}
