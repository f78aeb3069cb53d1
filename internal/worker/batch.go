package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/rectify/internal/model"
)

// Corrector corrects a single report
type Corrector interface {
	CorrectText(ctx context.Context, text string) (*model.CorrectionResult, error)
}

// Input is one report in a batch
type Input struct {
	Name string // File path or other label
	Text string
}

// CorrectJob corrects one report
type CorrectJob struct {
	Index     int
	Input     Input
	Corrector Corrector
}

// Execute runs the correction
func (j *CorrectJob) Execute(ctx context.Context) Result {
	result, err := j.Corrector.CorrectText(ctx, j.Input.Text)
	return &CorrectResult{
		Index:  j.Index,
		Name:   j.Input.Name,
		Result: result,
		Error:  err,
	}
}

// CorrectResult is the outcome of one batch entry
type CorrectResult struct {
	Index  int                     `json:"-"`
	Name   string                  `json:"name"`
	Result *model.CorrectionResult `json:"result,omitempty"`
	Error  error                   `json:"-"`
}

// GetError returns the correction error
func (r *CorrectResult) GetError() error {
	return r.Error
}

// BatchProcessor corrects many reports concurrently
type BatchProcessor struct {
	corrector   Corrector
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(corrector Corrector, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		corrector:   corrector,
		concurrency: concurrency,
	}
}

// Process corrects all inputs and returns results in input order
func (b *BatchProcessor) Process(ctx context.Context, inputs []Input) []*CorrectResult {
	if len(inputs) == 0 {
		return []*CorrectResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, in := range inputs {
		if !pool.Submit(&CorrectJob{Index: i, Input: in, Corrector: b.corrector}) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*CorrectResult, 0, len(results))
	for _, r := range results {
		out = append(out, r.(*CorrectResult))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	return out
}

// ProcessFiles reads each path and corrects its contents. Unreadable
// files are reported as failed entries.
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*CorrectResult {
	var (
		inputs   []Input
		failures []*CorrectResult
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, &CorrectResult{Name: path, Error: fmt.Errorf("read report: %w", err)})
			continue
		}
		inputs = append(inputs, Input{Name: path, Text: string(data)})
	}

	return append(b.Process(ctx, inputs), failures...)
}

// ReadPathsFromFile reads report paths from a list file (one per line,
// # comments and blank lines ignored, duplicates dropped)
func ReadPathsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
