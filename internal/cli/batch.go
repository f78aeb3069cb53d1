package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/pipeline"
	"github.com/ppiankov/rectify/internal/worker"
)

var (
	listFile     string
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [file...]",
	Short: "Correct many reports in parallel",
	Long: `Batch corrects many reports concurrently:
- Read report paths from arguments and/or a list file (one per line)
- Correct reports in parallel with a configurable worker count
- Write one JSON result per report, or JSON lines to stdout

Example:
  rectify batch reports/*.txt
  rectify batch --list reports.txt --concurrency 8 --output-dir ./results
  rectify batch a.txt b.txt --provider ollama --model llama3.1:8b`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&listFile, "list", "", "file listing report paths, one per line")
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default from concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "write <report>.json files here instead of JSON lines to stdout")
	batchCmd.Flags().DurationVar(&batchTimeout, "batch-timeout", 30*time.Minute, "total timeout for batch processing")
	addCorrectionFlags(batchCmd)
}

// batchLine is one JSON line written to stdout
type batchLine struct {
	Name   string      `json:"name"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	paths := append([]string(nil), args...)
	if listFile != "" {
		listed, err := worker.ReadPathsFromFile(listFile)
		if err != nil {
			return fmt.Errorf("read list: %w", err)
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no reports given: pass report paths or --list")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Rectify Batch Correction\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Reports:      %d\n", len(paths))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  Provider:     %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	} else {
		fmt.Fprintf(os.Stderr, "  Provider:     rules\n")
	}
	if outputDir != "" {
		fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	idx, repo, err := openKnowledge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	p, err := pipeline.NewPipelineFromConfig(cfg, idx, logger)
	if err != nil {
		return err
	}

	results := p.CorrectFiles(ctx, paths)

	successCount, degradedCount, failureCount := 0, 0, 0
	enc := json.NewEncoder(cmd.OutOrStdout())
	used := make(map[string]int)

	for _, r := range results {
		if r.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Name, r.Error)
			if outputDir == "" {
				if err := enc.Encode(batchLine{Name: r.Name, Error: r.Error.Error()}); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			}
			continue
		}

		successCount++
		if r.Result.Degraded {
			degradedCount++
		}

		if outputDir == "" {
			if err := enc.Encode(batchLine{Name: r.Name, Result: r.Result}); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
		} else {
			jsonPath := filepath.Join(outputDir, resultFilename(r.Name, used))
			if err := writeJSONFile(jsonPath, r.Result); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Name, err)
				continue
			}
		}

		fmt.Fprintf(os.Stderr, "✓ %s (confidence: %.2f, changes: %d)\n", r.Name, r.Result.Confidence, len(r.Result.Corrections))
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d reports\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d (%d degraded)\n", successCount, degradedCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 && successCount == 0 {
		return fmt.Errorf("all %d reports failed", failureCount)
	}
	return nil
}

// resultFilename derives "<base>.json" from a report path, adding a numeric
// suffix when two reports share a base name
func resultFilename(path string, used map[string]int) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		case ' ':
			return '-'
		}
		return r
	}, base)
	if base == "" || base == "." {
		base = "report"
	}
	if len(base) > 100 {
		base = base[:100]
	}

	used[base]++
	if n := used[base]; n > 1 {
		base = fmt.Sprintf("%s-%d", base, n)
	}
	return base + ".json"
}
