package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/pipeline"
)

var (
	outJSON   string
	outFormat string
)

// correctCmd represents the correct command
var correctCmd = &cobra.Command{
	Use:   "correct <file|->",
	Short: "Correct a single clinical report",
	Long: `Correct ranks knowledge sources against a report, corrects it with the
configured generative provider (or the rule engine when none is available),
classifies every change and scores the result.

Example:
  rectify correct report.txt
  cat report.txt | rectify correct -
  rectify correct report.txt --provider openai --model gpt-4o-mini --json result.json
  rectify correct report.txt --format text`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrect,
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().StringVar(&outJSON, "json", "", "write the JSON result to this path instead of stdout")
	correctCmd.Flags().StringVar(&outFormat, "format", "json", "stdout format (json, text)")
	addCorrectionFlags(correctCmd)
}

func runCorrect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	text, err := readReport(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
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

	result, err := p.Correct(ctx, pipeline.Request{Text: text})
	if err != nil {
		return err
	}

	if outJSON != "" {
		if err := writeJSONFile(outJSON, result); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outJSON)
		}
		return nil
	}

	switch outFormat {
	case "text":
		return renderText(cmd.OutOrStdout(), result)
	case "json", "":
		return writeJSON(cmd.OutOrStdout(), result)
	default:
		return fmt.Errorf("unknown format %q (supported: json, text)", outFormat)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func writeJSONFile(path string, v interface{}) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return writeJSON(f, v)
}

// renderText prints the corrected report followed by a change summary
func renderText(w io.Writer, r *model.CorrectionResult) (err error) {
	printf := func(format string, a ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, a...)
	}

	printf("%s\n\n", strings.TrimRight(r.CorrectedText, "\n"))
	printf("───────────────────────────────────────────────────────────\n")
	mode := r.Provider
	if r.Degraded {
		mode += " (degraded)"
	}
	printf("  Provider:    %s\n", mode)
	printf("  Confidence:  %.2f\n", r.Confidence)
	printf("  Changes:     %d", len(r.Corrections))
	for _, cat := range model.Categories() {
		if n := r.Counts[cat]; n > 0 {
			printf("  %s=%d", cat, n)
		}
	}
	printf("\n")

	for _, c := range r.Corrections {
		printf("    [%s] %q -> %q\n", c.Category, c.OriginalSpan, c.ReplacementSpan)
	}
	if len(r.Sources) > 0 {
		printf("  Sources:\n")
		for _, s := range r.Sources {
			cited := ""
			if s.Cited {
				cited = " (cited)"
			}
			printf("    %.2f  %s  %s%s\n", s.Relevance, s.SourceID, s.Title, cited)
		}
	}
	return err
}
