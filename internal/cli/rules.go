package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/rules"
)

var showTrace bool

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules <file|->",
	Short: "Apply only the deterministic rule engine",
	Long: `Rules runs the fallback rule engine over a report and prints the
corrected text. It needs no knowledge store and no network access.

Example:
  rectify rules report.txt
  echo "Small plural effusion." | rectify rules - --trace`,
	Args: cobra.ExactArgs(1),
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().BoolVar(&showTrace, "trace", false, "print the rules that fired to stderr")
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	text, err := readReport(cmd, args[0])
	if err != nil {
		return err
	}

	engine, err := rules.NewEngineFromConfig(cfg.Rules)
	if err != nil {
		return fmt.Errorf("rule engine: %w", err)
	}

	corrected, trace := engine.ApplyTrace(text)
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), corrected); err != nil {
		return err
	}

	if showTrace || verbose {
		fired := "none"
		if trace.Applied() {
			fired = strings.Join(trace.Fired, ", ")
		}
		fmt.Fprintf(os.Stderr, "rules fired: %s (substitutions=%d, measurements=%d)\n",
			fired, trace.Substitutions, trace.Measurements)
	}
	return nil
}
