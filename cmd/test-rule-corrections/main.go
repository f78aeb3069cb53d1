// Test program to demonstrate the rule engine fallback on sample reports.
// Each report is corrected, every change is classified, and the result is
// scored as a degraded correction without sources.
package main

import (
	"fmt"
	"strings"

	"github.com/ppiankov/rectify/internal/classify"
	"github.com/ppiankov/rectify/internal/rules"
	"github.com/ppiankov/rectify/internal/score"
)

func main() {
	fmt.Println("=== Rule Engine Correction Test ===")
	fmt.Println()

	samples := []string{
		"There is a nodule in the right upper lobe.",
		"Small plural effusion.  Nodual approximately 5mm in the RUL.",
		"FINDINGS:\nLungs are clear.\n\nRECOMMENDATION:\nNone.",
		"CLINICAL HISTORY: cough\n\nGround glass opacity in the LLL measuring 1.2cm.",
	}

	engine := rules.NewEngine()
	classifier := classify.NewClassifier(engine.Terminology())
	scorer := score.NewScorer()

	for _, original := range samples {
		fmt.Printf("Report: %q\n", original)
		fmt.Println(strings.Repeat("-", 60))

		corrected, trace := engine.ApplyTrace(original)
		corrections := classifier.Classify(original, corrected)

		if !trace.Applied() {
			fmt.Println("  ✓ No rule fired, report unchanged")
		} else {
			fmt.Printf("  Rules fired: %s\n", strings.Join(trace.Fired, ", "))
			for _, c := range corrections {
				fmt.Printf("     - [%s] %q -> %q at %d\n", c.Category, c.OriginalSpan, c.ReplacementSpan, c.Position)
			}
		}

		confidence := scorer.Calculate(score.Input{
			Corrections:  corrections,
			Degraded:     true,
			RulesApplied: trace.Applied(),
		}).Confidence
		fmt.Printf("  Confidence (no sources): %.2f\n", confidence)

		fmt.Println()
		fmt.Println(indent(corrected, "    "))
		fmt.Println()
	}

	fmt.Println("=== Test Complete ===")
	fmt.Println("\nNote: without a knowledge store or generative provider every result")
	fmt.Println("is degraded; confidence is zero only when no rule fired.")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
