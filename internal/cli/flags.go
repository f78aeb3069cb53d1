package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/model"
)

var (
	llmProvider string
	llmModel    string
	genTimeout  time.Duration
	topK        int
	noCache     bool
	concurrency int
)

// addCorrectionFlags registers the flags shared by commands that correct reports
func addCorrectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&llmProvider, "provider", "", "generative provider (openai, anthropic, ollama, gemini); empty uses the rule engine only")
	cmd.Flags().StringVar(&llmModel, "model", "", "generative model name")
	cmd.Flags().DurationVar(&genTimeout, "timeout", 0, "generative correction budget (default from engine.timeout)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of knowledge sources to rank (default from engine.top_k)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the generative result cache")
}

// applyFlags copies explicitly set flags over the loaded configuration
func applyFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.LLM.Provider = llmProvider
	}
	if flags.Changed("model") {
		cfg.LLM.Model = llmModel
	}
	if flags.Changed("timeout") {
		cfg.Engine.Timeout = genTimeout
	}
	if flags.Changed("top-k") {
		cfg.Engine.TopK = topK
		if cfg.Engine.MaxTopK < topK {
			cfg.Engine.MaxTopK = topK
		}
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency.Workers = concurrency
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
}
