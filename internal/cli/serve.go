package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/pipeline"
	"github.com/ppiankov/rectify/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the correction HTTP API",
	Long: `Serve exposes the correction engine over HTTP:

  POST /api/v1/corrections    JSON {text, timeout_ms, top_k} or text/plain body
  GET  /api/v1/sources        indexed knowledge sources
  GET  /api/v1/sources/:id    one knowledge source
  GET  /health                liveness and knowledge snapshot version

The knowledge store is reloaded every knowledge.reload_interval.

Example:
  rectify serve --addr :8080
  RECTIFY_KNOWLEDGE_BACKEND=sqlite rectify serve --provider openai`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	addCorrectionFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, repo, err := openKnowledge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	if cfg.Knowledge.ReloadInterval > 0 {
		go idx.Watch(ctx, repo, cfg.Knowledge.ReloadInterval)
	}

	p, err := pipeline.NewPipelineFromConfig(cfg, idx, logger)
	if err != nil {
		return err
	}

	if p.Provider() != pipeline.ProviderRules {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if !p.Available(checkCtx) {
			logger.Warn().Str("provider", p.Provider()).Msg("provider not reachable, requests will fall back to rules")
		}
		cancel()
	}

	logger.Info().
		Str("provider", p.Provider()).
		Str("backend", cfg.Knowledge.Backend).
		Int("sources", idx.Snapshot().Len()).
		Msg("correction engine ready")

	srv := server.New(p, idx, cfg.Server, logger)
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
