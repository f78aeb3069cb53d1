package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/ingest"
	"github.com/ppiankov/rectify/internal/knowledge"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/worker"
)

var (
	kbListJSON   bool
	kbFetchList  string
	kbFetchLimit int
)

// kbCmd represents the kb command
var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge store",
	Long: `Manage the guidelines and prior case notes corrections are ranked against.

Sources are persisted in the configured knowledge.backend. Commands that
change the store need a persistent backend (sqlite or postgres).`,
}

var kbImportCmd = &cobra.Command{
	Use:   "import <seed.yaml...>",
	Short: "Import sources from YAML seed files",
	Long: `Import reads seed files of the form

  sources:
    - id: fleischner-2017
      title: Fleischner Society guidelines for incidental pulmonary nodules
      full_text: ...

and upserts every source into the knowledge store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, true, func(ctx context.Context, cfg *model.Config, repo knowledge.Repository) error {
			total := 0
			for _, path := range args {
				sources, err := knowledge.LoadSeedFile(path)
				if err != nil {
					return err
				}
				if err := repo.Upsert(ctx, sources...); err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				total += len(sources)
				fmt.Fprintf(os.Stderr, "✓ %s: %d sources\n", path, len(sources))
			}
			fmt.Fprintf(os.Stderr, "Imported %d sources\n", total)
			return nil
		})
	},
}

var kbFetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Fetch guideline pages into the knowledge store",
	Long: `Fetch downloads guideline pages, honoring robots.txt and a per-host
rate limit, extracts their title and visible text and upserts them as
knowledge sources. Source ids are derived from the URL, so fetching a page
again updates it in place.

Example:
  rectify kb fetch https://radiopaedia.org/articles/pleural-effusion
  rectify kb fetch --list guideline-urls.txt --parallel 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := append([]string(nil), args...)
		if kbFetchList != "" {
			listed, err := worker.ReadPathsFromFile(kbFetchList)
			if err != nil {
				return fmt.Errorf("read list: %w", err)
			}
			urls = append(urls, listed...)
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs given: pass URLs or --list")
		}

		return withRepository(cmd, true, func(ctx context.Context, cfg *model.Config, repo knowledge.Repository) error {
			importer := ingest.NewImporter(cfg.HTTP, kbFetchLimit, newLogger(cfg))
			var (
				sources  []model.KnowledgeSource
				failures int
			)
			for _, r := range importer.Import(ctx, urls) {
				if r.Err != nil {
					failures++
					fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.URL, r.Err)
					continue
				}
				sources = append(sources, *r.Source)
				fmt.Fprintf(os.Stderr, "✓ %s -> %s (%s)\n", r.URL, r.Source.ID, r.Source.Title)
			}

			if len(sources) > 0 {
				if err := repo.Upsert(ctx, sources...); err != nil {
					return fmt.Errorf("store fetched sources: %w", err)
				}
			}
			fmt.Fprintf(os.Stderr, "Fetched %d sources, %d failures\n", len(sources), failures)
			if len(sources) == 0 {
				return fmt.Errorf("no pages could be imported")
			}
			return nil
		})
	},
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, false, func(ctx context.Context, cfg *model.Config, repo knowledge.Repository) error {
			sources, err := repo.List(ctx)
			if err != nil {
				return err
			}

			if kbListJSON {
				for i := range sources {
					sources[i].FullText = ""
				}
				return writeJSON(cmd.OutOrStdout(), sources)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTITLE")
			for _, src := range sources {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", src.ID, src.Title)
			}
			return w.Flush()
		})
	},
}

var kbRemoveCmd = &cobra.Command{
	Use:   "remove <id...>",
	Short: "Remove knowledge sources by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, true, func(ctx context.Context, cfg *model.Config, repo knowledge.Repository) error {
			for _, id := range args {
				if err := repo.Delete(ctx, id); err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
				fmt.Fprintf(os.Stderr, "✓ removed %s\n", id)
			}
			return nil
		})
	},
}

var kbExportCmd = &cobra.Command{
	Use:   "export <seed.yaml>",
	Short: "Export the knowledge store as a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, false, func(ctx context.Context, cfg *model.Config, repo knowledge.Repository) error {
			sources, err := repo.List(ctx)
			if err != nil {
				return err
			}
			if err := knowledge.WriteSeedFile(args[0], sources); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Exported %d sources to %s\n", len(sources), args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbImportCmd)
	kbCmd.AddCommand(kbFetchCmd)
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbRemoveCmd)
	kbCmd.AddCommand(kbExportCmd)

	kbListCmd.Flags().BoolVar(&kbListJSON, "json", false, "print sources as JSON")
	kbFetchCmd.Flags().StringVar(&kbFetchList, "list", "", "file listing URLs, one per line")
	kbFetchCmd.Flags().IntVar(&kbFetchLimit, "parallel", 4, "pages fetched in parallel")
}

// withRepository opens the configured repository for fn. mutating commands
// refuse the memory backend, whose changes would be lost on exit.
func withRepository(cmd *cobra.Command, mutating bool, fn func(ctx context.Context, cfg *model.Config, repo knowledge.Repository) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if mutating && (cfg.Knowledge.Backend == "" || cfg.Knowledge.Backend == "memory") {
		return fmt.Errorf("kb %s needs a persistent backend: set knowledge.backend to sqlite or postgres", cmd.Name())
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repo, err := knowledge.Open(ctx, cfg.Knowledge)
	if err != nil {
		return fmt.Errorf("open knowledge store: %w", err)
	}
	defer func() { _ = repo.Close() }()

	return fn(ctx, cfg, repo)
}
