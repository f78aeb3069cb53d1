package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/rectify/internal/knowledge"
	"github.com/ppiankov/rectify/internal/logging"
	"github.com/ppiankov/rectify/internal/model"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rectify",
	Short: "Rectify - clinical report correction engine",
	Long: `Rectify corrects free-text clinical reports (radiology findings,
pathology notes) against a knowledge base of guidelines and prior cases.

Each correction returns the corrected text, the ranked sources that support
it, every change labelled as completion, terminology, accuracy or clarity,
and a confidence value. When the generative backend is unavailable the
deterministic rule engine corrects the report and the result is marked
degraded.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rectify %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.rectify/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".rectify"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := setDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}

	// RECTIFY_LLM_PROVIDER overrides llm.provider, and so on
	viper.SetEnvPrefix("RECTIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key of cfg so environment variables can
// override keys the config file does not mention
func setDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}

	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for k, val := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]interface{}); ok {
				walk(key, child)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)

	// Keys omitted from the defaults because they are empty
	for _, key := range []string{
		"llm.api_key", "llm.base_url", "knowledge.seed_file", "knowledge.postgres_url",
		"cache.dir", "http.http_proxy", "http.https_proxy", "http.no_proxy", "rules.terminology_file",
	} {
		if !v.IsSet(key) {
			v.SetDefault(key, "")
		}
	}
	return nil
}

// loadConfig resolves defaults, config file, environment and flags
func loadConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyFlags(cmd, cfg)

	resolveProviderEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveProviderEnv fills the API key and base URL from the provider's
// conventional environment variables. A key that is still missing is not an
// error here: the pipeline warns and corrects with the rule engine.
func resolveProviderEnv(cfg *model.Config) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "anthropic", "claude":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "gemini":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
}

func newLogger(cfg *model.Config) zerolog.Logger {
	level := cfg.Log.Level
	if verbose && !viper.IsSet("log.level") {
		level = "debug"
	}
	return logging.New(level, cfg.Log.Format, os.Stderr)
}

// openKnowledge opens the configured repository and loads it into a new index
func openKnowledge(ctx context.Context, cfg *model.Config, logger zerolog.Logger) (*knowledge.Index, knowledge.Repository, error) {
	repo, err := knowledge.Open(ctx, cfg.Knowledge)
	if err != nil {
		return nil, nil, fmt.Errorf("open knowledge store: %w", err)
	}

	idx, err := knowledge.NewIndex()
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	idx.SetLogger(logger)

	if err := idx.Reload(ctx, repo); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	if idx.Snapshot().Len() == 0 {
		logger.Warn().Str("backend", cfg.Knowledge.Backend).Msg("knowledge store is empty, corrections will have no supporting sources")
	}
	return idx, repo, nil
}

// readReport reads a report from path, or from stdin when path is "-"
func readReport(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	return string(data), nil
}
