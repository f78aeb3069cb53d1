package model

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the complete rectify configuration
type Config struct {
	Engine      EngineConfig      `yaml:"engine" mapstructure:"engine"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge" mapstructure:"knowledge"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// EngineConfig controls a single correction request
type EngineConfig struct {
	TopK          int           `yaml:"top_k" mapstructure:"top_k"`
	MaxTopK       int           `yaml:"max_top_k" mapstructure:"max_top_k"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"` // Generative-call budget
	MaxInputBytes int           `yaml:"max_input_bytes" mapstructure:"max_input_bytes"`
}

// LLMConfig configures the generative corrector
type LLMConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, gemini, "" (disabled)
	Model          string  `yaml:"model" mapstructure:"model"`
	APIKey         string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
	StrictEvidence bool    `yaml:"strict_evidence" mapstructure:"strict_evidence"`
}

// KnowledgeConfig selects where knowledge sources are persisted
type KnowledgeConfig struct {
	Backend        string        `yaml:"backend" mapstructure:"backend"` // memory, sqlite, postgres
	SeedFile       string        `yaml:"seed_file,omitempty" mapstructure:"seed_file"`
	SQLitePath     string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgresURL    string        `yaml:"postgres_url,omitempty" mapstructure:"postgres_url"`
	ReloadInterval time.Duration `yaml:"reload_interval" mapstructure:"reload_interval"`
}

// CacheConfig controls memoization of generative results
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Dir     string        `yaml:"dir,omitempty" mapstructure:"dir"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	BodyLimit      string        `yaml:"body_limit" mapstructure:"body_limit"`
}

// HTTPConfig controls outbound fetching for knowledge import
type HTTPConfig struct {
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HostRate     float64       `yaml:"host_rate" mapstructure:"host_rate"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`

	Authority AuthorityConfig `yaml:"authority" mapstructure:"authority"`
}

// AuthorityConfig ranks the publishers guideline pages are imported from
type AuthorityConfig struct {
	PrimaryDomains   []string `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	MinTier          string   `yaml:"min_tier" mapstructure:"min_tier"` // primary, secondary, tertiary
}

// ConcurrencyConfig controls batch processing
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RulesConfig controls the deterministic rule engine
type RulesConfig struct {
	TerminologyFile string `yaml:"terminology_file,omitempty" mapstructure:"terminology_file"`
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			TopK:          5,
			MaxTopK:       50,
			Timeout:       5 * time.Second,
			MaxInputBytes: 200_000,
		},
		LLM: LLMConfig{
			Provider:       "", // Disabled by default: every request uses the rule engine
			MaxTokens:      2000,
			RatePerSecond:  2,
			Burst:          4,
			StrictEvidence: true,
		},
		Knowledge: KnowledgeConfig{
			Backend:        "memory",
			SQLitePath:     "rectify.db",
			ReloadInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 30 * time.Second,
			BodyLimit:      "1M",
		},
		HTTP: HTTPConfig{
			UserAgent:    "Rectify/0.1 (+https://github.com/ppiankov/rectify)",
			Timeout:      20 * time.Second,
			MaxBodyBytes: 2_000_000,
			HostRate:     1,
			Authority: AuthorityConfig{
				PrimaryDomains: []string{
					"acr.org", "rsna.org", "nih.gov", "nice.org.uk",
					"who.int", "doi.org", "cap.org", "esr.org",
				},
				SecondaryDomains: []string{
					"radiopaedia.org", "wikipedia.org", "medscape.com", "statpearls.com",
				},
				MinTier: "tertiary",
			},
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks that the configuration can run
func (c *Config) Validate() error {
	if c.Engine.TopK <= 0 {
		return fmt.Errorf("engine.top_k must be positive, got %d", c.Engine.TopK)
	}
	if c.Engine.MaxTopK < c.Engine.TopK {
		return fmt.Errorf("engine.max_top_k (%d) must be >= engine.top_k (%d)", c.Engine.MaxTopK, c.Engine.TopK)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	if c.Engine.MaxInputBytes <= 0 {
		return fmt.Errorf("engine.max_input_bytes must be positive")
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "", "openai", "anthropic", "claude", "ollama", "gemini":
	default:
		return fmt.Errorf("unknown llm.provider %q (supported: openai, anthropic, ollama, gemini)", c.LLM.Provider)
	}

	switch c.Knowledge.Backend {
	case "memory":
	case "sqlite":
		if c.Knowledge.SQLitePath == "" {
			return fmt.Errorf("knowledge.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Knowledge.PostgresURL == "" {
			return fmt.Errorf("knowledge.postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown knowledge.backend %q (supported: memory, sqlite, postgres)", c.Knowledge.Backend)
	}

	if c.HTTP.Authority.MinTier != "" {
		if _, err := ParseAuthorityTier(c.HTTP.Authority.MinTier); err != nil {
			return fmt.Errorf("http.authority.min_tier: %w", err)
		}
	}

	if c.Concurrency.Workers <= 0 {
		return fmt.Errorf("concurrency.workers must be positive")
	}
	return nil
}
