package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rectify/internal/model"
)

// Provider defines the interface for generative correction backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Correct rewrites a report, citing only the supplied sources
	Correct(ctx context.Context, req CorrectRequest) (*CorrectResponse, error)

	// IsAvailable checks if the provider is properly configured and reachable
	IsAvailable(ctx context.Context) bool
}

// CorrectRequest contains the input for one generative correction
type CorrectRequest struct {
	// Text is the raw report
	Text string

	// Sources is the STRICT allowlist of knowledge sources the model may cite
	Sources []model.RankedSource

	// Prompt overrides the default prompt when set
	Prompt string

	// Model overrides the configured model when set
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SourceIDs returns the ids of the allowed sources
func (r CorrectRequest) SourceIDs() []string {
	ids := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		ids[i] = s.SourceID
	}
	return ids
}

// CorrectResponse is a validated generative correction
type CorrectResponse struct {
	// CorrectedText is the rewritten report, never empty
	CorrectedText string `json:"corrected_text"`

	// SourceIDs are the sources the model attributed, a subset of the request's sources
	SourceIDs []string `json:"source_ids"`

	// Confidence is the model's own estimate in [0,1], if it gave one
	Confidence *float64 `json:"confidence,omitempty"`

	// Model is the model that generated the response
	Model string `json:"model"`

	// TokensUsed tracks token consumption
	TokensUsed int `json:"tokens_used"`
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "gemini", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Timeout caps a single HTTP exchange; the request deadline is usually shorter
	Timeout time.Duration

	// StrictEvidence rejects responses citing sources outside the allowlist
	StrictEvidence bool

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string

	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:       "", // Disabled by default
		Timeout:        30 * time.Second,
		StrictEvidence: true,
		MaxTokens:      2000,
		Logger:         zerolog.Nop(),
	}
}

func (c Config) maxTokens(override int) int {
	if override > 0 {
		return override
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 2000
}

func (c Config) model(override, fallback string) string {
	if override != "" {
		return override
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

// SystemPrompt sets the model's role for every provider
const SystemPrompt = "You are a clinical documentation assistant. You correct radiology and clinical reports " +
	"for terminology, clarity, completeness and measurement precision without changing their clinical meaning. " +
	"You respond with a single JSON object and nothing else."

// BuildPrompt constructs the correction prompt with the source allowlist
func BuildPrompt(text string, sources []model.RankedSource) string {
	var b strings.Builder

	b.WriteString(`Correct the clinical report below.

CRITICAL RULES:
1. Fix misspelled medical terms, expand ambiguous abbreviations, tighten vague measurements
   (e.g. "approximately 5mm" -> "measuring 5 mm"), and make sure the report has a FINDINGS
   section and a RECOMMENDATION section.
2. Do not add findings, diagnoses or measurements that are not in the original.
3. You MAY ONLY cite sources from this allowed list, by id:
`)
	b.WriteString(formatSources(sources))
	b.WriteString(`
4. If no listed source supports a change, cite nothing.

Respond with exactly this JSON object:
{"corrected_text": "<full corrected report>", "source_ids": ["<id>", ...], "confidence": <0..1>}

REPORT:
`)
	b.WriteString(text)
	return b.String()
}

// formatSources lists at most 20 sources to bound prompt size
func formatSources(sources []model.RankedSource) string {
	if len(sources) == 0 {
		return "(No sources available)"
	}

	var b strings.Builder
	for i, s := range sources {
		if i >= 20 {
			fmt.Fprintf(&b, "\n... and %d more sources", len(sources)-20)
			break
		}
		fmt.Fprintf(&b, "\n- [%s] %s: %s", s.SourceID, s.Title, s.Excerpt)
	}
	return b.String()
}
