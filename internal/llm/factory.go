package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rectify/internal/model"
)

// ErrUnknownProvider is returned by NewProvider for an unsupported name
var ErrUnknownProvider = errors.New("unknown LLM provider")

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "gemini":
		return NewGeminiProvider(config)

	case "":
		// No provider configured - every request takes the rule engine path
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %s (supported: openai, anthropic, ollama, gemini)", ErrUnknownProvider, config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config. Outbound proxy
// settings are shared with knowledge fetching.
func ConfigFromModel(llmConfig model.LLMConfig, httpConfig model.HTTPConfig, logger zerolog.Logger) Config {
	config := DefaultConfig()
	config.Provider = llmConfig.Provider
	config.Model = llmConfig.Model
	config.APIKey = llmConfig.APIKey
	config.BaseURL = llmConfig.BaseURL
	config.StrictEvidence = llmConfig.StrictEvidence
	if llmConfig.MaxTokens > 0 {
		config.MaxTokens = llmConfig.MaxTokens
	}
	if httpConfig.Timeout > 0 {
		config.Timeout = httpConfig.Timeout
	}
	config.HTTPProxy = httpConfig.HTTPProxy
	config.HTTPSProxy = httpConfig.HTTPSProxy
	config.NoProxy = httpConfig.NoProxy
	config.Logger = logger
	return config
}
