package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface for Google Gemini models
type GeminiProvider struct {
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	return &GeminiProvider{config: config}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// IsAvailable reports whether a key is configured; the SDK has no cheap health check
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	return strings.TrimSpace(p.config.APIKey) != ""
}

// Correct rewrites a report with a Gemini model in JSON response mode
func (p *GeminiProvider) Correct(ctx context.Context, req CorrectRequest) (*CorrectResponse, error) {
	opts := []option.ClientOption{option.WithAPIKey(p.config.APIKey)}
	if p.config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(p.config.BaseURL))
	}

	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("Gemini client: %w", err)
	}
	defer func() { _ = cl.Close() }()

	modelName := p.config.model(req.Model, "gemini-1.5-flash")
	m := cl.GenerativeModel(modelName)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0.1),
		MaxOutputTokens:  ptrInt32(int32(p.config.maxTokens(req.MaxTokens))),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = BuildPrompt(req.Text, req.Sources)
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	txt := firstText(resp)
	if txt == "" {
		return nil, fmt.Errorf("%w: empty Gemini response", ErrMalformedResponse)
	}

	out, err := ParseCorrection(txt, req.SourceIDs(), p.config.StrictEvidence)
	if err != nil {
		return nil, err
	}
	out.Model = modelName
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

func ptrInt32(v int32) *int32 { return &v }
