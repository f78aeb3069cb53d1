package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rectify/internal/cache"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/worker"
)

// Corrector guards a Provider for use inside a correction request: it
// enforces the request timeout, throttles calls, memoizes results and
// turns every failure into model.ErrGenerativeUnavailable. It never
// retries.
type Corrector struct {
	provider Provider
	model    string
	strict   bool
	limiter  *worker.Limiter
	cache    cache.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// CorrectorOption configures a Corrector
type CorrectorOption func(*Corrector)

// WithLimiter throttles provider calls; the wait counts against the timeout
func WithLimiter(l *worker.Limiter) CorrectorOption {
	return func(c *Corrector) { c.limiter = l }
}

// WithCache memoizes validated responses
func WithCache(store cache.Cache, ttl time.Duration) CorrectorOption {
	return func(c *Corrector) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// WithModel sets the model requested from the provider
func WithModel(name string) CorrectorOption {
	return func(c *Corrector) { c.model = name }
}

// WithStrictEvidence records the evidence mode in cache keys
func WithStrictEvidence(strict bool) CorrectorOption {
	return func(c *Corrector) { c.strict = strict }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) CorrectorOption {
	return func(c *Corrector) { c.logger = l }
}

// NewCorrector wraps provider. A nil provider yields a corrector that is
// always unavailable.
func NewCorrector(provider Provider, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		provider: provider,
		strict:   true,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCorrectorFromConfig builds the provider, limiter and cache described by
// cfg. A provider that cannot be constructed (missing API key, bad client
// options) is logged and leaves the corrector disabled, so requests fall back
// to the rule engine. Only an unknown provider name is an error.
func NewCorrectorFromConfig(cfg *model.Config, logger zerolog.Logger) (*Corrector, error) {
	pcfg := ConfigFromModel(cfg.LLM, cfg.HTTP, logger)
	provider, err := NewProvider(pcfg)
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			return nil, err
		}
		logger.Warn().Err(err).Str("provider", cfg.LLM.Provider).
			Msg("generative provider unavailable, continuing with rule engine only")
		return NewCorrector(nil, WithLogger(logger)), nil
	}

	return NewCorrector(provider,
		WithModel(cfg.LLM.Model),
		WithStrictEvidence(cfg.LLM.StrictEvidence),
		WithLimiter(worker.NewLimiter(cfg.LLM.RatePerSecond, cfg.LLM.Burst)),
		WithCache(cache.New(cfg.Cache), cfg.Cache.TTL),
		WithLogger(logger),
	), nil
}

// Enabled reports whether a provider is configured
func (c *Corrector) Enabled() bool {
	return c != nil && c.provider != nil
}

// Name returns the provider name, or "" when disabled
func (c *Corrector) Name() string {
	if !c.Enabled() {
		return ""
	}
	return c.provider.Name()
}

// Available checks that the provider answers; false when disabled
func (c *Corrector) Available(ctx context.Context) bool {
	return c.Enabled() && c.provider.IsAvailable(ctx)
}

// Correct asks the provider to rewrite text using sources as the citation
// allowlist. It returns within timeout (when positive). Any failure wraps
// model.ErrGenerativeUnavailable and leaves no partial output.
func (c *Corrector) Correct(ctx context.Context, text string, sources []model.RankedSource, timeout time.Duration) (*CorrectResponse, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: no provider configured", model.ErrGenerativeUnavailable)
	}

	req := CorrectRequest{Text: text, Sources: sources, Model: c.model}
	key := c.cacheKey(req)

	var cached CorrectResponse
	if cache.GetJSON(c.cache, key, &cached) {
		c.logger.Debug().Str("provider", c.provider.Name()).Msg("generative cache hit")
		return &cached, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.provider.Name()); err != nil {
			return nil, unavailable("rate limit wait", err)
		}
	}

	resp, err := c.provider.Correct(ctx, req)
	if err != nil {
		return nil, unavailable(c.provider.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(c.provider.Name(), err)
	}

	if err := cache.SetJSON(c.cache, key, resp, c.cacheTTL); err != nil {
		c.logger.Warn().Err(err).Msg("failed to cache generative result")
	}
	return resp, nil
}

func (c *Corrector) cacheKey(req CorrectRequest) string {
	return cache.Key(
		c.provider.Name(),
		req.Model,
		strconv.FormatBool(c.strict),
		req.Text,
		strings.Join(req.SourceIDs(), "\x00"),
	)
}

func unavailable(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out: %w", model.ErrGenerativeUnavailable, stage, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrGenerativeUnavailable, stage, err)
}
