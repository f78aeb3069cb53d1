// Package pipeline orchestrates a correction request: rank sources, correct
// with the generative backend or the rule engine fallback, classify the
// changes and score the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/rectify/internal/classify"
	"github.com/ppiankov/rectify/internal/knowledge"
	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/rank"
	"github.com/ppiankov/rectify/internal/rules"
	"github.com/ppiankov/rectify/internal/score"
	"github.com/ppiankov/rectify/internal/worker"
)

// ProviderRules names the rule engine in CorrectionResult.Provider
const ProviderRules = "rules"

// Request is one inbound correction request
type Request struct {
	Text    string
	TopK    int           // <= 0 uses the configured default
	Timeout time.Duration // Generative budget; <= 0 uses the configured default
}

// Pipeline orchestrates the complete correction process
type Pipeline struct {
	ranker     *rank.Ranker
	rules      *rules.Engine
	corrector  *llm.Corrector
	classifier *classify.Classifier
	scorer     *score.Scorer
	engine     model.EngineConfig
	workers    int
	hook       StateHook
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCorrector sets the generative corrector; without one every request
// takes the fallback path
func WithCorrector(c *llm.Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// WithRules replaces the default rule engine
func WithRules(e *rules.Engine) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.rules = e
		}
	}
}

// WithEngineConfig sets request defaults and limits
func WithEngineConfig(cfg model.EngineConfig) Option {
	return func(p *Pipeline) { p.engine = cfg }
}

// WithWorkers sets batch concurrency
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithStateHook observes state transitions
func WithStateHook(h StateHook) Option {
	return func(p *Pipeline) { p.hook = h }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline ranking against index. A nil index is
// treated as an empty knowledge store.
func NewPipeline(index *knowledge.Index, opts ...Option) *Pipeline {
	if index == nil {
		index, _ = knowledge.NewIndex()
	}

	p := &Pipeline{
		ranker:  rank.NewRanker(index),
		rules:   rules.NewEngine(),
		scorer:  score.NewScorer(),
		engine:  model.DefaultConfig().Engine,
		workers: 4,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.classifier = classify.NewClassifier(p.rules.Terminology())

	return p
}

// NewPipelineFromConfig wires the rule engine, generative corrector and
// request limits described by cfg
func NewPipelineFromConfig(cfg *model.Config, index *knowledge.Index, logger zerolog.Logger) (*Pipeline, error) {
	engine, err := rules.NewEngineFromConfig(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("rule engine: %w", err)
	}

	corrector, err := llm.NewCorrectorFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("generative corrector: %w", err)
	}

	return NewPipeline(index,
		WithRules(engine),
		WithCorrector(corrector),
		WithEngineConfig(cfg.Engine),
		WithWorkers(cfg.Concurrency.Workers),
		WithLogger(logger),
	), nil
}

// Rules returns the fallback rule engine
func (p *Pipeline) Rules() *rules.Engine {
	return p.rules
}

// Provider names the generative backend, or "rules" when none is configured
func (p *Pipeline) Provider() string {
	if !p.corrector.Enabled() {
		return ProviderRules
	}
	return p.corrector.Name()
}

// Available reports whether the generative backend answers; requests still
// succeed through the rule engine when it does not
func (p *Pipeline) Available(ctx context.Context) bool {
	return p.corrector.Available(ctx)
}

// Correct runs one request through the state machine. The only error it
// returns is *model.InvalidInputError; every other failure is absorbed by
// the rule engine fallback and reported through Degraded.
func (p *Pipeline) Correct(ctx context.Context, req Request) (*model.CorrectionResult, error) {
	start := time.Now()
	id := uuid.NewString()
	log := p.logger.With().Str("request_id", id).Logger()

	p.transition(log, id, StateReceived)
	if err := validateText(req.Text, p.engine.MaxInputBytes); err != nil {
		p.transition(log, id, StateRejected)
		log.Info().Err(err).Msg("correction rejected")
		return nil, err
	}

	p.transition(log, id, StateRanking)
	sources := p.ranker.Rank(model.ParseReport(req.Text), p.topK(req.TopK))
	if p.ranker.CorpusSize() == 0 {
		log.Debug().Err(model.ErrRankingDegraded).Msg("continuing without sources")
	}

	p.transition(log, id, StateCorrecting)
	result := &model.CorrectionResult{
		ID:           id,
		OriginalText: req.Text,
	}

	var (
		hint         *float64
		rulesApplied bool
	)
	resp, err := p.generate(ctx, req, sources)
	if err != nil {
		log.Warn().Err(err).Msg("generative correction failed, using rule engine")
		p.transition(log, id, StateFallbackCorrecting)

		var trace rules.Trace
		result.CorrectedText, trace = p.rules.ApplyTrace(req.Text)
		result.Degraded = true
		result.Provider = ProviderRules
		rulesApplied = trace.Applied()
		log.Debug().Strs("rules", trace.Fired).Msg("rule engine applied")
	} else {
		result.CorrectedText = resp.CorrectedText
		result.Provider = p.corrector.Name()
		result.Model = resp.Model
		hint = resp.Confidence
		markCited(sources, resp.SourceIDs)
	}
	result.Sources = sources

	p.transition(log, id, StateClassifying)
	result.Corrections = p.classifier.Classify(req.Text, result.CorrectedText)
	result.Counts = classify.Count(result.Corrections)

	p.transition(log, id, StateScoring)
	result.Confidence = p.scorer.Calculate(score.Input{
		Sources:      sources,
		Corrections:  result.Corrections,
		Degraded:     result.Degraded,
		Hint:         hint,
		RulesApplied: rulesApplied,
	}).Confidence

	result.Timestamp = p.now().UTC()
	p.transition(log, id, StateCompleted)

	log.Info().
		Bool("degraded", result.Degraded).
		Float64("confidence", result.Confidence).
		Int("sources", len(result.Sources)).
		Int("corrections", len(result.Corrections)).
		Dur("latency", time.Since(start)).
		Msg("correction completed")

	return result, nil
}

// CorrectText corrects text with default request options
func (p *Pipeline) CorrectText(ctx context.Context, text string) (*model.CorrectionResult, error) {
	return p.Correct(ctx, Request{Text: text})
}

// CorrectAll corrects many reports through the worker pool. Results are
// returned in input order; invalid inputs carry their error.
func (p *Pipeline) CorrectAll(ctx context.Context, inputs []worker.Input) []*worker.CorrectResult {
	return worker.NewBatchProcessor(p, p.workers).Process(ctx, inputs)
}

// CorrectFiles corrects the report stored in each path
func (p *Pipeline) CorrectFiles(ctx context.Context, paths []string) []*worker.CorrectResult {
	return worker.NewBatchProcessor(p, p.workers).ProcessFiles(ctx, paths)
}

// generate calls the generative corrector under the request timeout.
// Partial output never escapes: on any error the response is discarded.
func (p *Pipeline) generate(ctx context.Context, req Request, sources []model.RankedSource) (*llm.CorrectResponse, error) {
	if !p.corrector.Enabled() {
		return nil, fmt.Errorf("%w: no provider configured", model.ErrGenerativeUnavailable)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.engine.Timeout
	}

	resp, err := p.corrector.Correct(ctx, req.Text, sources, timeout)
	if err != nil {
		if !errors.Is(err, model.ErrGenerativeUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrGenerativeUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

func (p *Pipeline) topK(requested int) int {
	k := requested
	if k <= 0 {
		k = p.engine.TopK
	}
	if p.engine.MaxTopK > 0 && k > p.engine.MaxTopK {
		k = p.engine.MaxTopK
	}
	return k
}

func (p *Pipeline) transition(log zerolog.Logger, id string, state State) {
	log.Debug().Str("state", string(state)).Msg("state transition")
	if p.hook != nil {
		p.hook(id, state)
	}
}

// markCited flags the sources the generative corrector attributed
func markCited(sources []model.RankedSource, cited []string) {
	set := make(map[string]bool, len(cited))
	for _, id := range cited {
		set[id] = true
	}
	for i := range sources {
		sources[i].Cited = set[sources[i].SourceID]
	}
}
