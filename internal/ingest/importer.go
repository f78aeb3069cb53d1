package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/util"
	"github.com/ppiankov/rectify/internal/worker"
)

var (
	// ErrDisallowed means robots.txt forbids fetching the page
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrLowAuthority means the publisher ranks below the configured minimum tier
	ErrLowAuthority = errors.New("publisher below minimum authority")
)

// ImportResult is the outcome for one URL
type ImportResult struct {
	URL    string
	Source *model.KnowledgeSource
	Err    error
}

// Importer turns guideline pages into knowledge sources
type Importer struct {
	fetcher     *Fetcher
	robots      *RobotsChecker
	limiter     *worker.Limiter
	authority   *AuthorityClassifier
	minTier     model.AuthorityTier
	concurrency int
	logger      zerolog.Logger
}

// NewImporter creates an importer from outbound HTTP settings
func NewImporter(cfg model.HTTPConfig, concurrency int, logger zerolog.Logger) *Importer {
	if concurrency <= 0 {
		concurrency = 1
	}
	robotsClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		},
	}

	minTier, err := model.ParseAuthorityTier(cfg.Authority.MinTier)
	if err != nil {
		minTier = model.TierTertiary
	}

	return &Importer{
		fetcher:     NewFetcher(cfg.Timeout, cfg.UserAgent, cfg.MaxBodyBytes, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		robots:      NewRobotsChecker(cfg.UserAgent, robotsClient),
		limiter:     worker.NewLimiter(cfg.HostRate, 1),
		authority:   NewAuthorityClassifier(cfg.Authority),
		minTier:     minTier,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Import fetches every URL concurrently. One failing URL does not stop the
// others; results are returned in input order.
func (im *Importer) Import(ctx context.Context, urls []string) []ImportResult {
	results := make([]ImportResult, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			source, err := im.importOne(ctx, u)
			results[i] = ImportResult{URL: u, Err: err}
			if err != nil {
				im.logger.Warn().Err(err).Str("url", u).Msg("import failed")
				return nil
			}
			results[i].Source = &source
			im.logger.Info().Str("url", u).Str("id", source.ID).Msg("imported source")
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (im *Importer) importOne(ctx context.Context, rawURL string) (model.KnowledgeSource, error) {
	host, err := worker.HostKey(rawURL)
	if err != nil {
		return model.KnowledgeSource{}, err
	}

	if tier := im.authority.Classify(rawURL); tier > im.minTier {
		return model.KnowledgeSource{}, fmt.Errorf("%w: %s is %s, minimum is %s", ErrLowAuthority, host, tier, im.minTier)
	}

	allowed, crawlDelay, err := im.robots.CanFetch(ctx, rawURL)
	if err != nil {
		return model.KnowledgeSource{}, err
	}
	if !allowed {
		return model.KnowledgeSource{}, ErrDisallowed
	}

	if err := im.limiter.WaitWithDelay(ctx, host, crawlDelay); err != nil {
		return model.KnowledgeSource{}, fmt.Errorf("rate limit: %w", err)
	}

	fetched, err := im.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return model.KnowledgeSource{}, err
	}

	if fetched.Truncated {
		im.logger.Warn().Str("url", rawURL).Int64("max_bytes", im.fetcher.maxBytes).Msg("page truncated at byte cap")
	}

	page, err := ExtractPage(fetched.HTML, fetched.ContentType)
	if err != nil {
		return model.KnowledgeSource{}, err
	}
	if page.Text == "" {
		return model.KnowledgeSource{}, fmt.Errorf("no readable text at %s", fetched.FinalURL)
	}

	return SourceFromPage(rawURL, page), nil
}

// SourceFromPage builds a knowledge source for a page fetched from rawURL
func SourceFromPage(rawURL string, page Page) model.KnowledgeSource {
	title := page.Title
	if title == "" {
		title = titleFromURL(rawURL)
	}
	excerpt := page.Description
	if excerpt == "" {
		excerpt = page.Text
	}

	return model.KnowledgeSource{
		ID:       SourceID(rawURL),
		Title:    title,
		Excerpt:  model.MakeExcerpt(excerpt, model.MaxExcerptRunes),
		FullText: page.Text,
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// SourceID derives a stable id from a URL: the host slug plus a short hash
// of the normalized URL. Fragments, a trailing slash and a "www." prefix do
// not change the id.
func SourceID(rawURL string) string {
	normalized := strings.TrimSpace(rawURL)
	host := normalized

	if parsed, err := url.Parse(normalized); err == nil && parsed.Host != "" {
		parsed.Fragment = ""
		parsed.Scheme = strings.ToLower(parsed.Scheme)
		parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = ""
		normalized = parsed.String()
		host = parsed.Hostname()
	}

	sum := sha256.Sum256([]byte(normalized))
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(host), "-"), "-")
	if slug == "" {
		slug = "web"
	}
	return slug + "-" + hex.EncodeToString(sum[:])[:10]
}
