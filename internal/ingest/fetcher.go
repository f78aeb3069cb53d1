// Package ingest imports knowledge sources from guideline web pages:
// robots.txt aware fetching, per-host throttling and text extraction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/rectify/internal/util"
)

const (
	maxFetchAttempts = 3
	fetchBackoff     = 500 * time.Millisecond
	maxRetryAfter    = 30 * time.Second
	maxRedirects     = 3
)

// ErrTransport marks connection-level failures (DNS, refused, reset, timeout)
var ErrTransport = errors.New("transport error")

// StatusError is a non-2xx answer from a guideline host
type StatusError struct {
	Code       int
	Status     string
	RetryAfter time.Duration // From the Retry-After header, 0 if absent
}

func (e *StatusError) Error() string {
	return "unexpected status " + e.Status
}

// Temporary reports whether asking again later may succeed
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// sleepCtx waits for d or until ctx is done; replaced in tests
var sleepCtx = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetcher downloads guideline pages
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a fetcher. Bodies are cut at maxBytes (<= 0 means no cap).
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, httpProxy, httpsProxy, noProxy string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: util.NewProxyFunc(httpProxy, httpsProxy, noProxy)},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// FetchResult is one downloaded page
type FetchResult struct {
	HTML        string
	FinalURL    string // After redirects
	ContentType string
	Truncated   bool // Body was longer than the byte cap
}

// Fetch downloads rawURL once
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Status:     resp.Status,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	result := &FetchResult{
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		data = data[:f.maxBytes]
		result.Truncated = true
	}
	result.HTML = string(data)
	return result, nil
}

// FetchWithRetry retries 429, 5xx and transport failures with linear
// backoff, waiting longer when the host sends Retry-After
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err

		wait, retry := retryDelay(err, attempt)
		if !retry || attempt == maxFetchAttempts {
			break
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// retryDelay decides whether err is worth another attempt and how long to wait
func retryDelay(err error, attempt int) (time.Duration, bool) {
	backoff := time.Duration(attempt) * fetchBackoff

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		if !statusErr.Temporary() {
			return 0, false
		}
		if statusErr.RetryAfter > backoff {
			return min(statusErr.RetryAfter, maxRetryAfter), true
		}
		return backoff, true
	case errors.Is(err, ErrTransport):
		return backoff, true
	default:
		return 0, false
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// titleFromURL turns the last path segment into a title:
// ".../pleural_effusion.html" becomes "pleural effusion"
func titleFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	last := path[strings.LastIndex(path, "/")+1:]
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}
	return strings.Join(strings.FieldsFunc(last, func(r rune) bool { return r == '-' || r == '_' }), " ")
}
