package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"oracle/internal/observability"
	"oracle/internal/tavily"
)

// defaultBlacklist lists content farms and social platforms whose results
// dilute research quality. Matching covers the domain and its subdomains.
var defaultBlacklist = []string{
	"medium.com",
	"towardsdatascience.com",
	"linkedin.com",
	"pinterest.com",
	"facebook.com",
	"instagram.com",
}

const rateLimitRetryAfter = 60 * time.Second

// ErrorKind classifies a search failure for the retry policy.
type ErrorKind string

const (
	KindRetryable ErrorKind = "retryable"
	KindFatal     ErrorKind = "fatal"
)

// SearchError wraps a provider failure with its retry classification.
// RetryAfter is a provider hint; zero means use the backoff schedule.
type SearchError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %s error: %v", e.Kind, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// SearchProvider is the upstream search API surface the gateway wraps.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int, includeDomains []string) ([]tavily.Result, error)
}

type GatewayConfig struct {
	MaxResults int
	MaxRetries int
	RetryDelay time.Duration
	Blacklist  []string
}

// Gateway hardens the raw search provider: it filters blacklisted domains,
// validates relevance scores, and retries transient failures with backoff.
type Gateway struct {
	provider  SearchProvider
	blacklist []string

	maxResults int
	maxRetries int
	retryDelay time.Duration
}

func NewGateway(provider SearchProvider, cfg GatewayConfig) *Gateway {
	blacklist := cfg.Blacklist
	if blacklist == nil {
		blacklist = defaultBlacklist
	}
	return &Gateway{
		provider:   provider,
		blacklist:  blacklist,
		maxResults: clampInt(cfg.MaxResults, 1, 20, 5),
		maxRetries: clampInt(cfg.MaxRetries, 1, 10, 3),
		retryDelay: cfg.RetryDelay,
	}
}

// Search runs one sub-query through the provider with retries. Fatal errors
// abort immediately; retryable ones are retried up to the attempt budget,
// honoring provider rate-limit hints over the exponential schedule.
func (g *Gateway) Search(ctx context.Context, query string, includeDomains []string) ([]SearchResult, error) {
	var lastErr *SearchError

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		results, err := g.searchOnce(ctx, query, includeDomains)
		if err == nil {
			observability.RecordSearchCall("success")
			return results, nil
		}

		searchErr := classifySearchError(err)
		if searchErr.Kind == KindFatal {
			observability.RecordSearchCall("fatal_error")
			log.Printf("search failed: attempt=%d kind=%s err=%v", attempt, searchErr.Kind, searchErr.Err)
			return nil, searchErr
		}

		observability.RecordSearchCall("retryable_error")
		lastErr = searchErr
		if attempt == g.maxRetries {
			break
		}

		delay := searchErr.RetryAfter
		if delay <= 0 {
			delay = g.retryDelay << (attempt - 1)
		}
		log.Printf("search retrying: attempt=%d delay_ms=%d err=%v", attempt, delay.Milliseconds(), searchErr.Err)
		observability.RecordSearchRetry()
		if err := waitForRetry(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &SearchError{
		Kind: KindRetryable,
		Err:  fmt.Errorf("search failed after %d attempts: %w", g.maxRetries, lastErr.Err),
	}
}

func (g *Gateway) searchOnce(ctx context.Context, query string, includeDomains []string) ([]SearchResult, error) {
	raw, err := g.provider.Search(ctx, query, g.maxResults, includeDomains)
	if err != nil {
		return nil, err
	}

	filtered := 0
	results := make([]SearchResult, 0, len(raw))
	for _, item := range raw {
		if g.blacklisted(item.URL) {
			filtered++
			continue
		}
		result, err := NewSearchResult(item.Title, item.URL, item.Content, item.Score)
		if err != nil {
			return nil, fmt.Errorf("invalid provider result: %w", err)
		}
		results = append(results, result)
	}

	if filtered > 0 {
		log.Printf("search filtered blacklisted results: query_chars=%d dropped=%d kept=%d", len(query), filtered, len(results))
		observability.RecordFilteredResults(filtered)
	}
	return results, nil
}

func (g *Gateway) blacklisted(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, blocked := range g.blacklist {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// classifySearchError maps provider failures onto the retry policy: missing
// or rejected credentials are fatal, rate limits carry the provider's
// cooldown hint, everything else is presumed transient.
func classifySearchError(err error) *SearchError {
	var searchErr *SearchError
	if errors.As(err, &searchErr) {
		return searchErr
	}

	if errors.Is(err, tavily.ErrMissingAPIKey) {
		return &SearchError{Kind: KindFatal, Err: err}
	}

	var apiErr tavily.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &SearchError{Kind: KindFatal, Err: err}
		case 429:
			return &SearchError{Kind: KindRetryable, RetryAfter: rateLimitRetryAfter, Err: err}
		}
	}

	return &SearchError{Kind: KindRetryable, Err: err}
}

func waitForRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampInt(value, min, max, fallback int) int {
	if value == 0 {
		value = fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
