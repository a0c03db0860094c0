// Package upstream fetches raw market data snapshots from Korean finance
// data sources, enforcing per-host rate limiting and retry with backoff.
package upstream

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/rs/zerolog"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// Snapshot bundles everything a single collection pass can retrieve for one
// ticker in one round trip against the upstream site.
type Snapshot struct {
	Bar          *domain.DailyBar
	Flow         *domain.TradingFlow
	Intraday     *domain.IntradayTick
	News         []domain.NewsItem
	StockFund    *domain.StockFundamentals
	EtfFund      *domain.EtfFundamentals
	EtfHoldings  []domain.EtfHolding
}

// Client is the interface the Collector depends on, letting tests
// substitute FixtureClient for the real HTTP-backed implementation.
type Client interface {
	FetchDaily(ctx context.Context, tickerCode string, date string) (*Snapshot, error)
	FetchIntraday(ctx context.Context, tickerCode string) (*domain.IntradayTick, error)
	FetchNews(ctx context.Context, tickerCode string, since time.Time) ([]domain.NewsItem, error)
	FetchFundamentals(ctx context.Context, tickerCode string, isETF bool) (*Snapshot, error)
}

// Options configures the HTTP client's behavior.
type Options struct {
	BaseURL             string
	RequestsPerSecond   float64
	MaxRetries          int
	RetryBaseDelay      time.Duration
	Timeout             time.Duration
	UserAgents          []string
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15",
}

// HTTPClient is the production upstream client: it issues rate-limited,
// retried HTTP requests against a configurable base URL and parses the
// market-data pages it gets back.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiters   *hostLimiters
	maxRetries int
	baseDelay  time.Duration
	userAgents []string
	uaIndex    int
	log        zerolog.Logger
}

// NewHTTPClient creates the production Client.
func NewHTTPClient(opts Options, log zerolog.Logger) *HTTPClient {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = defaultUserAgents
	}

	return &HTTPClient{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiters:   newHostLimiters(rate.Limit(opts.RequestsPerSecond)),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryBaseDelay,
		userAgents: opts.UserAgents,
		log:        log.With().Str("component", "upstream").Logger(),
	}
}

// do issues a rate-limited, retried GET request against reqURL, returning
// the response body on a 2xx. Non-429 4xx responses are treated as
// permanent failures; 429 and 5xx responses, along with transport errors,
// are retried with exponential backoff.
func (c *HTTPClient) do(ctx context.Context, reqURL string) ([]byte, error) {
	parsed, err := url.Parse(reqURL)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("invalid upstream URL: %w", err))
	}

	limiter := c.limiters.forHost(parsed.Host)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, apperr.Internal(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		req.Header.Set("User-Agent", c.nextUserAgent())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.sleepBackoff(ctx, attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, apperr.UpstreamUnavailable("read_failed", readErr)
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
			c.sleepBackoff(ctx, attempt)
			continue
		default:
			return nil, apperr.UpstreamUnavailable("permanent_http_error", fmt.Errorf("status %d", resp.StatusCode))
		}
	}

	return nil, apperr.UpstreamUnavailable("retries_exhausted", lastErr)
}

func (c *HTTPClient) sleepBackoff(ctx context.Context, attempt int) {
	wait := c.baseDelay * time.Duration(1<<uint(attempt))
	jitterRange := float64(wait) * 0.25
	wait += time.Duration(jitterRange*2*rand.Float64() - jitterRange)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func (c *HTTPClient) nextUserAgent() string {
	ua := c.userAgents[c.uaIndex%len(c.userAgents)]
	c.uaIndex++
	return ua
}
