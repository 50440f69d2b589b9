// Package nvdapi provides the paginated fetch engine for the NVD CVE
// API 2.0. A Client is a single-consumer, pull-based iterator over
// result pages: it drives asynchronous requests through a rate-limited
// transport, prefetches one page ahead, and captures HTTP-level
// failures as resumable state.
package nvdapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulnfeed/nvd-cve-client/pkg/transport"
)

// Prometheus metrics for fetch engine operations.
var (
	nvdPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nvd_pages_total",
		Help: "Total pages processed by result (ok, rejected)",
	}, []string{"result"})

	nvdItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nvd_items_total",
		Help: "Total vulnerability items yielded",
	})
)

const (
	// DefaultEndpoint is the production NVD CVE API 2.0 endpoint.
	DefaultEndpoint = "https://services.nvd.nist.gov/rest/json/cves/2.0"

	// apiKeyHeader carries the optional NVD API key.
	apiKeyHeader = "apiKey"

	// DefaultResultsPerPage is the page size the NVD API recommends.
	DefaultResultsPerPage = 2000

	// DefaultDelay is the minimum inter-request delay without an API key.
	DefaultDelay = 6500 * time.Millisecond

	// DefaultDelayWithKey is the minimum inter-request delay with an
	// API key (keyed access has a higher rate limit).
	DefaultDelayWithKey = 600 * time.Millisecond
)

// Config holds the fetch engine configuration.
type Config struct {
	// APIKey is the optional NVD API key. Absence is legal and yields
	// a more conservative rate limit.
	APIKey string

	// Endpoint overrides the NVD CVE API endpoint (default DefaultEndpoint).
	Endpoint string

	// ResultsPerPage is the page size (default 2000, max 2000).
	ResultsPerPage int

	// Delay is the minimum delay between requests. Zero selects
	// DefaultDelay or DefaultDelayWithKey based on APIKey.
	Delay time.Duration

	// Filters are applied to every page request, in order.
	Filters []Filter

	// Limiter substitutes the transport (for testing). When nil a
	// RateLimitedClient is created and owned by the engine.
	Limiter transport.RequestLimiter
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		ResultsPerPage: DefaultResultsPerPage,
	}
}

// Client iterates over pages of the NVD CVE API:
//
//	api, err := nvdapi.New(nvdapi.DefaultConfig())
//	defer api.Close()
//	for api.HasMore() {
//		items, err := api.Next(ctx)
//		...
//	}
//
// A Client is owned by a single consumer goroutine and must not be
// shared. At most one request is in flight at any time.
type Client struct {
	endpoint       string
	apiKey         string
	filters        []Filter
	resultsPerPage int

	index          int
	totalResults   int
	lastModified   int64
	lastStatusCode int
	pending        *transport.Handle

	limiter     transport.RequestLimiter
	ownsLimiter bool
	logger      zerolog.Logger
	closed      bool
}

// New creates a new NVD CVE API client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ResultsPerPage == 0 {
		cfg.ResultsPerPage = DefaultResultsPerPage
	}
	if cfg.ResultsPerPage < 1 || cfg.ResultsPerPage > DefaultResultsPerPage {
		return nil, fmt.Errorf("results_per_page must be between 1 and %d (got %d)",
			DefaultResultsPerPage, cfg.ResultsPerPage)
	}

	if cfg.Delay <= 0 {
		if cfg.APIKey == "" {
			cfg.Delay = DefaultDelay
		} else {
			cfg.Delay = DefaultDelayWithKey
		}
	}

	logger := log.With().Str("component", "nvd-client").Logger()

	limiter := cfg.Limiter
	ownsLimiter := false
	if limiter == nil {
		tcfg := transport.DefaultConfig()
		tcfg.Delay = cfg.Delay
		if cfg.APIKey != "" {
			// Keyed access tolerates more throttle retries before
			// surfacing the status to the caller.
			tcfg.MaxRetries = 50
		}
		limiter = transport.New(tcfg)
		ownsLimiter = true
	} else {
		limiter.ConfigureDelay(cfg.Delay)
	}

	return &Client{
		endpoint:       cfg.Endpoint,
		apiKey:         cfg.APIKey,
		filters:        cfg.Filters,
		resultsPerPage: cfg.ResultsPerPage,
		totalResults:   -1,
		lastStatusCode: http.StatusOK,
		limiter:        limiter,
		ownsLimiter:    ownsLimiter,
		logger:         logger,
	}, nil
}

// HasMore reports whether another page may be available. It is false
// once all results have been consumed, after a non-2xx response
// (until ResetLastCall), and after Close. Pure query, no side effects.
func (c *Client) HasMore() bool {
	if c.closed || c.lastStatusCode != http.StatusOK {
		return false
	}
	if c.totalResults < 0 || c.pending != nil {
		return true
	}
	return c.index < c.totalResults
}

// Next returns the next page of vulnerability items, blocking until
// the in-flight request resolves. On a 2xx response it decodes the
// page and prefetches the following one before returning. On a non-2xx
// response it records the status (see LastStatusCode) and returns
// (nil, nil); every further call returns (nil, nil) without dispatching
// until ResetLastCall. Fatal conditions return an *APIError.
func (c *Client) Next(ctx context.Context) ([]DefCveItem, error) {
	if c.closed {
		return nil, ErrClosed
	}

	// A stalled iterator never dispatches; doing so would skip the
	// failed page, since the index already points past it.
	if c.lastStatusCode != http.StatusOK {
		return nil, nil
	}

	if c.pending == nil {
		if err := c.dispatch(); err != nil {
			return nil, err
		}
	}

	handle := c.pending
	c.pending = nil

	resp, err := handle.Await(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &APIError{Kind: KindCanceled, Err: err}
		}
		return nil, &APIError{Kind: KindTransport, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		c.lastStatusCode = resp.StatusCode
		nvdPagesTotal.WithLabelValues("rejected").Inc()
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Int("start_index", c.index-c.resultsPerPage).
			Msg("Page request rejected")
		return nil, nil
	}

	var page CveResponse
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, &APIError{Kind: KindDecode, Err: err}
	}
	c.totalResults = page.TotalResults

	epoch, err := page.TimestampEpoch()
	if err != nil {
		return nil, &APIError{Kind: KindDecode, Err: err}
	}
	c.lastModified = epoch

	// Prefetch the next page before handing this one to the caller.
	if c.index < c.totalResults {
		if err := c.dispatch(); err != nil {
			return nil, err
		}
	}

	nvdPagesTotal.WithLabelValues("ok").Inc()
	nvdItemsTotal.Add(float64(len(page.Vulnerabilities)))
	c.logger.Debug().
		Int("start_index", page.StartIndex).
		Int("items", len(page.Vulnerabilities)).
		Int("total_results", c.totalResults).
		Str("content_type", resp.ContentType).
		Msg("Page decoded")

	return page.Vulnerabilities, nil
}

// ResetLastCall recovers from a non-2xx response: the status is reset
// and the index rewound by one page (floored at zero) so the next call
// to Next re-requests the page that failed. Callers apply their own
// backoff before retrying; the engine never retries HTTP-level
// failures on its own.
func (c *Client) ResetLastCall() {
	c.lastStatusCode = http.StatusOK
	c.index -= c.resultsPerPage
	if c.index < 0 {
		c.index = 0
	}
}

// LastModified returns the UTC epoch of the most recent change to the
// remote dataset, as reported by the last fetched page. Persist it to
// build an incremental LastModifiedFilter for a later session.
func (c *Client) LastModified() int64 {
	return c.lastModified
}

// LastStatusCode returns the last HTTP status code observed. 200 until
// a request is rejected.
func (c *Client) LastStatusCode() int {
	return c.lastStatusCode
}

// Close releases the transport. The client must not be used afterward:
// Next returns ErrClosed and HasMore returns false. Idempotent.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = nil
	if c.ownsLimiter {
		return c.limiter.Close()
	}
	return nil
}

// dispatch builds a request for the current index, submits it, and
// advances the index past the dispatched page. Keeping the advance at
// dispatch time means ResetLastCall's one-page rewind lands exactly on
// the start index of the request that failed.
func (c *Client) dispatch() error {
	req, err := c.newRequest()
	if err != nil {
		return err
	}
	c.pending = c.limiter.Submit(req)
	c.index += c.resultsPerPage
	return nil
}

// newRequest constructs the page request for the current iterator
// position. Filter order is preserved on the wire; valueless filters
// are emitted as bare parameter names.
func (c *Client) newRequest() (*http.Request, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, &APIError{Kind: KindRequest, Err: err}
	}

	var query strings.Builder
	for _, f := range c.filters {
		if query.Len() > 0 {
			query.WriteByte('&')
		}
		query.WriteString(url.QueryEscape(f.Name))
		if f.Value != "" {
			query.WriteByte('=')
			query.WriteString(url.QueryEscape(f.Value))
		}
	}
	if query.Len() > 0 {
		query.WriteByte('&')
	}
	fmt.Fprintf(&query, "resultsPerPage=%d&startIndex=%d", c.resultsPerPage, c.index)
	u.RawQuery = query.String()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &APIError{Kind: KindRequest, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	return req, nil
}
