package transport

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	nvdRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nvd_requests_total",
		Help: "Total NVD API requests by HTTP status",
	}, []string{"status"})

	nvdRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nvd_request_duration_seconds",
		Help:    "NVD API request duration in seconds, including throttle retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds the rate-limited client configuration.
type Config struct {
	// Delay is the minimum delay between successive dispatches.
	Delay time.Duration

	// MaxRetries is the number of transparent retries applied to
	// throttling-class responses (429, 503) per request.
	MaxRetries int

	// InitialBackoff is the first backoff duration for throttle retries.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff for throttle retries.
	MaxBackoff time.Duration

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration for unkeyed NVD
// access (the public rate limit is 5 requests per 30 seconds).
func DefaultConfig() Config {
	return Config{
		Delay:          6500 * time.Millisecond,
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     32500 * time.Millisecond,
		Timeout:        30 * time.Second,
	}
}

type job struct {
	req    *http.Request
	handle *Handle
}

// RateLimitedClient dispatches requests sequentially with an enforced
// minimum inter-dispatch delay. It implements RequestLimiter.
type RateLimitedClient struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger

	mu           sync.Mutex
	delay        time.Duration
	lastDispatch time.Time

	queue     chan job
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a rate-limited client and starts its dispatcher.
func New(cfg Config) *RateLimitedClient {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultConfig().Delay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	c := &RateLimitedClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "nvd-transport").Logger(),
		delay:  cfg.Delay,
		// Buffer of one matches the engine's prefetch depth; Submit
		// never blocks as long as callers await between submissions.
		queue: make(chan job, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	go c.dispatch()

	return c
}

// Submit enqueues a request for dispatch. The returned handle resolves
// once the request has been executed (including transparent throttle
// retries) or the client is closed.
func (c *RateLimitedClient) Submit(req *http.Request) *Handle {
	h := newHandle()
	select {
	case <-c.stop:
		h.resolve(nil, ErrClientClosed)
		return h
	default:
	}
	select {
	case <-c.stop:
		h.resolve(nil, ErrClientClosed)
	case c.queue <- job{req: req, handle: h}:
	}
	return h
}

// ConfigureDelay sets the minimum delay between successive dispatches.
func (c *RateLimitedClient) ConfigureDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// Close stops the dispatcher and releases idle connections. Queued
// requests resolve with ErrClientClosed.
func (c *RateLimitedClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
	c.drain()
	c.httpClient.CloseIdleConnections()
	return nil
}

// dispatch serializes request execution and enforces spacing.
func (c *RateLimitedClient) dispatch() {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			c.drain()
			return
		case j := <-c.queue:
			if !c.waitTurn() {
				j.handle.resolve(nil, ErrClientClosed)
				c.drain()
				return
			}
			resp, err := c.execute(j.req)
			j.handle.resolve(resp, err)
		}
	}
}

// drain resolves any queued jobs after shutdown so awaiters do not hang.
func (c *RateLimitedClient) drain() {
	for {
		select {
		case j := <-c.queue:
			j.handle.resolve(nil, ErrClientClosed)
		default:
			return
		}
	}
}

// waitTurn blocks until the configured delay has elapsed since the
// previous dispatch. Returns false if the client is closed meanwhile.
func (c *RateLimitedClient) waitTurn() bool {
	c.mu.Lock()
	wait := c.delay - time.Since(c.lastDispatch)
	c.mu.Unlock()

	if wait > 0 {
		select {
		case <-c.stop:
			return false
		case <-time.After(wait):
		}
	}

	c.mu.Lock()
	c.lastDispatch = time.Now()
	c.mu.Unlock()
	return true
}

// execute performs the request with transparent throttle retries and
// returns the final response.
func (c *RateLimitedClient) execute(req *http.Request) (*Response, error) {
	start := time.Now()
	defer func() {
		nvdRequestDuration.Observe(time.Since(start).Seconds())
	}()

	resp, err := c.retryThrottled(req)
	if err != nil {
		return nil, err
	}

	nvdRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
	return resp, nil
}

// attempt executes a single HTTP request and reads the full body.
func (c *RateLimitedClient) attempt(req *http.Request) (*Response, error) {
	c.logger.Debug().
		Str("url", req.URL.String()).
		Msg("Dispatching request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode:  httpResp.StatusCode,
		Body:        body,
		ContentType: httpResp.Header.Get("Content-Type"),
	}, nil
}
