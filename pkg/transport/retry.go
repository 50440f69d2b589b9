package transport

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for throttle retry operations.
var (
	nvdThrottleRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nvd_throttle_retries_total",
		Help: "Total transparent retries of throttling-class responses",
	})

	nvdThrottleBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nvd_throttle_backoff_seconds",
		Help:    "Backoff duration before throttle retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	nvdRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nvd_retry_exhausted_total",
		Help: "Total requests whose throttle retries were exhausted",
	})
)

// isThrottled reports whether a status code indicates throttling that
// the transport retries transparently. Other non-2xx codes are handed
// to the caller unchanged.
func isThrottled(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable
}

// retryThrottled executes the request, retrying throttling-class
// responses with jittered exponential backoff up to MaxRetries times.
// The caller never observes a retried response; when retries are
// exhausted the last throttled response is returned as-is.
func (c *RateLimitedClient) retryThrottled(req *http.Request) (*Response, error) {
	ctx := req.Context()
	backoff := c.config.InitialBackoff

	var resp *Response
	var err error

	for retries := 0; ; retries++ {
		resp, err = c.attempt(req)
		if err != nil {
			return nil, err
		}
		if !isThrottled(resp.StatusCode) {
			if retries > 0 {
				c.logger.Info().
					Int("retries", retries).
					Int("status", resp.StatusCode).
					Msg("Request succeeded after throttle retry")
			}
			return resp, nil
		}

		if retries >= c.config.MaxRetries {
			break
		}

		nvdThrottleRetriesTotal.Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		nvdThrottleBackoffSeconds.Observe(jitter.Seconds())

		c.logger.Debug().
			Int("status", resp.StatusCode).
			Int("attempt", retries+1).
			Dur("backoff", jitter).
			Msg("Throttled, retrying after backoff")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stop:
			return nil, ErrClientClosed
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * 2)
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}

	nvdRetryExhaustedTotal.Inc()
	c.logger.Warn().
		Int("status", resp.StatusCode).
		Int("max_retries", c.config.MaxRetries).
		Msg("Throttle retries exhausted")

	return resp, nil
}
