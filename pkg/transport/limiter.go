// Package transport implements the rate-limited asynchronous HTTP
// transport used by the NVD fetch engine. Requests are submitted
// without blocking and resolve through a Handle; a single dispatcher
// enforces a minimum delay between successive dispatches and retries
// throttling-class responses transparently.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrClientClosed is returned by handles whose request could not be
// dispatched because the transport was closed.
var ErrClientClosed = errors.New("transport closed")

// Response is the resolved result of an asynchronous request.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Handle is the asynchronous result of a submitted request. It
// resolves exactly once.
type Handle struct {
	done chan struct{}
	resp *Response
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// resolve completes the handle. Must be called at most once.
func (h *Handle) resolve(resp *Response, err error) {
	h.resp = resp
	h.err = err
	close(h.done)
}

// Await blocks until the request resolves or ctx is done.
func (h *Handle) Await(ctx context.Context) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.resp, h.err
	}
}

// RequestLimiter is the transport contract consumed by the fetch
// engine. Callers submit at most one request without an intervening
// Await; the limiter enforces a minimum delay between dispatches.
type RequestLimiter interface {
	// Submit enqueues a request for dispatch and returns immediately.
	Submit(req *http.Request) *Handle

	// ConfigureDelay sets the minimum delay between successive dispatches.
	ConfigureDelay(d time.Duration)

	// Close releases connections. Pending handles resolve with
	// ErrClientClosed.
	Close() error
}
