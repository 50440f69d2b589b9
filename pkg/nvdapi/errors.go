package nvdapi

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when the client is used after Close.
var ErrClosed = errors.New("nvd client is closed")

// ErrorKind classifies fatal API errors so callers can branch without
// string inspection.
type ErrorKind string

const (
	// KindRequest indicates the request could not be constructed
	// (e.g. a malformed endpoint).
	KindRequest ErrorKind = "request"

	// KindTransport indicates the transport failed to execute the request.
	KindTransport ErrorKind = "transport"

	// KindCanceled indicates the blocking wait was cancelled or timed out.
	KindCanceled ErrorKind = "canceled"

	// KindDecode indicates the response body could not be decoded.
	KindDecode ErrorKind = "decode"
)

// APIError is a fatal, unrecoverable error from the fetch engine.
// HTTP-level failures (non-2xx responses) are never APIErrors; they
// are surfaced through LastStatusCode and recovered via ResetLastCall.
type APIError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("nvd api %s error: %v", e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}
