package nvdapi

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name:     "transport error",
			apiError: &APIError{Kind: KindTransport, Err: errors.New("connection refused")},
			expected: "nvd api transport error: connection refused",
		},
		{
			name:     "decode error",
			apiError: &APIError{Kind: KindDecode, Err: errors.New("unexpected end of JSON input")},
			expected: "nvd api decode error: unexpected end of JSON input",
		},
		{
			name:     "request error",
			apiError: &APIError{Kind: KindRequest, Err: errors.New("missing protocol scheme")},
			expected: "nvd api request error: missing protocol scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrapped := errors.New("wrapped error")
	apiErr := &APIError{Kind: KindTransport, Err: wrapped}

	if unwrapped := apiErr.Unwrap(); unwrapped != wrapped {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, wrapped)
	}

	if !errors.Is(apiErr, wrapped) {
		t.Error("errors.Is should match the wrapped error")
	}
}

func TestAPIError_As(t *testing.T) {
	var apiErr *APIError
	err := fmt.Errorf("fetch page: %w", &APIError{Kind: KindCanceled, Err: errors.New("context deadline exceeded")})

	if !errors.As(err, &apiErr) {
		t.Fatal("errors.As should find *APIError through wrapping")
	}
	if apiErr.Kind != KindCanceled {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, KindCanceled)
	}
}
