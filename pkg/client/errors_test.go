package client

import (
	"errors"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should not retry",
			errorClass: ErrorClassRateLimit,
			expected:   false,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestUpstreamError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *UpstreamError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &UpstreamError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection refused"),
			},
			expected: "upstream server error (status 500): internal server error: connection refused",
		},
		{
			name: "error without wrapped error",
			err: &UpstreamError{
				StatusCode: 400,
				ErrorClass: ErrorClassClient,
				Message:    "invalid value for \"id\"",
			},
			expected: "upstream client error (status 400): invalid value for \"id\"",
		},
		{
			name: "rate limit error",
			err: &UpstreamError{
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Message:    "429 Too Many Requests",
				Err:        ErrRateLimited,
			},
			expected: "upstream rate_limit error (status 429): 429 Too Many Requests: upstream rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.Error(); result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	upstreamErr := &UpstreamError{
		StatusCode: 429,
		ErrorClass: ErrorClassRateLimit,
		Message:    "rate limited",
		Err:        ErrRateLimited,
	}

	if !errors.Is(upstreamErr, ErrRateLimited) {
		t.Error("errors.Is should see the wrapped sentinel")
	}
	if !IsRateLimited(upstreamErr) {
		t.Error("IsRateLimited() = false, want true")
	}

	var target *UpstreamError
	if !errors.As(error(upstreamErr), &target) || target.StatusCode != 429 {
		t.Errorf("errors.As did not recover the upstream error: %v", target)
	}

	if (&UpstreamError{}).Unwrap() != nil {
		t.Error("Unwrap() of bare error should be nil")
	}
}
