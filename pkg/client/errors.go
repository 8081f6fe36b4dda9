package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrEmptyPayload is returned when a successful response has no entry for
	// the requested id. It is treated as a failed fetch.
	ErrEmptyPayload = errors.New("upstream payload has no entry for id")

	// ErrRateLimited is returned when the shared credit budget is exhausted or
	// upstream answered 429.
	ErrRateLimited = errors.New("upstream rate limited")
)

// UpstreamError represents a failed upstream call with additional context.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors should NOT be retried (wastes credits)
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		// 429 sets a shared block until Retry-After; callers fall back instead
		return false
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
