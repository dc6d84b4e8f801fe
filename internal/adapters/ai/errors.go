package ai

import (
	"fmt"
	"time"

	"taskpilot/pkg/errors"
)

// RateLimitError indicates the provider rejected the request due to rate limiting.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

// Error implements error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for provider %s (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limit exceeded for provider %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is matches the rate-limit sentinel so callers can use errors.Is.
func (e *RateLimitError) Is(target error) bool {
	return target == errors.ErrRateLimited
}

// TimeoutError indicates the provider did not respond within the deadline.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to provider %s timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func (e *TimeoutError) Is(target error) bool {
	return target == errors.ErrLLMTimeout
}

// InvalidResponseError indicates the provider returned a payload that could not be parsed.
type InvalidResponseError struct {
	Provider string
	Raw      string
	Err      error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response from provider %s: %v", e.Provider, e.Err)
}

func (e *InvalidResponseError) Unwrap() error {
	return e.Err
}

func (e *InvalidResponseError) Is(target error) bool {
	return target == errors.ErrInvalidResponse
}
