package sync

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Error Taxonomy
// ---------------------------------------------------------------------------

var (
	// ErrValidation indicates malformed input; never retried
	ErrValidation = errors.New("sync: validation failed")
	// ErrUpstreamUnavailable indicates retries were exhausted against an upstream API
	ErrUpstreamUnavailable = errors.New("sync: upstream unavailable after retries")
	// ErrFatalAPI indicates a non-retryable upstream rejection (4xx)
	ErrFatalAPI = errors.New("sync: fatal upstream error")
	// ErrConfiguration indicates missing credentials or endpoints; fails fast
	ErrConfiguration = errors.New("sync: configuration error")
	// ErrDataIntegrity indicates an upstream success response missing an expected field
	ErrDataIntegrity = errors.New("sync: upstream response missing expected data")
)

// ---------------------------------------------------------------------------
// Platform Errors
// ---------------------------------------------------------------------------

var (
	// ErrPlatformRateLimited indicates the upstream throttled the request (retryable)
	ErrPlatformRateLimited = errors.New("sync: platform rate limited")
	// ErrPlatformUnavailable indicates a transient upstream failure (retryable)
	ErrPlatformUnavailable = errors.New("sync: platform temporarily unavailable")
	// ErrPlatformRequestFailed indicates a non-retryable upstream rejection
	ErrPlatformRequestFailed = errors.New("sync: platform request failed")
	// ErrPlatformInvalidResponse indicates an unparsable upstream response
	ErrPlatformInvalidResponse = errors.New("sync: invalid platform response")
	// ErrPlatformNotFound indicates the upstream entity does not exist
	ErrPlatformNotFound = errors.New("sync: platform entity not found")
)

// RateLimitError is a retryable throttling error that may carry the
// upstream's explicit retry-after duration. It unwraps to
// ErrPlatformRateLimited so call sites classify it with errors.Is.
type RateLimitError struct {
	// RetryAfter is the upstream's requested wait; zero when not provided
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("sync: platform rate limited, retry after %s", e.RetryAfter)
	}
	return "sync: platform rate limited"
}

// Unwrap makes errors.Is(err, ErrPlatformRateLimited) hold.
func (e *RateLimitError) Unwrap() error {
	return ErrPlatformRateLimited
}

// IsRetryable reports whether an operation that failed with err may succeed
// on a later attempt. Rate limiting and transient unavailability are
// retryable; validation failures and other upstream rejections are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPlatformRateLimited) || errors.Is(err, ErrPlatformUnavailable)
}

// RetryAfterHint extracts the upstream's explicit retry-after duration from
// err, or zero when none was provided.
func RetryAfterHint(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}
