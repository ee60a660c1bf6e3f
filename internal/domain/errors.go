package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorClass buckets a per-source failure into the taxonomy the health
// tracking and retry layers act on.
type ErrorClass string

const (
	ErrorClassNone        ErrorClass = ""
	ErrorClassTransient   ErrorClass = "transient"
	ErrorClassAuth        ErrorClass = "authentication"
	ErrorClassStructural  ErrorClass = "structural"
	ErrorClassRateLimited ErrorClass = "rate_limited"
)

// AuthError indicates an expired or invalid credential for a source.
// The source is marked unavailable immediately and never silently retried.
type AuthError struct {
	SourceID string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for source %s: %v", e.SourceID, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RateLimitError indicates the source signalled backoff (e.g. HTTP 429).
// RetryAfter is the cooldown hint from the source, zero if none was given.
type RateLimitError struct {
	SourceID   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("source %s rate limited: %v", e.SourceID, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// StructuralError indicates an adapter could not interpret a response it
// received. Distinct from transient errors: the call reached the source
// but the shape of the answer was wrong.
type StructuralError struct {
	SourceID string
	Detail   string
	Err      error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("source %s returned unparseable response: %s", e.SourceID, e.Detail)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a structurally invalid Query before dispatch.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + e.Msg
}

// ErrCacheUnavailable is the one fatal run error: the deduplication
// cache's durable store could not be reached, so dedup correctness
// cannot be guaranteed.
var ErrCacheUnavailable = errors.New("deduplication cache store unavailable")

// ErrFingerprintUnknown reports an applied-flag operation against a
// fingerprint the cache has never seen. Unlike ErrCacheUnavailable the
// store answered; the row simply does not exist.
var ErrFingerprintUnknown = errors.New("unknown fingerprint")

// Classify maps an adapter error onto the error taxonomy.
// Parameters:
//   - err: error returned from a fetch or health check.
// Returns:
//   - ErrorClass: taxonomy bucket; ErrorClassNone when err is nil.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return ErrorClassAuth
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return ErrorClassRateLimited
	}

	var structErr *StructuralError
	if errors.As(err, &structErr) {
		return ErrorClassStructural
	}

	// Timeouts, cancellations and everything unclassified are transient:
	// retried within the run if time remains, otherwise next run.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorClassTransient
	}

	return ErrorClassTransient
}
