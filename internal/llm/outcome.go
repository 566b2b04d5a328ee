// Package llm executes generation requests against a generative-text backend
// through a pool of rate-limited credentials, with model fallback, bounded
// time, and automatic retry on recoverable failure classes.
package llm

import (
	"errors"
	"fmt"
	"time"
)

// OutcomeKind classifies the result of one backend attempt. It drives both
// the retry loop and credential pool state transitions.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeRateLimited      OutcomeKind = "rate_limited"
	OutcomeTimeout          OutcomeKind = "timeout"
	OutcomeModelUnavailable OutcomeKind = "model_unavailable"
	OutcomePoolExhausted    OutcomeKind = "pool_exhausted"
	OutcomeOther            OutcomeKind = "other"
)

// RateLimitError indicates the backend rejected the credential for quota
// reasons. RetryAfter is zero when the API gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ModelUnavailableError indicates the backend reports an unknown or retired
// model. Never retried on the same model; recoverable only via model fallback.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s not available: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// TimeoutError indicates the backend call exceeded the hard per-call timeout.
// The credential is treated as merely slow, not exhausted.
type TimeoutError struct {
	Model   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call to model %s timed out after %s", e.Model, e.Elapsed)
}

// PoolExhaustedError indicates every credential is rate limited beyond an
// acceptable wait and the caller should fail fast.
type PoolExhaustedError struct {
	Summary string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("all credentials rate limited: %s", e.Summary)
}

// ExhaustedError is the terminal failure after all models and attempts are
// spent. It preserves the last classified cause.
type ExhaustedError struct {
	Models   []string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models exhausted after %d attempts (models: %v): %v", e.Attempts, e.Models, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Classify maps an error to its outcome kind
func Classify(err error) OutcomeKind {
	if err == nil {
		return OutcomeSuccess
	}

	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		return OutcomeRateLimited
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return OutcomeTimeout
	}
	var unavailable *ModelUnavailableError
	if errors.As(err, &unavailable) {
		return OutcomeModelUnavailable
	}
	var exhausted *PoolExhaustedError
	if errors.As(err, &exhausted) {
		return OutcomePoolExhausted
	}
	return OutcomeOther
}
