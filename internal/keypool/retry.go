package keypool

import (
	"math"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
)

// RetryPolicy is the immutable exponential backoff configuration used when
// no alternative credential is available.
type RetryPolicy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// NewRetryPolicy builds a RetryPolicy from validated configuration
func NewRetryPolicy(cfg common.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxRetries:      cfg.MaxRetries,
		BaseDelay:       common.Duration(cfg.BaseDelay),
		MaxDelay:        common.Duration(cfg.MaxDelay),
		ExponentialBase: cfg.ExponentialBase,
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Minute
	}
	if p.ExponentialBase < 1 {
		p.ExponentialBase = 2
	}
	return p
}

// Delay returns the backoff for a given attempt number (0-based),
// min(baseDelay * exponentialBase^attempt, maxDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt)))
	if delay > p.MaxDelay || delay <= 0 {
		return p.MaxDelay
	}
	return delay
}
