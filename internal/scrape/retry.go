package scrape

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(err error, attempt int) time.Duration
}

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
// Rate-limited failures back off longer than plain unreachable ones.
type ExponentialRetryPolicy struct {
	maxAttempts     int
	baseDelay       time.Duration
	maxDelay        time.Duration
	rateLimitFactor float64
}

// NewExponentialRetryPolicy builds a policy with sane defaults.
func NewExponentialRetryPolicy() *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxAttempts:     3,
		baseDelay:       250 * time.Millisecond,
		maxDelay:        5 * time.Second,
		rateLimitFactor: 4,
	}
}

// MaxAttempts exposes the bound for callers tracking attempt counts.
func (p *ExponentialRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable at this attempt.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return TransientFetch(err)
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(err error, attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if errors.Is(err, ErrRateLimited) {
		delay *= p.rateLimitFactor
	}
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
