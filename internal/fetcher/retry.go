package fetcher

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxAttempts   = 2
	defaultRetryFallback = 5 * time.Second
	maxRetryAfter        = 2 * time.Minute
)

// RetryPolicy decides how throttled responses (429/503) are retried.
// Every other status is returned to the caller untouched.
type RetryPolicy struct {
	// MaxAttempts counts the first request; 2 means "retry exactly once".
	MaxAttempts int
	// Fallback is the wait used when the response carries no usable Retry-After.
	Fallback time.Duration
	// Backoff overrides the wait computation. attempt starts at 1.
	Backoff func(attempt int, header http.Header) time.Duration
}

// DefaultRetryPolicy retries a throttled request once, honoring Retry-After.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		Fallback:    defaultRetryFallback,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Fallback <= 0 {
		p.Fallback = defaultRetryFallback
	}
	return p
}

// Retryable reports whether status is a throttling response worth retrying.
func (p RetryPolicy) Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// ShouldRetry reports whether another attempt is allowed after attempt.
func (p RetryPolicy) ShouldRetry(status, attempt int) bool {
	return p.Retryable(status) && attempt < p.MaxAttempts
}

// Wait returns how long to pause before the next attempt.
func (p RetryPolicy) Wait(attempt int, header http.Header, now time.Time) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt, header)
	}
	if d, ok := parseRetryAfter(header.Get("Retry-After"), now); ok {
		return d
	}
	return p.Fallback
}

// parseRetryAfter accepts delta-seconds or an HTTP-date.
func parseRetryAfter(raw string, now time.Time) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, false
		}
		return clampRetry(time.Duration(secs) * time.Second), true
	}
	if at, err := http.ParseTime(raw); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return clampRetry(d), true
	}
	return 0, false
}

func clampRetry(d time.Duration) time.Duration {
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
