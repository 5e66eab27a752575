package api

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryStatuses are the status codes repeated when retries are on.
var DefaultRetryStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy decides whether a failed attempt is repeated and how long to
// wait before it. Requests that are not idempotent are never repeated: a
// signature answers one challenge only, and a repeated upload would store
// the record twice.
type RetryPolicy struct {
	// MaxRetries is the number of repeats after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the first repeat. It doubles each time.
	BaseDelay time.Duration
	// MaxDelay caps every wait, including one asked for by the server.
	MaxDelay time.Duration
	// Jitter is the largest fraction of the wait added at random.
	Jitter float64

	statuses map[int]bool
	random   func() float64
}

// NewRetryPolicy returns a policy repeating up to maxRetries times on the
// given statuses, or on DefaultRetryStatuses when statuses is empty.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration, statuses []int) *RetryPolicy {
	if baseDelay <= 0 {
		baseDelay = DefaultRetryDelay
	}
	if len(statuses) == 0 {
		statuses = DefaultRetryStatuses
	}
	set := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return &RetryPolicy{
		MaxRetries: max(maxRetries, 0),
		BaseDelay:  baseDelay,
		MaxDelay:   30 * time.Second,
		Jitter:     0.2,
		statuses:   set,
		random:     rand.Float64,
	}
}

// retryable reports whether the failed attempt (zero-based) is repeated.
// status is zero when no response arrived.
func (p *RetryPolicy) retryable(attempt, status int, idempotent bool) bool {
	if !idempotent || attempt >= p.MaxRetries {
		return false
	}
	return status == 0 || p.statuses[status]
}

// Delay returns the wait before repeating attempt. A positive retryAfter
// from the server replaces the computed backoff.
func (p *RetryPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, p.MaxDelay)
	}

	d := p.MaxDelay
	if attempt < 32 {
		if shifted := p.BaseDelay << attempt; shifted > 0 && shifted < p.MaxDelay {
			d = shifted
		}
	}
	if p.Jitter > 0 && p.random != nil {
		d += time.Duration(p.random() * p.Jitter * float64(d))
	}
	return min(d, p.MaxDelay)
}

// parseRetryAfter reads a Retry-After header given either in seconds or as
// an HTTP date. It returns zero when the header is absent or unusable.
func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
