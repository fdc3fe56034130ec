package reliability

import (
	"context"
	"net/http"
	"time"
)

// IsRetryableHTTPStatus reports whether a later attempt against the same
// endpoint could succeed.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Backoff doubles base per attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	return d
}

// Policy bounds how often Do retries.
type Policy struct {
	// Retries is the number of attempts after the first one.
	Retries int
	Base    time.Duration
	Max     time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, fails with a non-retryable error, ctx ends,
// or the retries are used up. It returns the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= p.Retries || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		timer := time.NewTimer(Backoff(attempt, p.Base, p.Max))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
