package scrape

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"
)

// attemptTimeout is the hard cap per fetch attempt on the retrying path.
const attemptTimeout = 15 * time.Second

// fetchWithRetry fetches a page with exponential backoff. Only transient
// conditions are retried: timeouts, network errors, HTTP 5xx and 429.
// A non-retryable status (e.g. 404) is returned immediately; exhausting
// the retry budget returns the last error.
func (d *DSE) fetchWithRetry(ctx context.Context, pageURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		body, err := d.fetchPage(attemptCtx, pageURL)
		cancel()
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
		if attempt == d.maxRetries {
			break
		}

		// delay = baseDelay * 2^(attempt-1) + jitter(0..500ms)
		delay := d.baseDelay<<(attempt-1) + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
		log.Printf("scrape: fetch %s attempt %d/%d failed (%v), retrying in %v",
			pageURL, attempt, d.maxRetries, err, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// isRetryable reports whether a fetch error is worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *ErrHTTP
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Anything else is a transport-level failure (DNS, reset, timeout).
	return true
}
