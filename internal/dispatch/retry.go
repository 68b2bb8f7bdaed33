package dispatch

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

const maxBackoff = 30 * time.Second

// retryDecision is produced by the Retry Controller (C4) after one HTTP
// attempt (or transport failure) completes.
type retryDecision struct {
	retry   bool
	delay   time.Duration
	reason  string
}

// decideRetry maps a completed attempt to a retry decision per the §4.4
// table. status is 0 for a transport-level failure (no response at all).
func decideRetry(status int, retryAfter time.Duration, attempt int, baseDelay time.Duration, transportErr error) retryDecision {
	if transportErr != nil {
		return retryDecision{retry: true, delay: computeBackoff(attempt, baseDelay), reason: "network or timeout failure"}
	}

	switch {
	case status >= 200 && status < 300:
		return retryDecision{retry: false, reason: "success"}
	case status >= 300 && status < 400:
		return retryDecision{retry: false, reason: "redirect followed by transport"}
	case status == http.StatusRequestTimeout, status == http.StatusLocked:
		return retryDecision{retry: true, delay: computeBackoff(attempt, baseDelay), reason: "retryable client status"}
	case status == http.StatusTooManyRequests:
		delay := computeBackoff(attempt, baseDelay)
		if retryAfter > delay {
			delay = retryAfter
		}
		return retryDecision{retry: true, delay: delay, reason: "rate limited upstream"}
	case status >= 500:
		return retryDecision{retry: true, delay: computeBackoff(attempt, baseDelay), reason: "upstream server error"}
	case status >= 400:
		return retryDecision{retry: false, reason: "non-retryable client error"}
	default:
		return retryDecision{retry: false, reason: "unclassified status"}
	}
}

// computeBackoff is delayMs = min(baseDelayMs * 2^(attempt-1), 30000) with
// 20% symmetric jitter.
func computeBackoff(attempt int, baseDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt-1))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	jitter := time.Duration((rand.Float64()*2 - 1) * 0.2 * float64(backoff))
	d := backoff + jitter
	if d < 0 {
		d = 0
	}
	return d
}

// sleep suspends for d or returns early with a Cancelled error if ctx is
// done first. Every backoff sleep is a cancellation-aware suspension
// point per §5.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return newError(KindCancelled, 0, 0, "backoff sleep cancelled", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusLocked, status >= 500:
		return KindUpstreamTransient
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthorizationError
	case status >= 400:
		return KindClientError
	default:
		return KindProtocolError
	}
}
