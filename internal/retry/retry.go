// Package retry implements the shared exponential-backoff-with-jitter policy
// used for LLM provider calls and SQLite lock contention.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"

	"planforge/internal/logging"
)

// Policy describes a backoff schedule.
type Policy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64 // delay is jittered uniformly within ±JitterFraction
	MaxAttempts    int
}

// DefaultPolicy returns the policy used for provider calls.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
		MaxAttempts:    3,
	}
}

// StoragePolicy returns the tighter policy used for SQLite lock contention.
func StoragePolicy() Policy {
	return Policy{
		BaseDelay:      50 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
		MaxAttempts:    5,
	}
}

// retryableError is implemented by errors that know their own retryability
// (e.g. provider errors carrying an HTTP status class).
type retryableError interface {
	Retryable() bool
}

// retryAfterError is implemented by errors carrying a provider-supplied
// retry-after duration, which overrides the computed backoff.
type retryAfterError interface {
	RetryAfter() (time.Duration, bool)
}

// transientHints matches error text that usually indicates a transient
// failure; used only when the error carries no explicit retryability.
var transientHints = []string{
	"timeout",
	"context deadline",
	"rate limit",
	"too many requests",
	"temporar",
	"connection",
	"unavailable",
	"network",
	"database is locked",
	"database table is locked",
	"busy",
}

// Retryable reports whether an error is worth retrying. Context cancellation
// is never retryable: the caller asked to stop.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re retryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, h := range transientHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

// Delay computes the backoff before the given attempt (1-based). The
// unjittered center is min(MaxDelay, BaseDelay × Multiplier^(attempt-1)); the
// result is jittered uniformly within ±JitterFraction.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			break
		}
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.JitterFraction > 0 {
		spread := d * p.JitterFraction
		d = d - spread + rand.Float64()*2*spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// delayFor resolves the wait before retrying after err on the given attempt.
// A provider-supplied retry-after overrides the computed delay, still capped
// by MaxDelay as a safety ceiling.
func (p Policy) delayFor(err error, attempt int) time.Duration {
	var ra retryAfterError
	if errors.As(err, &ra) {
		if after, ok := ra.RetryAfter(); ok {
			if after > p.MaxDelay {
				return p.MaxDelay
			}
			return after
		}
	}
	return p.Delay(attempt)
}

// Do runs fn up to MaxAttempts times, sleeping between attempts per the
// policy. Non-retryable errors and context cancellation return immediately.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			logging.RetryDebug("%s: non-retryable error: %v", op, lastErr)
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := p.delayFor(lastErr, attempt)
		logging.Retry("%s: attempt %d/%d failed (%v), retrying in %v", op, attempt, attempts, lastErr, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
