// Package retry provides exponential backoff with jitter and a
// retryable/non-retryable error classification. It wraps the network and
// compute-session operations that are allowed to fail transiently:
// artifact downloads, persistent-store access, and backend session setup.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Defaults applied when corresponding Policy fields are unset.
const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
)

// Policy controls retry behavior for Do.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// InitialDelay is the backoff base; attempt n waits
	// min(InitialDelay*2^n, MaxDelay) plus up to 30% jitter.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry gates whether a given failure is retried at all.
	// Nil means Retryable.
	ShouldRetry func(error) bool
	// OnRetry is invoked before each re-attempt with the upcoming attempt
	// number (1-based) and the error that caused it. Advisory only.
	OnRetry func(attempt int, err error)
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	} else if p.MaxRetries == 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = Retryable
	}
	return p
}

// Do runs fn, retrying per the policy. Exhausting retries returns the last
// error unchanged so callers can still classify the original cause.
// Context cancellation aborts the wait between attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var last error
	for attempt := 0; ; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !p.ShouldRetry(last) {
			return last
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, last)
		}
		select {
		case <-time.After(Backoff(attempt, p.InitialDelay, p.MaxDelay)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Backoff computes the delay before re-attempt number attempt (0-based):
// min(initial*2^attempt, max) plus 0-30% random jitter.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	d := initial << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)*3/10 + 1))
	return d + jitter
}

// Retryable is the default classification. Network, timeout, busy and
// abort-class failures are transient; missing, corrupt, unsupported and
// out-of-memory failures are permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"not found", "404", "invalid", "corrupt", "unsupported", "out of memory",
	} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range []string{
		"network", "timeout", "timed out", "connection", "temporarily",
		"busy", "unavailable", "aborted", "reset", "refused", "eof",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	// Unknown failures default to retryable; the permanent classes above
	// are the ones that can never succeed on a second attempt.
	return true
}
