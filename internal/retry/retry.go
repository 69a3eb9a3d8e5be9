// Package retry wraps fallible external calls with exponential backoff.
// Every LLM, embedding, and vector call in the pipeline goes through one
// Policy instead of duplicating backoff loops at each call site.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Classifier decides whether an error is worth another attempt. Fatal
// errors (authentication failures, requests rejected by the provider)
// abort immediately without consuming the retry budget.
type Classifier func(error) bool

// Always treats every error as retryable.
func Always(error) bool { return true }

// Policy holds the backoff parameters shared by all call sites.
type Policy struct {
	MaxAttempts    int           // total attempts, including the first
	BaseDelay      time.Duration // doubled after each failed attempt
	MaxDelay       time.Duration // backoff cap before jitter
	Jitter         time.Duration // uniform random addition in [0, Jitter)
	AttemptTimeout time.Duration // per-attempt deadline; 0 means none
}

// DefaultPolicy mirrors the budget the pipeline runs with in production.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Jitter:         250 * time.Millisecond,
		AttemptTimeout: 60 * time.Second,
	}
}

// ExhaustedError is the terminal error after the retry budget is spent.
type ExhaustedError struct {
	Attempts int
	Err      error // last underlying cause
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op under the policy, retrying errors the classifier marks
// retryable. The first fatal error is returned as-is; exhausting the
// budget returns an *ExhaustedError wrapping the last cause. Context
// cancellation stops the backoff wait immediately.
func Do[T any](ctx context.Context, p Policy, retryable Classifier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if retryable == nil {
		retryable = Always
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := runAttempt(ctx, p, op)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		sleep := p.backoff(attempt)
		slog.Warn("retryable error, backing off",
			"attempt", attempt, "max_attempts", p.MaxAttempts,
			"sleep", sleep, "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
	}

	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	if p.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

// backoff returns the sleep before attempt+1: base doubled per attempt,
// capped at MaxDelay, plus uniform jitter.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}
