package backoff

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxAttempts is the total number of attempts (0..3) when a policy
// does not set one.
const DefaultMaxAttempts = 4

// DefaultBaseDelay is the delay before the first retry.
const DefaultBaseDelay = time.Second

// StatusOverloaded is the non-standard status some generation APIs return
// when they shed load.
const StatusOverloaded = 529

// StatusCarrier is implemented by errors that know the HTTP-like status of
// the upstream response that produced them.
type StatusCarrier interface {
	HTTPStatus() int
}

// RetryExhaustedError is returned after the last attempt failed with a
// retryable error. It wraps that error unchanged.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Policy configures Execute.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      logrus.FieldLogger

	// Sleep waits between attempts. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// StatusOf returns the status carried anywhere in err's chain.
func StatusOf(err error) (int, bool) {
	var sc StatusCarrier
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

// IsRetryable reports whether err came from an upstream response with status
// 429, 529 or 5xx. Errors without a status (network failures, bad input) are
// never retried.
func IsRetryable(err error) bool {
	code, ok := StatusOf(err)
	if !ok {
		return false
	}
	switch {
	case code == http.StatusTooManyRequests, code == StatusOverloaded:
		return true
	case code >= 500 && code <= 599:
		return true
	}
	return false
}

// Delay returns the wait before the retry that follows failed attempt n
// (attempts are numbered from 0): base * 2^n.
func Delay(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt)
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// the policy's attempts are used up.
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := p.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	var zero T
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == maxAttempts-1 {
			return zero, &RetryExhaustedError{Attempts: maxAttempts, Err: err}
		}

		delay := Delay(base, attempt)
		status, _ := StatusOf(err)
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
			"status":  status,
		}).Warn("Retryable upstream error, backing off")

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("backoff: no attempts made")
}

// Do is Execute with an inline policy.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), maxAttempts int, baseDelay time.Duration) (T, error) {
	return Execute(ctx, Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}, op)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
