// Package retry runs an operation a bounded number of times with a delay
// that grows linearly with the attempt number.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/clockz"
)

// Policy configures Do. The delay after failed attempt n is BaseDelay*n.
type Policy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	Clock       clockz.Clock

	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (p Policy) clock() clockz.Clock {
	if p.Clock == nil {
		return clockz.RealClock
	}
	return p.Clock
}

// Delay returns the wait that follows failed attempt n.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a Permanent error, or MaxAttempts is
// reached. The last error is returned. Cancelling ctx abandons the wait.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	clock := p.clock()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if delay <= 0 {
			if ctx.Err() != nil {
				return zero, lastErr
			}
			continue
		}
		select {
		case <-clock.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
	return zero, lastErr
}
