// Package retry runs an operation with exponential backoff. A classifier
// decides per error whether another attempt is worthwhile.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // throttled, use RateLimitBackoff
)

// Policy bounds the attempts of one operation.
type Policy struct {
	// Name labels the operation in retry logs, e.g. "redis connect".
	Name             string
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration // zero leaves the doubling uncapped
	RateLimitBackoff time.Duration
	// Clock drives the waits between attempts. Nil uses the real clock.
	Clock clockwork.Clock
	// OnRetry replaces the default warning log before each wait.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)
type VoidOperation func() error

// Always retries every error.
func Always(error) Action { return Retry }

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, fmt.Errorf("retry %s: MaxAttempts must be >= 1, got %d", p.Name, p.MaxAttempts)
	}

	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action := classify(err)
		if action == Stop {
			return zero, &PermanentError{Err: err}
		}
		if attempt == p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		wait := backoff
		if action == After {
			wait = p.RateLimitBackoff
		}
		p.notify(ctx, attempt, err, wait)

		select {
		case <-clock.After(wait):
			if action == Retry {
				backoff = p.next(backoff)
			}
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

func (p Policy) notify(ctx context.Context, attempt int, err error, wait time.Duration) {
	if p.OnRetry != nil {
		p.OnRetry(attempt, err, wait)
		return
	}
	slog.WarnContext(ctx, "Operation failed, retrying",
		"operation", p.Name,
		"attempt", attempt,
		"max_attempts", p.MaxAttempts,
		"backoff", wait,
		"error", err,
	)
}

func (p Policy) next(backoff time.Duration) time.Duration {
	backoff *= 2
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// PermanentError marks an error the classifier refused to retry.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err was given up on without exhausting attempts.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
