package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig is the simple fixed/linear form used by the notifiers.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // linear backoff
}

func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	p := Policy{
		MaxAttempts: config.MaxAttempts,
		BaseDelay:   config.Delay,
		linear:      config.Backoff,
		fixed:       !config.Backoff,
	}
	return p.Do(ctx, fn)
}

// Policy is a bounded exponential backoff. The delay before attempt n+1 is
// BaseDelay*2^(n-1), capped by MaxDelay, optionally jittered. A RetryAfter
// hint on the error replaces the computed delay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0..1, fraction of the delay randomized

	// Retryable decides whether err is worth another attempt. Nil retries everything.
	Retryable func(error) bool

	// Sleep is swapped out in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	linear bool
	fixed  bool
}

// RetryAfterError carries a server supplied delay.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.After)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter extracts a server delay hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.After > 0 {
		return ra.After, true
	}
	return 0, false
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if hint, ok := RetryAfter(err); ok {
			delay = hint
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Delay returns the wait after the given (1-based) failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	switch {
	case p.fixed:
	case p.linear:
		d = time.Duration(attempt) * p.BaseDelay
	default:
		for i := 1; i < attempt; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				break
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
