package dbqueue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotApplied is reported when an operation returns false without an error.
	ErrNotApplied = errors.New("dbqueue: operation reported failure")
	// ErrExhausted wraps the last failure once every attempt has been used.
	ErrExhausted = errors.New("dbqueue: retries exhausted")
)

// RetryPolicy controls how many times an operation runs and how long to wait
// between attempts. It knows nothing about the functions it wraps.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Multiplier scales Delay after each failed attempt. 1 keeps it fixed.
	Multiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Delay: time.Second, Multiplier: 1}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 2
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if out.Multiplier < 1 {
		out.Multiplier = 1
	}
	return out
}

// Do runs fn until it succeeds or the attempts run out. onFailure, when set,
// is called for every failed attempt. The delay is only applied between
// attempts, never after the last one.
func (p RetryPolicy) Do(ctx context.Context, fn Func, onFailure func(attempt int, err error)) (int, error) {
	p = p.withDefaults()
	delay := p.Delay

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		ok, err := runAttempt(ctx, fn)
		if err == nil && ok {
			return attempt, nil
		}
		if err == nil {
			err = ErrNotApplied
		}
		last = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, err
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return p.MaxAttempts, fmt.Errorf("%w: %w", ErrExhausted, last)
}

func runAttempt(ctx context.Context, fn Func) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("dbqueue: operation panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
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
