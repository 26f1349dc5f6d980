package dbqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_DelayOnlyBetweenAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Delay: 20 * time.Millisecond, Multiplier: 1}
	start := time.Now()
	var seen []int
	attempts, err := p.Do(context.Background(), func(context.Context) (bool, error) {
		return false, errors.New("x")
	}, func(attempt int, _ error) { seen = append(seen, attempt) })

	if attempts != 3 || len(seen) != 3 {
		t.Fatalf("expected 3 attempts, got %d (%v)", attempts, seen)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond || elapsed > time.Second {
		t.Fatalf("expected two delays, took %v", elapsed)
	}
}

func TestRetryPolicy_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, Delay: time.Hour}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	attempts, err := p.Do(ctx, func(context.Context) (bool, error) { return false, nil }, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	if p.MaxAttempts != 2 || p.Multiplier != 1 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	d := DefaultRetryPolicy()
	if d.MaxAttempts != 2 || d.Delay != time.Second {
		t.Fatalf("unexpected default policy: %+v", d)
	}
}
