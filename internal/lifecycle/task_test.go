package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTask_StopCancelsAndWaitReturnsError(t *testing.T) {
	var task Task
	ok := task.Start(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !ok {
		t.Fatalf("expected start")
	}
	if task.Start(context.Background(), func(context.Context) error { return nil }) {
		t.Fatalf("second start must fail")
	}

	task.Stop()
	task.Stop()
	if err := task.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTask_StopBeforeStart(t *testing.T) {
	var task Task
	task.Stop()
	if task.Start(context.Background(), func(context.Context) error { return nil }) {
		t.Fatalf("stopped task must not start")
	}
	if err := task.Wait(context.Background()); err != nil {
		t.Fatalf("wait on unstarted task: %v", err)
	}
}

func TestTask_WaitHonoursContext(t *testing.T) {
	var task Task
	block := make(chan struct{})
	defer close(block)
	task.Start(context.Background(), func(context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := task.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
