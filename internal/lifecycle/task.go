package lifecycle

import (
	"context"
	"sync"
)

// Task is a cancellable background goroutine. The zero value is ready to use;
// stopping a task that has not started prevents it from starting.
type Task struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	stopped bool
}

// Start runs fn in a goroutine. It returns false if the task was already
// started or stopped.
func (t *Task) Start(ctx context.Context, fn func(ctx context.Context) error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.done != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go func(done chan struct{}) {
		err := fn(ctx)
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(done)
	}(t.done)
	return true
}

// Stop cancels the task. It is safe to call more than once.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.cancel != nil {
		t.cancel()
	}
}

// Wait blocks until the task returns or ctx ends, and returns the task's error.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
